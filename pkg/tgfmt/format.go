package tgfmt

import "errors"

var ErrEmpty = errors.New("tgfmt: message is empty after formatting")

// Options toggles the individual formatting passes.
//
// EscapeMarkdown and EscapeHTML gate the escaping pass of their own dialect;
// callers sending under one dialect normally enable only that dialect's flag.
type Options struct {
	EscapeMarkdown  bool
	ObfuscateEmails bool
	EscapeHTML      bool
	// Truncate is the maximum length in runes. 0 disables truncation.
	Truncate int
}

// DefaultOptions mirrors Telegram's defaults: MarkdownV2 escaping on and the
// 4096 character message limit.
func DefaultOptions() Options {
	return Options{EscapeMarkdown: true, Truncate: MaxMessageLength}
}

// ForDialect returns a copy of o with only d's escaping pass enabled.
func (o Options) ForDialect(d Dialect) Options {
	o.EscapeMarkdown = d == MarkdownV2
	o.EscapeHTML = d == HTML
	return o
}

// Format runs the full pipeline for dialect d:
// affixes, email obfuscation, escaping, truncation.
//
// Truncation runs last so it never cuts an escape sequence in half.
// Returns ErrEmpty when nothing is left to send.
func Format(text string, d Dialect, o Options, a Affixes) (string, error) {
	text = a.Apply(text)
	if o.ObfuscateEmails {
		text = ObfuscateEmails(text)
	}

	switch {
	case d == MarkdownV2 && o.EscapeMarkdown:
		text = Escape(text, MarkdownV2)
	case d == HTML && o.EscapeHTML:
		text = Escape(text, HTML)
	}

	if o.Truncate > 0 {
		text = TruncateFor(text, o.Truncate, d)
	}
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
