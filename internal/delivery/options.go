package delivery

import (
	"fmt"
	"strconv"
	"strings"

	"telegrama/pkg/tgfmt"
)

// Recognized option keys.
const (
	KeyChatID                = "chat_id"
	KeyParseMode             = "parse_mode"
	KeyDisableWebPagePreview = "disable_web_page_preview"
	KeyEscapeMarkdown        = "escape_markdown"
	KeyObfuscateEmails       = "obfuscate_emails"
	KeyEscapeHTML            = "escape_html"
	KeyTruncate              = "truncate"
)

// Option is one per-call override in its string form.
type Option struct {
	Key   string
	Value string
}

func With(key, value string) Option { return Option{Key: key, Value: value} }

// ParseOption parses "key=value".
func ParseOption(s string) (Option, error) {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return Option{}, fmt.Errorf("invalid option %q (want key=value)", s)
	}
	return Option{Key: k, Value: v}, nil
}

// overrides is the parsed option list. nil means "not given".
type overrides struct {
	chatID          *string
	parseMode       *string
	disablePreview  *bool
	escapeMarkdown  *bool
	obfuscateEmails *bool
	escapeHTML      *bool
	truncate        *int
}

// parseOverrides reads opts in order; a later key replaces an earlier one.
// Unknown keys are ignored.
func parseOverrides(opts []Option) overrides {
	var o overrides
	for _, opt := range opts {
		v := opt.Value
		switch strings.ToLower(strings.TrimSpace(opt.Key)) {
		case KeyChatID:
			o.chatID = &v
		case KeyParseMode:
			v = strings.TrimSpace(v)
			o.parseMode = &v
		case KeyDisableWebPagePreview:
			o.disablePreview = parseBool(v)
		case KeyEscapeMarkdown:
			o.escapeMarkdown = parseBool(v)
		case KeyObfuscateEmails:
			o.obfuscateEmails = parseBool(v)
		case KeyEscapeHTML:
			o.escapeHTML = parseBool(v)
		case KeyTruncate:
			o.truncate = parseLimit(v)
		}
	}
	return o
}

// parseBool: only "true" (any case) is true.
func parseBool(s string) *bool {
	b := strings.EqualFold(strings.TrimSpace(s), "true")
	return &b
}

// parseLimit: anything that is not a non-negative integer disables truncation.
func parseLimit(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		n = 0
	}
	return &n
}

// formatting merges the overrides over base for one attempt under d.
//
// Only d's escaping pass can be active. It is on unless the caller
// explicitly turned it off, which marks the text as pre-formatted.
func (o overrides) formatting(base tgfmt.Options, d tgfmt.Dialect) tgfmt.Options {
	if o.obfuscateEmails != nil {
		base.ObfuscateEmails = *o.obfuscateEmails
	}
	if o.truncate != nil {
		base.Truncate = *o.truncate
	}
	out := base.ForDialect(d)
	if d == tgfmt.MarkdownV2 && o.escapeMarkdown != nil && !*o.escapeMarkdown {
		out.EscapeMarkdown = false
	}
	if d == tgfmt.HTML && o.escapeHTML != nil && !*o.escapeHTML {
		out.EscapeHTML = false
	}
	return out
}
