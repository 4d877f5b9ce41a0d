package tgfmt

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ReservedChars lists the characters with special meaning in MarkdownV2.
// See https://core.telegram.org/bots/api#markdownv2-style.
const ReservedChars = "_*[]()~`>#+-=|{}.!"

var ErrInvalidUTF8 = errors.New("tgfmt: text is not valid UTF-8")

var reservedLookup = func() [utf8.RuneSelf]bool {
	var m [utf8.RuneSelf]bool
	for i := 0; i < len(ReservedChars); i++ {
		m[ReservedChars[i]] = true
	}
	return m
}()

// IsReserved reports whether r must be escaped when used literally in MarkdownV2.
func IsReserved(r rune) bool {
	return r >= 0 && r < utf8.RuneSelf && reservedLookup[r]
}

// linkPattern matches complete inline links: [label](target).
var linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// lexicalContext is the state of one escaping scan.
type lexicalContext struct {
	inlineCode  bool
	fencedBlock bool
	bold        bool
	italic      bool
	linkLabel   bool
	linkTarget  bool
}

func (c lexicalContext) inCode() bool { return c.inlineCode || c.fencedBlock }

func (c lexicalContext) inSpan() bool {
	return c.bold || c.italic || c.linkLabel || c.linkTarget
}

// Escape makes text safe for the given dialect.
//
// For MarkdownV2 a scan failure degrades to StripMarkdown, so Escape always
// returns something sendable.
func Escape(text string, d Dialect) string {
	switch d {
	case MarkdownV2:
		out, err := EscapeMarkdownV2(text)
		if err != nil {
			return StripMarkdown(text)
		}
		return out
	case HTML:
		return EscapeHTML(text)
	default:
		return text
	}
}

// EscapeMarkdownV2 escapes reserved characters that appear as literal text
// while leaving formatting markers (*bold*, _italic_, `code`, ```pre```,
// [label](url)) untouched.
//
// Characters already escaped with a backslash are left alone, so escaping is
// idempotent.
func EscapeMarkdownV2(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}

	src := []rune(escapeLinks(text))
	n := len(src)

	var (
		b   strings.Builder
		ctx lexicalContext
	)
	b.Grow(len(text) + len(text)/4)

	for i := 0; i < n; i++ {
		r := src[i]

		if r == '`' {
			if !ctx.inlineCode && i+2 < n && src[i+1] == '`' && src[i+2] == '`' {
				ctx.fencedBlock = !ctx.fencedBlock
				b.WriteString("```")
				i += 2
				continue
			}
			if !ctx.fencedBlock {
				ctx.inlineCode = !ctx.inlineCode
			}
			b.WriteRune(r)
			continue
		}

		if ctx.inCode() {
			b.WriteRune(r)
			continue
		}

		if r == '\\' && i+1 < n && isEscapable(src[i+1]) {
			b.WriteRune(r)
			b.WriteRune(src[i+1])
			i++
			continue
		}

		switch {
		case r == '*':
			ctx.bold = !ctx.bold
			b.WriteRune(r)
		case r == '_':
			ctx.italic = !ctx.italic
			b.WriteRune(r)
		case r == '[' && !ctx.linkLabel:
			ctx.linkLabel = true
			b.WriteRune(r)
		case r == ']' && ctx.linkLabel:
			ctx.linkLabel = false
			b.WriteRune(r)
			if i+1 < n && src[i+1] == '(' {
				ctx.linkTarget = true
			}
		case r == ')' && ctx.linkTarget:
			ctx.linkTarget = false
			b.WriteRune(r)
		case IsReserved(r) && !ctx.inSpan():
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// escapeLinks escapes the inside of every complete [label](target) span.
// The label gets every reserved character escaped; the target keeps / : . -
// so URLs survive.
func escapeLinks(text string) string {
	matches := linkPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		b.WriteByte('[')
		b.WriteString(escapeReserved(text[m[2]:m[3]], nil))
		b.WriteString("](")
		b.WriteString(escapeReserved(text[m[4]:m[5]], isURLRune))
		b.WriteByte(')')
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func isURLRune(r rune) bool {
	return r == '/' || r == ':' || r == '.' || r == '-'
}

// escapeReserved backslash-escapes reserved runes in s except those keep
// accepts. Existing escape pairs are copied through.
func escapeReserved(s string, keep func(rune) bool) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '\\' && i+1 < len(rs) && isEscapable(rs[i+1]) {
			b.WriteRune(r)
			b.WriteRune(rs[i+1])
			i++
			continue
		}
		if IsReserved(r) && (keep == nil || !keep(r)) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isEscapable reports whether a backslash before r forms an escape pair.
func isEscapable(r rune) bool { return r == '\\' || IsReserved(r) }

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes exactly <, > and & for Telegram's HTML parse mode.
// Quotes are left alone; Telegram only requires them escaped inside attributes.
func EscapeHTML(text string) string { return htmlEscaper.Replace(text) }
