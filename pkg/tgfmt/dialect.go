package tgfmt

import "strings"

// Dialect selects the escaping rules and the parse_mode token sent with a message.
type Dialect int

const (
	PlainText Dialect = iota
	MarkdownV2
	HTML
)

// ParseMode returns the wire-level parse_mode value.
// PlainText maps to the empty string; Telegram rejects a null parse_mode.
func (d Dialect) ParseMode() string {
	switch d {
	case MarkdownV2:
		return "MarkdownV2"
	case HTML:
		return "HTML"
	default:
		return ""
	}
}

func (d Dialect) String() string {
	if d == MarkdownV2 || d == HTML {
		return d.ParseMode()
	}
	return "plain"
}

// ParseDialect maps a parse_mode token to a Dialect.
//
// The empty string selects PlainText. Unknown tokens also map to PlainText,
// with ok=false so callers can tell the difference.
func ParseDialect(s string) (d Dialect, ok bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return PlainText, true
	case strings.EqualFold(s, "MarkdownV2"):
		return MarkdownV2, true
	case strings.EqualFold(s, "HTML"):
		return HTML, true
	default:
		return PlainText, false
	}
}
