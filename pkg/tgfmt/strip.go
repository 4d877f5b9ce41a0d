package tgfmt

import "strings"

// StripMarkdown removes MarkdownV2 formatting and returns readable plain text:
// bold/italic/code markers are dropped, [label](url) collapses to label and
// backslash escapes are resolved to the literal character.
func StripMarkdown(text string) string {
	text = linkPattern.ReplaceAllString(text, "$1")

	rs := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\' && i+1 < len(rs) && isEscapable(rs[i+1]):
			b.WriteRune(rs[i+1])
			i++
		case r == '*' || r == '_' || r == '`':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
