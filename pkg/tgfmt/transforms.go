package tgfmt

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxMessageLength is Telegram's sendMessage text limit.
const MaxMessageLength = 4096

const (
	ellipsis           = "..."
	markdownV2Ellipsis = `\.\.\.`
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Affixes are wrapped around a message before escaping, so they are escaped too.
type Affixes struct {
	Prefix string
	Suffix string
}

func (a Affixes) Apply(text string) string { return a.Prefix + text + a.Suffix }

// ObfuscateEmails shortens the local part of every email address to its first
// three characters, an ellipsis and its last character:
//
//	info@example.com -> inf...o@example.com
//
// Addresses whose local part is three characters or shorter are left as is.
func ObfuscateEmails(text string) string {
	return emailPattern.ReplaceAllStringFunc(text, obfuscateEmail)
}

func obfuscateEmail(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || strings.Contains(domain, "@") {
		return addr
	}
	// The pattern only admits ASCII in the local part, so byte slicing is safe.
	if len(local) <= 3 {
		return addr
	}
	return local[:3] + ellipsis + local[len(local)-1:] + "@" + domain
}

// Truncate shortens text to at most limit runes, appending "..." when cut.
// A limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	return truncate(text, limit, ellipsis, PlainText)
}

// TruncateFor is Truncate with a marker that is valid in dialect d.
// The cut never splits a MarkdownV2 escape pair or an HTML entity.
func TruncateFor(text string, limit int, d Dialect) string {
	switch d {
	case MarkdownV2:
		return truncate(text, limit, markdownV2Ellipsis, d)
	case HTML:
		return truncate(text, limit, ellipsis, d)
	default:
		return truncate(text, limit, ellipsis, PlainText)
	}
}

// truncate cuts at the last whitespace that still leaves room for marker,
// falling back to a hard cut when the window has no whitespace.
func truncate(text string, limit int, marker string, d Dialect) string {
	if limit <= 0 {
		return text
	}
	rs := []rune(text)
	if len(rs) <= limit {
		return text
	}
	mk := []rune(marker)
	if len(mk) >= limit {
		return string(rs[:limit])
	}

	budget := limit - len(mk)
	cut := budget
	for i := budget; i > 0; i-- {
		if unicode.IsSpace(rs[i]) {
			cut = i
			break
		}
	}

	kept := rs[:cut]
	switch d {
	case MarkdownV2:
		if danglingEscape(kept) {
			kept = kept[:len(kept)-1]
		}
	case HTML:
		if i := partialEntity(kept); i >= 0 {
			kept = kept[:i]
		}
	}
	return string(kept) + marker
}

// danglingEscape reports whether rs ends in an odd run of backslashes.
func danglingEscape(rs []rune) bool {
	n := 0
	for i := len(rs) - 1; i >= 0 && rs[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// maxEntityLen covers named and numeric references such as "&#x1F600;".
const maxEntityLen = 10

// partialEntity returns the index of an unterminated "&..." reference at the
// end of rs, or -1.
func partialEntity(rs []rune) int {
	for i := len(rs) - 1; i >= 0 && len(rs)-i <= maxEntityLen; i-- {
		switch r := rs[i]; {
		case r == '&':
			return i
		case r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			return -1
		}
	}
	return -1
}
