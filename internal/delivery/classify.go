package delivery

import "strings"

// parseModeRejected reports whether a rejection is about the parse_mode
// value itself. Entity errors ("can't parse entities") are about the text
// and do not count.
func parseModeRejected(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "parse_mode") || strings.Contains(d, "parse mode")
}
