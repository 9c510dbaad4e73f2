package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization trims surrounding whitespace
// and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Text prepares message text for storage: CRLF and lone CR become LF and
// surrounding whitespace is trimmed. Interior blank lines are preserved.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Blank reports whether s carries no visible text.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
