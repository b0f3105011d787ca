// Package texscan holds the byte-level helpers shared by the passes that edit
// LaTeX sources in place.
package texscan

import "strings"

// IsLetter reports whether c can be part of a control word under document
// catcodes. '@' is not a letter there, so \foo@bar reads as \foo followed by text.
func IsLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// SkipSpaces returns the first index at or after i that is not whitespace.
func SkipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// InComment reports whether pos sits after an unescaped % on its line.
func InComment(src string, pos int) bool {
	lineStart := strings.LastIndexByte(src[:pos], '\n') + 1
	backslashes := 0
	for i := lineStart; i < pos; i++ {
		switch src[i] {
		case '\\':
			backslashes++
			continue
		case '%':
			if backslashes%2 == 0 {
				return true
			}
		}
		backslashes = 0
	}
	return false
}

// Matching returns the index of the delimiter closing the group opened at open.
func Matching(s string, open int, l, r byte) (int, bool) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case l:
			depth++
		case r:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
