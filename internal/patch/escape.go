package patch

import "strings"

// reserved lists the markup characters escaped in proposed text. Braces, the
// backslash and math delimiters are left alone because proposed text may
// legitimately carry commands copied from the source.
var reserved = [...]byte{'&', '#', '%'}

// EscapeMarkup escapes reserved characters that are not already escaped. A
// character counts as escaped when an odd run of backslashes precedes it, so
// applying EscapeMarkup twice gives the same result as applying it once.
func EscapeMarkup(text string) string {
	if !strings.ContainsAny(text, string(reserved[:])) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 8)
	backslashes := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if isReserved(c) && backslashes%2 == 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
	}
	return b.String()
}

func isReserved(c byte) bool {
	for _, r := range reserved {
		if c == r {
			return true
		}
	}
	return false
}
