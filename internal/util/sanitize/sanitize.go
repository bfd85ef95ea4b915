package sanitize

import (
	"strings"
	"unicode"
)

// Hostname strips control characters from a slave-claimed hostname and
// caps its length before it is used as a registry identity key and a
// logsink file-name component — an unvalidated remote-supplied string
// otherwise ends up directly on disk and in the connection index.
func Hostname(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if b.Len() >= maxLen {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
