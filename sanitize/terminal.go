package sanitize

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Terminal removes escape sequences and control characters from s so it can
// be written to a terminal. Newlines and tabs survive; CRLF becomes LF.
func Terminal(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r >= 0x80 && r <= 0x9f:
			return -1
		}
		return r
	}, s)
}
