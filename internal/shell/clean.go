package shell

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Clean strips ANSI escape sequences from line and applies backspace erasure,
// so "50%\b\b\b75%" reads as "75%".
func Clean(line string) string {
	line = ansi.Strip(line)
	if strings.ContainsRune(line, '\b') {
		line = applyBackspaces(line)
	}
	return strings.TrimRight(line, "\r\n")
}

func applyBackspaces(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\b' {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
