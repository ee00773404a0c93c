// Package ansi cleans script output for display in log views.
package ansi

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// Strip removes ANSI escape sequences from a string.
func Strip(s string) string {
	return xansi.Strip(s)
}

// Sanitize prepares one output line for a log view: escape sequences are
// removed, carriage-return redraws keep only the final frame and remaining
// control characters other than tab are dropped.
func Sanitize(s string) string {
	s = Strip(s)

	if i := strings.LastIndexByte(strings.TrimRight(s, "\r"), '\r'); i >= 0 {
		s = s[i+1:]
	}

	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}

		if r < 0x20 || r == 0x7f {
			return -1
		}

		return r
	}, s)
}

// Width returns the number of terminal cells s occupies, ignoring escapes.
func Width(s string) int {
	return xansi.StringWidth(s)
}
