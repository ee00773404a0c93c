// Package render measures and fits styled text into terminal cells.
package render

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

const ellipsis = "…"

// VisibleLength returns the number of cells a string occupies, excluding
// ANSI codes and counting wide runes twice.
func VisibleLength(value string) int {
	return ansi.StringWidth(value)
}

// PadRightVisible appends spaces until the string reaches width visible cells.
func PadRightVisible(value string, width int) string {
	padding := width - VisibleLength(value)
	if padding <= 0 {
		return value
	}

	return value + strings.Repeat(" ", padding)
}

// Truncate shortens plain text to width cells, ending in an ellipsis when
// anything was cut.
func Truncate(value string, width int) string {
	if width <= 0 {
		return ""
	}

	if runewidth.StringWidth(value) <= width {
		return value
	}

	return runewidth.Truncate(value, width, ellipsis)
}

// TruncateStyled shortens text that may contain escape sequences.
func TruncateStyled(value string, width int) string {
	if width <= 0 {
		return ""
	}

	return ansi.Truncate(value, width, ellipsis)
}

// SpaceBetween places left and right on one line of width cells, dropping
// right when both do not fit.
func SpaceBetween(left, right string, width int) string {
	gap := width - VisibleLength(left) - VisibleLength(right)
	if gap < 1 {
		return TruncateStyled(left, width)
	}

	return left + strings.Repeat(" ", gap) + right
}
