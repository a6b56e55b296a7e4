package strings

import (
	"strings"
	"unicode/utf8"
)

// DefaultCellWidth is the widest a free-text table cell is printed.
const DefaultCellWidth = 60

const ellipsis = "..."

// Truncate collapses whitespace in s to single spaces and shortens it to at
// most width runes, ending in "..." when cut. Widths below 4 are treated as
// 4.
func Truncate(s string, width int) string {
	if width < len(ellipsis)+1 {
		width = len(ellipsis) + 1
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-len(ellipsis)]) + ellipsis
}

// TruncateMiddle shortens s to width runes by replacing its middle with
// "...", keeping both the start and the end visible. Suited to URLs, whose
// host and final path segment matter most.
func TruncateMiddle(s string, width int) string {
	if width < len(ellipsis)+2 {
		width = len(ellipsis) + 2
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	keep := width - len(ellipsis)
	head := (keep + 1) / 2
	tail := keep - head
	return string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:])
}
