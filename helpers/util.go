package helpers

import (
	"strings"
)

// CleanText collapses whitespace (including non-breaking spaces and newlines) to single spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// TrimDecorations removes separator leftovers such as "ACME -" around a value.
func TrimDecorations(s string) string {
	return strings.Trim(CleanText(s), " -–|·,")
}
