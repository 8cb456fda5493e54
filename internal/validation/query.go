package validation

import "strings"

// DefaultMaxQueryLength bounds search text sent to the registry.
const DefaultMaxQueryLength = 256

// SanitizeQuery flattens control whitespace, collapses runs of spaces and
// limits the query to maxLen runes. A non-positive maxLen uses the default.
func SanitizeQuery(input string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLength
	}

	input = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(input)
	input = strings.Join(strings.Fields(input), " ")

	if r := []rune(input); len(r) > maxLen {
		input = strings.TrimSpace(string(r[:maxLen]))
	}
	return input
}
