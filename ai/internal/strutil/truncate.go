// Package strutil provides string helpers shared by the loops, the evaluator
// and the CLI output.
package strutil

// Truncate shortens s to at most maxLen runes, appending "..." when cut.
// Returns "" for maxLen <= 0.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
