// Package utils provides shared helpers for text, vector math, and logging.
package utils

// Truncate shortens s to at most maxLen runes, appending "..." if anything was cut.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
