package tools

import "fmt"

// MaxRenderedChars is the outbound size ceiling for any tool response.
// Responses above it are head-tail truncated so the client never receives
// more than roughly this many characters per call.
const MaxRenderedChars = 30000

// TruncateHeadTail shortens s by keeping maxChars of its characters: the
// first 80% and the last 20% of the budget, separated by a marker carrying
// the number of characters removed. The marker comes on top of the budget.
// Strings at or under the limit pass through.
func TruncateHeadTail(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	head := maxChars * 8 / 10
	tail := maxChars - head
	removed := len(s) - head - tail
	return s[:head] + fmt.Sprintf("\n\n[... truncated %d characters ...]\n\n", removed) + s[len(s)-tail:]
}

// TruncateLine shortens a single line to maxChars, appending an ellipsis
// when anything was cut.
func TruncateLine(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + "..."
}
