package extractor

import "unicode/utf8"

// EstimateTokens approximates an LLM token count as one token per three
// runes, a middle ground between English (~4) and CJK (~1.5) text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	if est := n / 3; est > 0 {
		return est
	}
	return 1
}
