package ingestion

import "strings"

// EstimateTokens cheaply approximates the provider token cost of a chunk
// without a network call. It takes the larger of a character-density
// estimate (~4 chars per token) and a word-density estimate (~1.3 tokens
// per word), biased to overestimate so oversized chunks are caught before
// an expensive provider call.
func EstimateTokens(text string) int {
	n := runeLen(text)
	if n == 0 {
		return 0
	}
	byChars := (n + 3) / 4
	words := len(strings.Fields(text))
	byWords := (words*13 + 9) / 10 // ceil(words * 1.3)

	if byWords > byChars {
		return byWords
	}
	return byChars
}
