package llm

// EstimateTokens approximates the token count of text for budget gating.
// Uses the rough four-bytes-per-token heuristic; the provider's own counts
// from the usage headers are what the ledger records.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
