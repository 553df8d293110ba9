package embed

// Embedding provider pricing, USD per million tokens. Used only for the
// pre-flight estimate; billing truth lives with the provider.
const usdPerMillionTokens = 0.15

// CostEstimate approximates the cost of embedding a corpus before any
// provider call is made, for budget gating on large ingestion runs.
type CostEstimate struct {
	Texts  int
	Chars  int
	Tokens int
	USD    float64
}

// EstimateCost computes a pre-flight cost estimate from character counts
// using the same four-characters-per-token heuristic as the chunker.
func EstimateCost(texts []string) CostEstimate {
	est := CostEstimate{Texts: len(texts)}
	for _, t := range texts {
		est.Chars += len(t)
	}
	est.Tokens = (est.Chars + 3) / 4
	est.USD = float64(est.Tokens) / 1e6 * usdPerMillionTokens
	return est
}
