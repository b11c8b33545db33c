package rag

// ConfidenceScorer maps retrieval quality and citation support to a
// confidence in [0, 1]. Injectable so deployments can tune the heuristic
// without touching the answer flow.
type ConfidenceScorer func(topScore float32, validCitationRatio float64, uncertain bool) float64

// DefaultConfidence weighs the best retrieval score and the share of model
// citations that survived validation equally, then discounts answers the
// model itself flagged as uncertain.
func DefaultConfidence(topScore float32, validCitationRatio float64, uncertain bool) float64 {
	score := 0.5*float64(topScore) + 0.5*validCitationRatio
	if uncertain {
		score *= 0.6
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
