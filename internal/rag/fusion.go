package rag

// FuseScores blends vector and lexical relevance. weight is the share of the
// vector score and is clamped to [0, 1].
func FuseScores(vectorScore, ftsScore, weight float64) float64 {
	if weight <= 0 {
		return ftsScore
	}
	if weight >= 1 {
		return vectorScore
	}
	return weight*vectorScore + (1-weight)*ftsScore
}
