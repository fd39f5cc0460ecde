package rag

import "github.com/xxxsen/docqa/internal/model"

// CalibrateScores turns the top chunk's scores into a confidence level.
// vector == nil means nothing was retrieved. When a reranker score is present
// it governs, using the reranker thresholds.
func CalibrateScores(vector, reranker *float64, intent Intent, t Thresholds) model.Confidence {
	if intent.IsConversational() {
		return model.ConfidenceConversational
	}
	if vector == nil {
		return model.ConfidenceNotFound
	}
	if reranker != nil {
		return level(*reranker, t.RerankHigh, t.RerankNeedsReview)
	}
	return level(*vector, t.VectorHigh, t.VectorNeedsReview)
}

// Calibrate applies CalibrateScores to the first chunk of an ordered result.
func Calibrate(chunks []model.Chunk, intent Intent, t Thresholds) model.Confidence {
	if len(chunks) == 0 {
		return CalibrateScores(nil, nil, intent, t)
	}
	top := chunks[0]
	vector := top.VectorScore
	return CalibrateScores(&vector, top.RerankerScore, intent, t)
}

func level(score, high, review float64) model.Confidence {
	switch {
	case score >= high:
		return model.ConfidenceHigh
	case score >= review:
		return model.ConfidenceNeedsReview
	default:
		return model.ConfidenceNotFound
	}
}
