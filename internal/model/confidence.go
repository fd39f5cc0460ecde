package model

type Confidence string

const (
	ConfidenceHigh           Confidence = "high"
	ConfidenceNeedsReview    Confidence = "needs_review"
	ConfidenceNotFound       Confidence = "not_found"
	ConfidenceConversational Confidence = "conversational"
)
