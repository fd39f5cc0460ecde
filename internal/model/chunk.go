package model

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Chunk is one retrieved passage. Components never modify a chunk they
// received; they return copies with extra fields set.
type Chunk struct {
	ID            string       `json:"id"`
	DocumentID    string       `json:"document_id,omitempty"`
	DocumentName  string       `json:"document_name,omitempty"`
	Content       string       `json:"content"`
	PageNumber    int          `json:"page_number"`
	BoundingBox   *BoundingBox `json:"bounding_box,omitempty"`
	VectorScore   float64      `json:"vector_score"`
	FTSScore      *float64     `json:"fts_score,omitempty"`
	CombinedScore float64      `json:"combined_score"`
	RerankerScore *float64     `json:"reranker_score,omitempty"`
}

// Score returns the score that currently orders the chunk: the reranker
// score once present, the combined score before that.
func (c Chunk) Score() float64 {
	if c.RerankerScore != nil {
		return *c.RerankerScore
	}
	return c.CombinedScore
}

type RetrievalResult struct {
	Chunks     []Chunk    `json:"chunks"`
	Confidence Confidence `json:"confidence"`
}
