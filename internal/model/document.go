package model

const DocumentStatusReady = "ready"

// StructuredFacts are key/value facts extracted from a document ahead of
// time, e.g. carrier, premium or policy dates.
type StructuredFacts map[string]string

type Document struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Facts     StructuredFacts `json:"facts,omitempty"`
	Ctime     int64           `json:"ctime"`
	Mtime     int64           `json:"mtime"`
}
