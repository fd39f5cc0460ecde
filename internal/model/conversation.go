package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}

// Source is a citation derived from a retrieved chunk.
type Source struct {
	ChunkID      string       `json:"chunk_id"`
	DocumentID   string       `json:"document_id,omitempty"`
	DocumentName string       `json:"document_name,omitempty"`
	PageNumber   int          `json:"page_number"`
	BoundingBox  *BoundingBox `json:"bounding_box,omitempty"`
	Snippet      string       `json:"snippet"`
	Score        float64      `json:"score"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	Sources        []Source   `json:"sources,omitempty"`
	Confidence     Confidence `json:"confidence,omitempty"`
	Ctime          int64      `json:"ctime"`
}
