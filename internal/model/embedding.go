package model

// EmbeddingKey identifies a cached vector: the model that produced it, the
// task type it was requested for and the sha256 of the embedded text.
type EmbeddingKey struct {
	ModelName   string `json:"model_name"`
	TaskType    string `json:"task_type"`
	ContentHash string `json:"content_hash"`
}

func (k EmbeddingKey) String() string {
	return "embed:" + k.ModelName + ":" + k.TaskType + ":" + k.ContentHash
}

type CachedEmbedding struct {
	EmbeddingKey
	Vector []float32 `json:"vector"`
	Ctime  int64     `json:"ctime"`
}
