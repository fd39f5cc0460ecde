package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xxxsen/docqa/internal/model"
)

const (
	tierLRU   = "lru"
	tierRedis = "redis"
	tierDB    = "db"
)

func buildCacheKey(modelName, taskType, text string) model.EmbeddingKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	return model.EmbeddingKey{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: hex.EncodeToString(hash[:]),
	}
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
