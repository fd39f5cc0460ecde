package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/docqa/internal/rag"
)

type Config struct {
	Port              int              `json:"port"`
	JWTSecret         string           `json:"jwt_secret"`
	Database          DatabaseConfig   `json:"database"`
	Redis             RedisConfig      `json:"redis"`
	LogConfig         logger.LogConfig `json:"log_config"`
	AI                AIConfig         `json:"ai"`
	Retrieval         RetrievalConfig  `json:"retrieval"`
	EmbedCache        EmbedCacheConfig `json:"embed_cache"`
	CORSAllowlist     []string         `json:"cors_allowlist"`
	RateLimitWindowMs int              `json:"rate_limit_window_ms"`
	CacheCleanupCron  string           `json:"cache_cleanup_cron"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// RedisConfig is optional; an empty Addr disables the shared embedding cache.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// AIEntry names one provider instance. Data is passed to the provider
// factory as-is.
type AIEntry struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators    []AIEntry `json:"generators"`
	Embedders     []AIEntry `json:"embedders"`
	Reranker      *AIEntry  `json:"reranker"`
	EmbedTaskType string    `json:"embed_task_type"`
}

type EmbedCacheConfig struct {
	LRUSize         int `json:"lru_size"`
	LRUTTLSeconds   int `json:"lru_ttl_seconds"`
	RedisTTLSeconds int `json:"redis_ttl_seconds"`
	DBMaxAgeDays    int `json:"db_max_age_days"`
}

// RetrievalConfig mirrors rag.Config. Unset fields keep their defaults, so
// an explicit zero (e.g. vector_weight 0) stays distinguishable.
type RetrievalConfig struct {
	VectorWeight        *float64 `json:"vector_weight"`
	EnableLexical       *bool    `json:"enable_lexical"`
	CandidateLimit      int      `json:"candidate_limit"`
	RerankTopN          int      `json:"rerank_top_n"`
	RerankTimeoutMs     int      `json:"rerank_timeout_ms"`
	PerDocumentLimit    int      `json:"per_document_limit"`
	MergeCap            int      `json:"merge_cap"`
	MaxParallel         int      `json:"max_parallel"`
	HistoryTokenBudget  int      `json:"history_token_budget"`
	HistoryMaxMessages  int      `json:"history_max_messages"`
	MaxSources          int      `json:"max_sources"`
	GenerationTimeoutMs int      `json:"generation_timeout_ms"`
	VectorHigh          *float64 `json:"vector_high"`
	VectorNeedsReview   *float64 `json:"vector_needs_review"`
	RerankHigh          *float64 `json:"rerank_high"`
	RerankNeedsReview   *float64 `json:"rerank_needs_review"`
}

// Build converts the section into the immutable pipeline config.
func (r RetrievalConfig) Build() rag.Config {
	cfg := rag.DefaultConfig()
	if r.VectorWeight != nil {
		cfg.VectorWeight = *r.VectorWeight
	}
	if r.EnableLexical != nil {
		cfg.EnableLexical = *r.EnableLexical
	}
	cfg.CandidateLimit = r.CandidateLimit
	cfg.RerankTopN = r.RerankTopN
	cfg.RerankTimeout = time.Duration(r.RerankTimeoutMs) * time.Millisecond
	cfg.PerDocumentLimit = r.PerDocumentLimit
	cfg.MergeCap = r.MergeCap
	cfg.MaxParallel = r.MaxParallel
	cfg.HistoryTokenBudget = r.HistoryTokenBudget
	cfg.HistoryMaxMessages = r.HistoryMaxMessages
	cfg.MaxSources = r.MaxSources
	cfg.GenerationTimeout = time.Duration(r.GenerationTimeoutMs) * time.Millisecond
	setIf(&cfg.Thresholds.VectorHigh, r.VectorHigh)
	setIf(&cfg.Thresholds.VectorNeedsReview, r.VectorNeedsReview)
	setIf(&cfg.Thresholds.RerankHigh, r.RerankHigh)
	setIf(&cfg.Thresholds.RerankNeedsReview, r.RerankNeedsReview)
	return cfg.Normalized()
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func (r RetrievalConfig) validate() error {
	if r.VectorWeight != nil && (*r.VectorWeight < 0 || *r.VectorWeight > 1) {
		return fmt.Errorf("retrieval.vector_weight must be within [0, 1]")
	}
	d := rag.DefaultThresholds()
	if err := checkThresholds("vector", valueOr(r.VectorHigh, d.VectorHigh), valueOr(r.VectorNeedsReview, d.VectorNeedsReview)); err != nil {
		return err
	}
	return checkThresholds("rerank", valueOr(r.RerankHigh, d.RerankHigh), valueOr(r.RerankNeedsReview, d.RerankNeedsReview))
}

// checkThresholds requires 0 <= needs_review <= high and high > 0. A zero
// high cut-off would label every answer high.
func checkThresholds(scale string, high, needsReview float64) error {
	if high <= 0 {
		return fmt.Errorf("retrieval.%s_high must be positive", scale)
	}
	if needsReview < 0 {
		return fmt.Errorf("retrieval.%s_needs_review must not be negative", scale)
	}
	if needsReview > high {
		return fmt.Errorf("retrieval.%s_needs_review must not exceed retrieval.%s_high", scale, scale)
	}
	return nil
}

func valueOr(v *float64, d float64) float64 {
	if v == nil {
		return d
	}
	return *v
}

func validateEntries(section string, entries []AIEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("ai.%s requires at least one entry", section)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Provider) == "" || strings.TrimSpace(e.Model) == "" {
			return fmt.Errorf("ai.%s[%d]: provider and model are required", section, i)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if err := validateEntries("generators", cfg.AI.Generators); err != nil {
		return nil, err
	}
	if err := validateEntries("embedders", cfg.AI.Embedders); err != nil {
		return nil, err
	}
	if r := cfg.AI.Reranker; r != nil && (r.Provider == "" || r.Model == "") {
		return nil, fmt.Errorf("ai.reranker: provider and model are required")
	}
	if cfg.AI.EmbedTaskType == "" {
		cfg.AI.EmbedTaskType = "RETRIEVAL_QUERY"
	}
	if err := cfg.Retrieval.validate(); err != nil {
		return nil, err
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.EmbedCache.LRUSize == 0 {
		cfg.EmbedCache.LRUSize = 1024
	}
	if cfg.EmbedCache.LRUTTLSeconds == 0 {
		cfg.EmbedCache.LRUTTLSeconds = 600
	}
	if cfg.EmbedCache.RedisTTLSeconds == 0 {
		cfg.EmbedCache.RedisTTLSeconds = 86400
	}
	if cfg.EmbedCache.DBMaxAgeDays == 0 {
		cfg.EmbedCache.DBMaxAgeDays = 30
	}
	if cfg.RateLimitWindowMs == 0 {
		cfg.RateLimitWindowMs = 1000
	}
	if cfg.CacheCleanupCron == "" {
		cfg.CacheCleanupCron = "0 3 * * *"
	}
	return &cfg, nil
}
