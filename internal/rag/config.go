package rag

import "time"

const (
	defaultVectorWeight       = 0.7
	defaultCandidateLimit     = 20
	defaultRerankTopN         = 5
	defaultRerankTimeout      = 5 * time.Second
	defaultPerDocumentLimit   = 5
	defaultMergeCap           = 10
	defaultMaxParallel        = 4
	defaultHistoryTokenBudget = 6000
	defaultHistoryMaxMessages = 10
	defaultMaxSources         = 3
	defaultGenerationTimeout  = 30 * time.Second
)

// Thresholds maps scores onto confidence levels. Reranker scores live on a
// narrower, lower scale than cosine similarity, so each scale has its own
// pair of cut-offs.
type Thresholds struct {
	VectorHigh        float64
	VectorNeedsReview float64
	RerankHigh        float64
	RerankNeedsReview float64
}

// Config holds every tunable of the pipeline. It is built once and passed by
// value to each component.
type Config struct {
	VectorWeight       float64
	EnableLexical      bool
	CandidateLimit     int
	RerankTopN         int
	RerankTimeout      time.Duration
	PerDocumentLimit   int
	MergeCap           int
	MaxParallel        int
	HistoryTokenBudget int
	HistoryMaxMessages int
	MaxSources         int
	GenerationTimeout  time.Duration
	Thresholds         Thresholds
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		VectorHigh:        0.75,
		VectorNeedsReview: 0.50,
		RerankHigh:        0.30,
		RerankNeedsReview: 0.10,
	}
}

func DefaultConfig() Config {
	return Config{
		VectorWeight:       defaultVectorWeight,
		EnableLexical:      true,
		CandidateLimit:     defaultCandidateLimit,
		RerankTopN:         defaultRerankTopN,
		RerankTimeout:      defaultRerankTimeout,
		PerDocumentLimit:   defaultPerDocumentLimit,
		MergeCap:           defaultMergeCap,
		MaxParallel:        defaultMaxParallel,
		HistoryTokenBudget: defaultHistoryTokenBudget,
		HistoryMaxMessages: defaultHistoryMaxMessages,
		MaxSources:         defaultMaxSources,
		GenerationTimeout:  defaultGenerationTimeout,
		Thresholds:         DefaultThresholds(),
	}
}

// Normalized replaces non-positive sizes and durations with defaults. The
// vector weight is clamped to [0, 1]; zero is a legal weight. Thresholds are
// kept as given.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.VectorWeight < 0 {
		c.VectorWeight = 0
	}
	if c.VectorWeight > 1 {
		c.VectorWeight = 1
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.RerankTopN <= 0 {
		c.RerankTopN = d.RerankTopN
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = d.RerankTimeout
	}
	if c.PerDocumentLimit <= 0 {
		c.PerDocumentLimit = d.PerDocumentLimit
	}
	if c.MergeCap <= 0 {
		c.MergeCap = d.MergeCap
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = d.MaxParallel
	}
	if c.HistoryTokenBudget <= 0 {
		c.HistoryTokenBudget = d.HistoryTokenBudget
	}
	if c.HistoryMaxMessages <= 0 {
		c.HistoryMaxMessages = d.HistoryMaxMessages
	}
	if c.MaxSources <= 0 {
		c.MaxSources = d.MaxSources
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = d.GenerationTimeout
	}
	return c
}
