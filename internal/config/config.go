// Package config defines the reloadable configuration snapshot for the
// recall core (spec §6/§9 "ambient/global state" design note): a process-wide
// struct swapped atomically so an in-flight request keeps using the snapshot
// it started with.
package config

import (
	"encoding/json"
	"os"
	"time"
)

type RecallMode string

const (
	ModeRoleplay      RecallMode = "roleplay"
	ModeGeneral       RecallMode = "general"
	ModeKnowledgeBase RecallMode = "knowledge_base"
)

type EmbeddingMode string

const (
	EmbeddingNone  EmbeddingMode = "none"
	EmbeddingAPI   EmbeddingMode = "api"
	EmbeddingLocal EmbeddingMode = "local"
)

type ExtractorMode string

const (
	ExtractorRules    ExtractorMode = "rules"
	ExtractorAdaptive ExtractorMode = "adaptive"
	ExtractorLLM      ExtractorMode = "llm"
)

type ContradictionStrategy string

const (
	StrategyRule  ContradictionStrategy = "rule"
	StrategyLLM   ContradictionStrategy = "llm"
	StrategyMixed ContradictionStrategy = "mixed"
	StrategyAuto  ContradictionStrategy = "auto"
)

type GraphBackend string

const (
	BackendFile   GraphBackend = "file"
	BackendSQLite GraphBackend = "sqlite"
)

// LayerConfig controls one of the eleven retrieval layers.
type LayerConfig struct {
	Enabled bool    `json:"enabled"`
	TopK    int     `json:"top_k"`
	Weight  float64 `json:"weight"`
}

// Config mirrors every key enumerated in SPEC_FULL.md §6.
type Config struct {
	// Modes
	RecallMode RecallMode `json:"recall_mode"`

	// Embedding
	EmbeddingAPIKey    string        `json:"embedding_api_key"`
	EmbeddingBase      string        `json:"embedding_base"`
	EmbeddingModel     string        `json:"embedding_model"`
	EmbeddingDimension int           `json:"embedding_dimension"`
	EmbeddingMode      EmbeddingMode `json:"recall_embedding_mode"`

	// LLM
	LLMAPIKey  string        `json:"llm_api_key"`
	LLMBase    string        `json:"llm_base"`
	LLMModel   string        `json:"llm_model"`
	LLMTimeout time.Duration `json:"llm_timeout"`

	// Retriever
	Layers               map[int]LayerConfig `json:"layers"`
	TripleRecallEnabled  bool                `json:"triple_recall_enabled"`
	TripleRecallRRFK     int                 `json:"triple_recall_rrf_k"`
	FallbackEnabled      bool                `json:"fallback_enabled"`
	FallbackWorkers      int                 `json:"fallback_workers"`
	FallbackMaxResults   int                 `json:"fallback_max_results"`
	FineRankThreshold    int                 `json:"fine_rank_threshold"`

	// Vector ANN
	VectorIVFNList int `json:"vector_ivf_nlist"`
	VectorIVFNProbe int `json:"vector_ivf_nprobe"`

	// Temporal
	TemporalGraphEnabled bool         `json:"temporal_graph_enabled"`
	TemporalGraphBackend GraphBackend `json:"temporal_graph_backend"`
	SQLiteBusyTimeoutMS  int          `json:"sqlite_busy_timeout_ms"`
	SelfLoopAllowedPredicates []string `json:"self_loop_allowed_predicates"`

	// Contradiction
	ContradictionDetectionEnabled bool                  `json:"contradiction_detection_enabled"`
	ContradictionStrategy         ContradictionStrategy `json:"contradiction_strategy"`
	ContradictionAutoResolve      bool                  `json:"contradiction_auto_resolve"`
	ContradictionSimilarityThresh float64               `json:"contradiction_similarity_threshold"`

	// Extract
	ExtractorMode      ExtractorMode `json:"smart_extractor_mode"`
	DedupJaccardThresh float64       `json:"dedup_jaccard_threshold"`
	DedupSemanticHigh  float64       `json:"dedup_semantic_high"`
	DedupSemanticLow   float64       `json:"dedup_semantic_low"`
	DedupLLMEnabled    bool          `json:"dedup_llm_enabled"`

	// Context
	ContextMaxPerType    int     `json:"context_max_per_type"`
	ContextMaxTotal      int     `json:"context_max_total"`
	ContextDecayDays     float64 `json:"context_decay_days"`
	ContextDecayRate     float64 `json:"context_decay_rate"`
	ContextMinConfidence float64 `json:"context_min_confidence"`

	// Budget
	BudgetDailyLimit  int64 `json:"budget_daily_limit"`
	BudgetHourlyLimit int64 `json:"budget_hourly_limit"`

	// Ambient (new)
	LogLevel  string `json:"recall_log_level"`
	LogFormat string `json:"recall_log_format"`
	DataRoot  string `json:"recall_data_root"`
}

// Default returns a Config with the roleplay-mode defaults, matching the
// original source's ModeConfig.from_env default fallback.
func Default() *Config {
	return &Config{
		RecallMode:         ModeRoleplay,
		EmbeddingMode:      EmbeddingNone,
		LLMTimeout:         30 * time.Second,
		Layers:             defaultLayers(),
		TripleRecallEnabled: true,
		TripleRecallRRFK:    60,
		FallbackEnabled:     true,
		FallbackWorkers:     4,
		FallbackMaxResults:  200,
		FineRankThreshold:   50,
		VectorIVFNList:      16,
		VectorIVFNProbe:     4,
		TemporalGraphEnabled: true,
		TemporalGraphBackend: BackendFile,
		SQLiteBusyTimeoutMS:  5000,
		ContradictionDetectionEnabled: true,
		ContradictionStrategy:         StrategyAuto,
		ContradictionAutoResolve:      false,
		ContradictionSimilarityThresh: 0.6,
		ExtractorMode:      ExtractorAdaptive,
		DedupJaccardThresh: 0.5,
		DedupSemanticHigh:  0.9,
		DedupSemanticLow:   0.5,
		DedupLLMEnabled:    false,
		ContextMaxPerType:    3,
		ContextMaxTotal:      20,
		ContextDecayDays:     7,
		ContextDecayRate:     0.1,
		ContextMinConfidence: 0.2,
		BudgetDailyLimit:     200000,
		BudgetHourlyLimit:    50000,
		LogLevel:  "info",
		LogFormat: "console",
		DataRoot:  "./data",
	}
}

func defaultLayers() map[int]LayerConfig {
	m := make(map[int]LayerConfig, 11)
	for i := 1; i <= 11; i++ {
		m[i] = LayerConfig{Enabled: true, TopK: 50, Weight: 1.0}
	}
	// L10/L11 are expensive; off by default until an LLM/cross-encoder is configured.
	m[10] = LayerConfig{Enabled: false, TopK: 50, Weight: 1.0}
	m[11] = LayerConfig{Enabled: false, TopK: 50, Weight: 1.0}
	return m
}

// Load reads a Config from a JSON file, filling any absent fields from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, atomically (temp file + rename).
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
