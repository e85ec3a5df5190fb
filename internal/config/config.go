package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion conversation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	DefaultLanguage      string
	MaxConversationTurns int

	LLMProvider    string
	LLMBaseURL     string
	LLMModel       string
	LLMAPIKey      string
	AnthropicKey   string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeout     time.Duration

	EmbeddingModel string
	EmbeddingDim   int

	DatabaseURL string

	QdrantURL        string
	QdrantCollection string

	FusekiURL     string
	FusekiDataset string
	FusekiTimeout time.Duration

	ContextBudget       time.Duration
	ContextVectorLimit  int
	ContextGraphFacts   int
	SimilarityThreshold float64

	ExtractionEnabled         bool
	ExtractionTimeout         time.Duration
	ExtractionConfidenceFloor float64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "companion"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,

		DefaultLanguage:      envOrDefault("DEFAULT_LANGUAGE", "es"),
		MaxConversationTurns: 50,

		LLMProvider: envOrDefault("LLM_PROVIDER", "auto"),
		// vLLM's OpenAI-compatible server is the default local backend.
		LLMBaseURL:     envOrDefault("LLM_BASE_URL", "http://localhost:8000/v1"),
		LLMModel:       envOrDefault("LLM_MODEL", "Qwen/Qwen2-7B-Instruct"),
		LLMAPIKey:      trimmedEnv("LLM_API_KEY"),
		AnthropicKey:   trimmedEnv("ANTHROPIC_API_KEY"),
		LLMMaxTokens:   150,
		LLMTemperature: 0.7,
		LLMTimeout:     10 * time.Second,

		EmbeddingModel: envOrDefault("EMBEDDING_MODEL", "paraphrase-multilingual-MiniLM-L12-v2"),
		EmbeddingDim:   384,

		DatabaseURL: trimmedEnv("DATABASE_URL"),

		QdrantURL:        trimmedEnv("QDRANT_URL"),
		QdrantCollection: envOrDefault("QDRANT_COLLECTION", "conversations"),

		FusekiURL:     trimmedEnv("FUSEKI_URL"),
		FusekiDataset: envOrDefault("FUSEKI_DATASET", "emorobcare"),
		FusekiTimeout: 5 * time.Second,

		ContextBudget:       500 * time.Millisecond,
		ContextVectorLimit:  5,
		ContextGraphFacts:   3,
		SimilarityThreshold: 0.7,

		ExtractionEnabled:         true,
		ExtractionTimeout:         30 * time.Second,
		ExtractionConfidenceFloor: 0.5,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConversationTurns, err = intFromEnv("MAX_CONVERSATION_TURNS", cfg.MaxConversationTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.FusekiTimeout, err = durationFromEnv("FUSEKI_TIMEOUT", cfg.FusekiTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextBudget, err = durationFromEnv("CONTEXT_BUDGET", cfg.ContextBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextVectorLimit, err = intFromEnv("CONTEXT_VECTOR_LIMIT", cfg.ContextVectorLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextGraphFacts, err = intFromEnv("CONTEXT_GRAPH_FACTS", cfg.ContextGraphFacts)
	if err != nil {
		return Config{}, err
	}
	cfg.SimilarityThreshold, err = floatFromEnv("SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionEnabled, err = boolFromEnv("EXTRACTION_ENABLED", cfg.ExtractionEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionTimeout, err = durationFromEnv("EXTRACTION_TIMEOUT", cfg.ExtractionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionConfidenceFloor, err = floatFromEnv("EXTRACTION_CONFIDENCE_FLOOR", cfg.ExtractionConfidenceFloor)
	if err != nil {
		return Config{}, err
	}

	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if cfg.MaxConversationTurns <= 0 {
		return Config{}, fmt.Errorf("MAX_CONVERSATION_TURNS must be positive")
	}
	if cfg.ContextBudget <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_BUDGET must be positive")
	}
	if cfg.ExtractionTimeout <= 0 {
		return Config{}, fmt.Errorf("EXTRACTION_TIMEOUT must be positive")
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return Config{}, fmt.Errorf("SIMILARITY_THRESHOLD must be in [0,1]")
	}
	if cfg.ExtractionConfidenceFloor < 0 || cfg.ExtractionConfidenceFloor > 1 {
		return Config{}, fmt.Errorf("EXTRACTION_CONFIDENCE_FLOOR must be in [0,1]")
	}
	switch cfg.DefaultLanguage {
	case "es", "en":
	default:
		return Config{}, fmt.Errorf("DEFAULT_LANGUAGE must be \"es\" or \"en\", got %q", cfg.DefaultLanguage)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
}
