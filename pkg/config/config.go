// Package config holds the env-driven configuration for the CogniGuard
// pipeline. Every tunable reads a COGNIGUARD_* variable with a sensible
// default; invalid combinations fail validation at startup.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// EmbeddingBackend selects how the semantic stage gets embeddings.
type EmbeddingBackend string

const (
	// BackendNone disables the semantic stage; every message carries a
	// degraded semantic signal.
	BackendNone EmbeddingBackend = "none"
	// BackendLocal runs an ONNX model in-process.
	BackendLocal EmbeddingBackend = "local"
	// BackendRemote calls an Ollama-compatible embedding endpoint.
	BackendRemote EmbeddingBackend = "remote"
)

// StoreBackend selects where conversation state lives.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
)

// Config holds all pipeline settings.
type Config struct {
	// === Server ===
	Port string // HTTP listen port (serve mode)

	// === Verdict thresholds (0.0 - 1.0) ===
	FlagThreshold  float64 // score at or above this flags
	BlockThreshold float64 // score at or above this blocks

	// === Lexical stage ===
	UnambiguousThreshold float64 // lexical confidence that short-circuits to block
	FuzzyThreshold       float64 // token-overlap floor for fuzzy phrase matches
	SignatureSetPaths    []string

	// === Semantic stage ===
	EmbeddingBackend    EmbeddingBackend
	ModelPath           string // local ONNX embedding model
	ToxicityModel       string // local ONNX toxicity model, empty disables
	OnnxLibraryPath     string // onnxruntime shared library, empty uses the Go backend
	EmbeddingURL        string // remote embedding service base URL
	EmbeddingModel      string // remote embedding model name
	SimilarityThreshold float64
	ArchetypePath       string // YAML archetype corpus, empty uses built-ins
	ScoringTimeout      time.Duration
	RetryBackoff        time.Duration
	ScoringSlots        int    // max concurrent semantic stage executions

	// === Conversation tracker ===
	WindowSize       int
	ElevateThreshold float64
	SuspectThreshold float64
	HysteresisTurns  int
	CooldownTurns    int
	DriftTurns       int
	DriftThreshold   float64
	ConversationTTL  time.Duration

	// === Store ===
	StoreBackend  StoreBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// === Audit ===
	AuditLogPath string // JSONL verdict trail, empty disables
	PostgresDSN  string // Postgres verdict sink, empty disables
}

// NewDefaultConfig reads the environment and applies defaults (the
// balanced profile).
func NewDefaultConfig() *Config {
	return &Config{
		Port: GetEnv("COGNIGUARD_PORT", "8337"),

		FlagThreshold:  GetEnvFloat("COGNIGUARD_FLAG_THRESHOLD", 0.35),
		BlockThreshold: GetEnvFloat("COGNIGUARD_BLOCK_THRESHOLD", 0.70),

		UnambiguousThreshold: GetEnvFloat("COGNIGUARD_UNAMBIGUOUS_THRESHOLD", 0.90),
		FuzzyThreshold:       GetEnvFloat("COGNIGUARD_FUZZY_THRESHOLD", 0.75),
		SignatureSetPaths:    GetEnvSlice("COGNIGUARD_SIGNATURE_SETS", nil),

		EmbeddingBackend:    detectEmbeddingBackend(),
		ModelPath:           GetEnv("COGNIGUARD_MODEL_PATH", ""),
		ToxicityModel:       GetEnv("COGNIGUARD_TOXICITY_MODEL", ""),
		OnnxLibraryPath:     GetEnv("COGNIGUARD_ONNX_LIB", ""),
		EmbeddingURL:        GetEnv("COGNIGUARD_EMBEDDING_URL", ""),
		EmbeddingModel:      GetEnv("COGNIGUARD_EMBEDDING_MODEL", "all-minilm"),
		SimilarityThreshold: GetEnvFloat("COGNIGUARD_SIMILARITY_THRESHOLD", 0.65),
		ArchetypePath:       GetEnv("COGNIGUARD_ARCHETYPES", ""),
		ScoringTimeout:      GetEnvDuration("COGNIGUARD_SCORING_TIMEOUT", 10*time.Second),
		RetryBackoff:        GetEnvDuration("COGNIGUARD_RETRY_BACKOFF", 250*time.Millisecond),
		ScoringSlots:        GetEnvInt("COGNIGUARD_SCORING_SLOTS", 32),

		WindowSize:       clampInt(GetEnvInt("COGNIGUARD_WINDOW_SIZE", 15), 1, 1000),
		ElevateThreshold: GetEnvFloat("COGNIGUARD_ELEVATE_THRESHOLD", 0.35),
		SuspectThreshold: GetEnvFloat("COGNIGUARD_SUSPECT_THRESHOLD", 0.65),
		HysteresisTurns:  GetEnvInt("COGNIGUARD_HYSTERESIS_TURNS", 2),
		CooldownTurns:    GetEnvInt("COGNIGUARD_COOLDOWN_TURNS", 5),
		DriftTurns:       GetEnvInt("COGNIGUARD_DRIFT_TURNS", 3),
		DriftThreshold:   GetEnvFloat("COGNIGUARD_DRIFT_THRESHOLD", 0.45),
		ConversationTTL:  GetEnvDuration("COGNIGUARD_CONVERSATION_TTL", 30*time.Minute),

		StoreBackend:  StoreBackend(GetEnv("COGNIGUARD_STORE", string(StoreMemory))),
		RedisAddr:     GetEnv("COGNIGUARD_REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("COGNIGUARD_REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("COGNIGUARD_REDIS_DB", 0),

		AuditLogPath: GetEnv("COGNIGUARD_AUDIT_LOG", ""),
		PostgresDSN:  GetEnv("COGNIGUARD_POSTGRES_DSN", ""),
	}
}

// detectEmbeddingBackend picks the semantic backend: explicit setting
// first, then whichever resource is configured.
func detectEmbeddingBackend() EmbeddingBackend {
	if b := os.Getenv("COGNIGUARD_EMBEDDING_BACKEND"); b != "" {
		return EmbeddingBackend(b)
	}
	if os.Getenv("COGNIGUARD_MODEL_PATH") != "" {
		return BackendLocal
	}
	if os.Getenv("COGNIGUARD_EMBEDDING_URL") != "" {
		return BackendRemote
	}
	return BackendNone
}

// NewHighSecurityConfig lowers thresholds and lengthens memory: more
// blocks, more false positives.
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.FlagThreshold = 0.20
	cfg.BlockThreshold = 0.55
	cfg.ElevateThreshold = 0.25
	cfg.SuspectThreshold = 0.50
	cfg.CooldownTurns = 8
	return cfg
}

// NewHighUsabilityConfig raises thresholds to minimize false positives.
func NewHighUsabilityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.FlagThreshold = 0.50
	cfg.BlockThreshold = 0.80
	cfg.ElevateThreshold = 0.45
	cfg.SuspectThreshold = 0.75
	return cfg
}

// ForProfile returns the named profile, or an error for unknown names.
func ForProfile(name string) (*Config, error) {
	switch name {
	case "", "default", "balanced":
		return NewDefaultConfig(), nil
	case "high-security", "strict":
		return NewHighSecurityConfig(), nil
	case "high-usability", "permissive":
		return NewHighUsabilityConfig(), nil
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	checkUnit := func(name string, v float64) {
		if v <= 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be in (0,1], got %g", name, v))
		}
	}
	checkUnit("COGNIGUARD_FLAG_THRESHOLD", c.FlagThreshold)
	checkUnit("COGNIGUARD_BLOCK_THRESHOLD", c.BlockThreshold)
	checkUnit("COGNIGUARD_UNAMBIGUOUS_THRESHOLD", c.UnambiguousThreshold)
	checkUnit("COGNIGUARD_FUZZY_THRESHOLD", c.FuzzyThreshold)
	checkUnit("COGNIGUARD_SIMILARITY_THRESHOLD", c.SimilarityThreshold)
	checkUnit("COGNIGUARD_ELEVATE_THRESHOLD", c.ElevateThreshold)
	checkUnit("COGNIGUARD_SUSPECT_THRESHOLD", c.SuspectThreshold)
	checkUnit("COGNIGUARD_DRIFT_THRESHOLD", c.DriftThreshold)

	if c.FlagThreshold >= c.BlockThreshold {
		problems = append(problems, "flag threshold must be below block threshold")
	}
	if c.ElevateThreshold >= c.SuspectThreshold {
		problems = append(problems, "elevate threshold must be below suspect threshold")
	}
	if c.WindowSize < 1 {
		problems = append(problems, "window size must be at least 1")
	}
	if c.HysteresisTurns < 1 || c.CooldownTurns < 1 || c.DriftTurns < 1 {
		problems = append(problems, "hysteresis, cooldown and drift turn counts must be at least 1")
	}
	if c.ScoringSlots < 1 {
		problems = append(problems, "scoring slots must be at least 1")
	}

	switch c.EmbeddingBackend {
	case BackendNone:
	case BackendLocal:
		if c.ModelPath == "" {
			problems = append(problems, "local embedding backend requires COGNIGUARD_MODEL_PATH")
		}
	case BackendRemote:
		if c.EmbeddingURL == "" {
			problems = append(problems, "remote embedding backend requires COGNIGUARD_EMBEDDING_URL")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding backend %q", c.EmbeddingBackend))
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "redis store requires COGNIGUARD_REDIS_ADDR")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store backend %q", c.StoreBackend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate calls Validate and exits on failure. Call at startup before
// building the pipeline.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	log.Println("[STARTUP] configuration validated")
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvDuration returns the duration value (Go syntax, e.g. "10s") of an
// environment variable or a default value.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable
// or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
