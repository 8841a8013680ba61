package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.FlagThreshold != 0.35 || cfg.BlockThreshold != 0.70 {
		t.Errorf("default thresholds: flag=%g block=%g", cfg.FlagThreshold, cfg.BlockThreshold)
	}
	if cfg.WindowSize != 15 || cfg.CooldownTurns != 5 {
		t.Errorf("default tracker values: window=%d cooldown=%d", cfg.WindowSize, cfg.CooldownTurns)
	}
	if cfg.EmbeddingBackend != BackendNone {
		t.Errorf("backend without model env should be none, got %s", cfg.EmbeddingBackend)
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name      string
		wantFlag  float64
		wantBlock float64
		wantErr   bool
	}{
		{name: "default", wantFlag: 0.35, wantBlock: 0.70},
		{name: "balanced", wantFlag: 0.35, wantBlock: 0.70},
		{name: "high-security", wantFlag: 0.20, wantBlock: 0.55},
		{name: "strict", wantFlag: 0.20, wantBlock: 0.55},
		{name: "high-usability", wantFlag: 0.50, wantBlock: 0.80},
		{name: "permissive", wantFlag: 0.50, wantBlock: 0.80},
		{name: "paranoid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ForProfile(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown profile")
				}
				return
			}
			if err != nil {
				t.Fatalf("ForProfile: %v", err)
			}
			if cfg.FlagThreshold != tt.wantFlag || cfg.BlockThreshold != tt.wantBlock {
				t.Errorf("thresholds: flag=%g block=%g, want %g/%g",
					cfg.FlagThreshold, cfg.BlockThreshold, tt.wantFlag, tt.wantBlock)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("profile must validate: %v", err)
			}
		})
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "flag at or above block",
			mutate:  func(c *Config) { c.FlagThreshold = 0.70 },
			wantMsg: "flag threshold must be below block threshold",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.BlockThreshold = 1.5 },
			wantMsg: "COGNIGUARD_BLOCK_THRESHOLD",
		},
		{
			name:    "elevate at or above suspect",
			mutate:  func(c *Config) { c.ElevateThreshold = 0.65 },
			wantMsg: "elevate threshold must be below suspect threshold",
		},
		{
			name:    "local backend without model",
			mutate:  func(c *Config) { c.EmbeddingBackend = BackendLocal },
			wantMsg: "COGNIGUARD_MODEL_PATH",
		},
		{
			name:    "remote backend without url",
			mutate:  func(c *Config) { c.EmbeddingBackend = BackendRemote },
			wantMsg: "COGNIGUARD_EMBEDDING_URL",
		},
		{
			name:    "unknown embedding backend",
			mutate:  func(c *Config) { c.EmbeddingBackend = "quantum" },
			wantMsg: "unknown embedding backend",
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.StoreBackend = "etcd" },
			wantMsg: "unknown store backend",
		},
		{
			name:    "redis store without addr",
			mutate:  func(c *Config) { c.StoreBackend = StoreRedis; c.RedisAddr = "" },
			wantMsg: "COGNIGUARD_REDIS_ADDR",
		},
		{
			name:    "zero scoring slots",
			mutate:  func(c *Config) { c.ScoringSlots = 0 },
			wantMsg: "scoring slots",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestBackendDetection(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv("COGNIGUARD_EMBEDDING_BACKEND", "remote")
		t.Setenv("COGNIGUARD_MODEL_PATH", "/models/minilm.onnx")
		if b := detectEmbeddingBackend(); b != BackendRemote {
			t.Errorf("backend = %s, want remote", b)
		}
	})
	t.Run("model path implies local", func(t *testing.T) {
		t.Setenv("COGNIGUARD_MODEL_PATH", "/models/minilm.onnx")
		if b := detectEmbeddingBackend(); b != BackendLocal {
			t.Errorf("backend = %s, want local", b)
		}
	})
	t.Run("url implies remote", func(t *testing.T) {
		t.Setenv("COGNIGUARD_EMBEDDING_URL", "http://localhost:11434")
		if b := detectEmbeddingBackend(); b != BackendRemote {
			t.Errorf("backend = %s, want remote", b)
		}
	})
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CG_TEST_STR", "hello")
	t.Setenv("CG_TEST_FLOAT", "0.42")
	t.Setenv("CG_TEST_INT", "17")
	t.Setenv("CG_TEST_BOOL", "true")
	t.Setenv("CG_TEST_DUR", "1500ms")
	t.Setenv("CG_TEST_SLICE", "a, b ,,c")
	t.Setenv("CG_TEST_BAD", "not-a-number")

	if v := GetEnv("CG_TEST_STR", "x"); v != "hello" {
		t.Errorf("GetEnv = %q", v)
	}
	if v := GetEnv("CG_TEST_MISSING", "fallback"); v != "fallback" {
		t.Errorf("GetEnv default = %q", v)
	}
	if v := GetEnvFloat("CG_TEST_FLOAT", 0); v != 0.42 {
		t.Errorf("GetEnvFloat = %g", v)
	}
	if v := GetEnvFloat("CG_TEST_BAD", 0.9); v != 0.9 {
		t.Errorf("GetEnvFloat should fall back on parse failure, got %g", v)
	}
	if v := GetEnvInt("CG_TEST_INT", 0); v != 17 {
		t.Errorf("GetEnvInt = %d", v)
	}
	if v := GetEnvBool("CG_TEST_BOOL", false); !v {
		t.Error("GetEnvBool = false")
	}
	if v := GetEnvDuration("CG_TEST_DUR", 0); v != 1500*time.Millisecond {
		t.Errorf("GetEnvDuration = %v", v)
	}
	if v := GetEnvSlice("CG_TEST_SLICE", nil); len(v) != 3 || v[0] != "a" || v[1] != "b" || v[2] != "c" {
		t.Errorf("GetEnvSlice = %v", v)
	}

	if v := clampInt(5, 1, 3); v != 3 {
		t.Errorf("clampInt high = %d", v)
	}
	if v := clampInt(0, 1, 3); v != 1 {
		t.Errorf("clampInt low = %d", v)
	}
}
