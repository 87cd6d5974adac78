package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Host == "" {
		t.Error("expected Server.Host to be set")
	}
	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Server.BaseURL == "" {
		t.Error("expected Server.BaseURL to be set")
	}
	if cfg.Database.Name == "" {
		t.Error("expected Database.Name to be set")
	}
	if cfg.JWT.Secret == "" {
		t.Error("expected JWT.Secret to be set")
	}
	if cfg.Log.Level == "" {
		t.Error("expected Log.Level to be set")
	}
}

func TestConfig_DatabaseSettings(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Database.MaxOpenConns == 0 {
		t.Error("expected MaxOpenConns to be set")
	}
	if cfg.Database.MaxIdleConns == 0 {
		t.Error("expected MaxIdleConns to be set")
	}
	if cfg.Database.ConnMaxLifetime < time.Minute {
		t.Error("connection max lifetime should be at least 1 minute")
	}
}

func TestConfig_ChatDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Chat.ReplyLatency != 2500*time.Millisecond {
		t.Errorf("expected 2.5s reply latency, got %v", cfg.Chat.ReplyLatency)
	}
	if cfg.Chat.FallbackReply == "" {
		t.Error("expected a non-empty fallback reply")
	}
}

func TestConfig_TrackingDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	// Zero means mouse activity never decays.
	if cfg.Tracking.MouseIdleTimeout != 0 {
		t.Errorf("expected no idle timeout by default, got %v", cfg.Tracking.MouseIdleTimeout)
	}
	if cfg.Tracking.SessionTTL == 0 {
		t.Error("expected session TTL to be set")
	}
}

func TestConfig_AIConfiguration(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.AI.OpenAI.Model == "" {
		t.Error("expected OpenAI model to be set")
	}
	if cfg.AI.OpenAI.Temperature == 0 {
		t.Error("expected OpenAI temperature to be set")
	}
	if cfg.AI.OpenAI.MaxTokens == 0 {
		t.Error("expected OpenAI max tokens to be set")
	}
	if cfg.AI.OpenAI.Timeout == 0 {
		t.Error("expected AI timeout to be set")
	}
}

func TestConfig_SecurityDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Security.CORS.Enabled {
		t.Error("expected CORS to be enabled")
	}
	if len(cfg.Security.CORS.AllowedOrigins) == 0 {
		t.Error("expected allowed origins to be set")
	}
	if len(cfg.Security.CORS.AllowedMethods) == 0 {
		t.Error("expected allowed methods to be set")
	}
	if !cfg.Security.RateLimiting.Enabled {
		t.Error("expected rate limiting to be enabled")
	}
	if cfg.Security.RateLimiting.RequestsPerMinute == 0 {
		t.Error("expected requests per minute to be set")
	}
	if cfg.Security.RateLimiting.Burst == 0 {
		t.Error("expected burst to be set")
	}
}

func TestConfig_TracingDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Monitoring.Tracing.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Monitoring.Tracing.Endpoint == "" {
		t.Error("expected tracing endpoint to be set")
	}
	if cfg.Monitoring.Tracing.SampleRatio == 0 {
		t.Error("expected sample ratio to be set")
	}
}

func TestInitLogger_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "stdout"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Level = "invalid"
	cfg.Log.Output = "stdout"

	// Falls back to info level.
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with invalid level failed: %v", err)
	}
}

func TestInitLogger_TextFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with text format failed: %v", err)
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "file"
	cfg.Log.FilePath = filepath.Join(t.TempDir(), "chatdesk-test.log")

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with file output failed: %v", err)
	}
}

func TestInitLogger_BothOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "both"
	cfg.Log.FilePath = filepath.Join(t.TempDir(), "chatdesk-both.log")

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with both output failed: %v", err)
	}
}

func TestInitLogger_InvalidOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "invalid"

	// Falls back to stdout.
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with invalid output failed: %v", err)
	}
}
