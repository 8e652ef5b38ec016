package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_FailsValidationWithoutToken(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without a log token must not validate")
	}

	cfg.Log.Token = "secret"
	cfg.Log.Basin = "classroom"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Log.Token = "secret"
		cfg.Log.BaseURL = "https://log.example.com"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"negative write timeout", func(c *Config) { c.HTTP.WriteTimeout = -time.Second }},
		{"missing token", func(c *Config) { c.Log.Token = "" }},
		{"missing endpoint", func(c *Config) { c.Log.BaseURL = ""; c.Log.Basin = "" }},
		{"zero wait", func(c *Config) { c.Log.Wait = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation failure")
			}
		})
	}
}

func TestLogConfig_Endpoint(t *testing.T) {
	l := &LogConfig{Basin: "classroom"}
	if got := l.Endpoint(); got != "https://classroom.b.aws.s2.dev" {
		t.Errorf("basin endpoint = %s", got)
	}

	l.BaseURL = "http://localhost:9000"
	if got := l.Endpoint(); got != "http://localhost:9000" {
		t.Errorf("explicit base URL should win, got %s", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("READALONG_HTTP_PORT", "9090")
	t.Setenv("READALONG_LOG_TOKEN", "env-secret")
	t.Setenv("READALONG_LOG_BASIN", "classroom")
	t.Setenv("READALONG_LOG_WAIT", "30m")
	t.Setenv("READALONG_ARCHIVE_PATH", "/tmp/readalong.db")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Log.Token != "env-secret" || cfg.Log.Basin != "classroom" {
		t.Errorf("log config not loaded from env: %+v", cfg.Log)
	}
	if cfg.Log.Wait != 30*time.Minute {
		t.Errorf("Wait = %v, want 30m", cfg.Log.Wait)
	}
	if cfg.Archive.Path != "/tmp/readalong.db" {
		t.Errorf("Archive.Path = %s", cfg.Archive.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("env config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 8888, "read_timeout": "10s"},
		"log": {"base_url": "http://localhost:9000", "token": "file-secret", "wait": "5m"},
		"archive": {"path": "./audit.db"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.HTTP.Port != 8888 || cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("HTTP config not applied: %+v", cfg.HTTP)
	}
	if cfg.Log.Token != "file-secret" || cfg.Log.Wait != 5*time.Minute {
		t.Errorf("log config not applied: %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("file config should validate: %v", err)
	}
}

func TestLoadWithPrecedence_MissingFileFallsBack(t *testing.T) {
	t.Setenv("READALONG_LOG_TOKEN", "env-secret")
	t.Setenv("READALONG_LOG_BASIN", "classroom")

	cfg := LoadWithPrecedence("/nonexistent/config.json")
	if cfg.Log.Token != "env-secret" {
		t.Error("missing file should fall back to environment config")
	}
}
