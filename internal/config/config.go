package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings tree: HTTP front end, log
// service credentials, and the optional event archive.
type Config struct {
	HTTP    *HTTPConfig    `json:"http"`
	Log     *LogConfig     `json:"log"`
	Archive *ArchiveConfig `json:"archive"`
}

type HTTPConfig struct {
	Port        int           `json:"port"`
	Host        string        `json:"host"`
	ReadTimeout time.Duration `json:"read_timeout"`
	// WriteTimeout stays zero by default: subscribe responses are
	// long-lived streams and a server write deadline would sever them.
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LogConfig points at the append-only log service. Either BaseURL or
// Basin must be set; Token is always required.
type LogConfig struct {
	BaseURL string        `json:"base_url"`
	Basin   string        `json:"basin"`
	Token   string        `json:"token"`
	Wait    time.Duration `json:"wait"` // server-side long-poll budget
}

// Endpoint resolves the effective base URL.
func (l *LogConfig) Endpoint() string {
	if l.BaseURL != "" {
		return l.BaseURL
	}
	return fmt.Sprintf("https://%s.b.aws.s2.dev", l.Basin)
}

// ArchiveConfig controls the SQLite audit archive. An empty path
// disables archiving entirely.
type ArchiveConfig struct {
	Path string `json:"path"`
}

// DefaultConfig returns production defaults. The log token has no
// default; startup fails without one.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			ReadTimeout: 30 * time.Second,
		},
		Log: &LogConfig{
			Wait: time.Hour,
		},
		Archive: &ArchiveConfig{},
	}
}

// Validate rejects configurations that would fail at runtime. A
// missing log token is fatal here rather than a degraded service
// later.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout < 0 {
		return fmt.Errorf("HTTP write timeout cannot be negative")
	}

	if c.Log == nil {
		return fmt.Errorf("log service configuration is required")
	}
	if c.Log.Token == "" {
		return fmt.Errorf("log service token is required")
	}
	if c.Log.BaseURL == "" && c.Log.Basin == "" {
		return fmt.Errorf("log service base URL or basin is required")
	}
	if c.Log.Wait <= 0 {
		return fmt.Errorf("log wait budget must be positive")
	}

	if c.Archive == nil {
		return fmt.Errorf("archive configuration is required")
	}

	return nil
}

// LoadFromEnv overlays environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("READALONG_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("READALONG_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("READALONG_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("READALONG_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if baseURL := os.Getenv("READALONG_LOG_BASE_URL"); baseURL != "" {
		config.Log.BaseURL = baseURL
	}
	if basin := os.Getenv("READALONG_LOG_BASIN"); basin != "" {
		config.Log.Basin = basin
	}
	if token := os.Getenv("READALONG_LOG_TOKEN"); token != "" {
		config.Log.Token = token
	}
	if wait := os.Getenv("READALONG_LOG_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil {
			config.Log.Wait = d
		}
	}

	if path := os.Getenv("READALONG_ARCHIVE_PATH"); path != "" {
		config.Archive.Path = path
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	HTTP *struct {
		Port         int    `json:"port"`
		Host         string `json:"host"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Log *struct {
		BaseURL string `json:"base_url"`
		Basin   string `json:"basin"`
		Token   string `json:"token"`
		Wait    string `json:"wait"`
	} `json:"log"`
	Archive *struct {
		Path string `json:"path"`
	} `json:"archive"`
}

// LoadFromFile reads a JSON config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil && file.HTTP.ReadTimeout != "" {
			config.HTTP.ReadTimeout = d
		}
		if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil && file.HTTP.WriteTimeout != "" {
			config.HTTP.WriteTimeout = d
		}
	}

	if file.Log != nil {
		if file.Log.BaseURL != "" {
			config.Log.BaseURL = file.Log.BaseURL
		}
		if file.Log.Basin != "" {
			config.Log.Basin = file.Log.Basin
		}
		if file.Log.Token != "" {
			config.Log.Token = file.Log.Token
		}
		if d, err := time.ParseDuration(file.Log.Wait); err == nil && file.Log.Wait != "" {
			config.Log.Wait = d
		}
	}

	if file.Archive != nil {
		config.Archive.Path = file.Archive.Path
	}

	return config, nil
}

// LoadWithPrecedence resolves configuration as file > environment >
// defaults. A missing or unreadable file falls back silently; the
// token requirement is still enforced by Validate.
func LoadWithPrecedence(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}

	return config
}
