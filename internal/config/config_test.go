package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("Expected default output format 'json', got '%s'", cfg.DefaultOutputFormat)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RecentDays != 7 {
		t.Errorf("Expected recent days 7, got %d", cfg.RecentDays)
	}
	if cfg.LogLevel != "normal" {
		t.Errorf("Expected log level 'normal', got '%s'", cfg.LogLevel)
	}
	if cfg.OAuth.TokenURL == "" || len(cfg.OAuth.Scopes) == 0 {
		t.Errorf("Expected default OAuth endpoints, got %+v", cfg.OAuth)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"yaml output", func(c *Config) { c.DefaultOutputFormat = types.OutputFormatYAML }, ""},
		{"invalid output format", func(c *Config) { c.DefaultOutputFormat = "xml" }, "invalid output format"},
		{"max retries too high", func(c *Config) { c.MaxRetries = 11 }, "max retries must be between 0 and 10"},
		{"retry base delay too low", func(c *Config) { c.RetryBaseDelay = 50 }, "retry base delay"},
		{"request timeout zero", func(c *Config) { c.RequestTimeout = 0 }, "request timeout"},
		{"recent days zero", func(c *Config) { c.RecentDays = 0 }, "recent days"},
		{"poll interval too small", func(c *Config) { c.PollInterval = 1 }, "poll interval"},
		{"invalid log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = 2000
	cfg.RequestTimeout = 30
	cfg.PollInterval = 500
	cfg.RecentDays = 2

	if got := cfg.GetRetryBaseDelay(); got != 2*time.Second {
		t.Errorf("GetRetryBaseDelay() = %v", got)
	}
	if got := cfg.GetRequestTimeout(); got != 30*time.Second {
		t.Errorf("GetRequestTimeout() = %v", got)
	}
	if got := cfg.GetPollInterval(); got != 500*time.Millisecond {
		t.Errorf("GetPollInterval() = %v", got)
	}
	if got := cfg.GetRecentWindow(); got != 48*time.Hour {
		t.Errorf("GetRecentWindow() = %v", got)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", ConfigFileName)

	cfg := DefaultConfig()
	cfg.DefaultAccount = "work"
	cfg.DefaultOutputFormat = types.OutputFormatTable
	cfg.OAuth.ClientID = "client"

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected file permissions 0600, got %o", info.Mode().Perm())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("saved config is not JSON: %v", err)
	}
	if raw["defaultAccount"] != "work" {
		t.Errorf("defaultAccount = %v", raw["defaultAccount"])
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.DefaultAccount != "work" || loaded.DefaultOutputFormat != types.OutputFormatTable || loaded.OAuth.ClientID != "client" {
		t.Errorf("Loaded config mismatch: %+v", loaded)
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.MaxRetries != DefaultConfig().MaxRetries {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
}

func TestLoadFrom_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"maxRetries": 99}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ECMDOCS_DEFAULT_ACCOUNT", "env-account")
	t.Setenv("ECMDOCS_OUTPUT_FORMAT", "yaml")
	t.Setenv("ECMDOCS_MAX_RETRIES", "5")
	t.Setenv("ECMDOCS_RECENT_DAYS", "14")
	t.Setenv("ECMDOCS_POLL_INTERVAL", "not-a-number")
	t.Setenv("ECMDOCS_COLOR_OUTPUT", "no")
	t.Setenv("ECMDOCS_OAUTH_CLIENT_ID", "env-client")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.DefaultAccount != "env-account" {
		t.Errorf("DefaultAccount = %q", cfg.DefaultAccount)
	}
	if cfg.DefaultOutputFormat != types.OutputFormatYAML {
		t.Errorf("DefaultOutputFormat = %q", cfg.DefaultOutputFormat)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.RecentDays != 14 {
		t.Errorf("RecentDays = %d", cfg.RecentDays)
	}
	if cfg.PollInterval != 250 {
		t.Errorf("unparseable PollInterval should keep default, got %d", cfg.PollInterval)
	}
	if cfg.ColorOutput {
		t.Error("ColorOutput should be false")
	}
	if cfg.OAuth.ClientID != "env-client" {
		t.Errorf("OAuth.ClientID = %q", cfg.OAuth.ClientID)
	}
}

func TestConfigSet(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(*Config) bool
		wantErr bool
	}{
		{"defaultAccount", "work", func(c *Config) bool { return c.DefaultAccount == "work" }, false},
		{"recentDays", "3", func(c *Config) bool { return c.RecentDays == 3 }, false},
		{"oauth.scopes", "a, b", func(c *Config) bool { return len(c.OAuth.Scopes) == 2 && c.OAuth.Scopes[1] == "b" }, false},
		{"colorOutput", "off", func(c *Config) bool { return !c.ColorOutput }, false},
		{"maxRetries", "many", nil, true},
		{"maxRetries", "50", nil, true},
		{"noSuchKey", "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Set(%s, %s) did not apply: %+v", tt.key, tt.value, cfg)
			}
		})
	}
}

func TestResolveCacheDir(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ResolveCacheDir("/cfg"); got != filepath.Join("/cfg", "cache") {
		t.Errorf("ResolveCacheDir default = %s", got)
	}
	cfg.CacheDir = "/elsewhere"
	if got := cfg.ResolveCacheDir("/cfg"); got != "/elsewhere" {
		t.Errorf("ResolveCacheDir explicit = %s", got)
	}
}

func TestGetConfigDir_Env(t *testing.T) {
	t.Setenv("ECMDOCS_CONFIG_DIR", "/tmp/ecmdocs-test")
	dir, err := GetConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/tmp/ecmdocs-test" {
		t.Errorf("GetConfigDir() = %s", dir)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" on ", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseBool(tt.input); got != tt.expected {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
