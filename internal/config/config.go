package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "ECMDOCS_"
)

// Config holds application configuration
type Config struct {
	// DefaultAccount is the account used when --account is not given
	DefaultAccount string `json:"defaultAccount"`

	// DefaultOutputFormat is the default output format (json, table, yaml)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// CacheDir holds downloaded content, thumbnails and the download index.
	// Empty means <config dir>/cache.
	CacheDir string `json:"cacheDir"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout bounds one background fetch, in seconds
	RequestTimeout int `json:"requestTimeout"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// ColorOutput enables color output for table format
	ColorOutput bool `json:"colorOutput"`

	// RecentDays is the window of the recent documents query
	RecentDays int `json:"recentDays"`

	// PollInterval is how often the CLI re-polls a loading listing, in milliseconds
	PollInterval int `json:"pollInterval"`

	OAuth OAuthConfig `json:"oauth"`
}

// OAuthConfig configures the OAuth client used for cloud accounts
type OAuthConfig struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	AuthURL      string   `json:"authUrl"`
	TokenURL     string   `json:"tokenUrl"`
	APIBaseURL   string   `json:"apiBaseUrl"`
	Scopes       []string `json:"scopes"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultOutputFormat: types.OutputFormatJSON,
		MaxRetries:          utils.DefaultMaxRetries,
		RetryBaseDelay:      utils.DefaultRetryDelayMs,
		RequestTimeout:      60,
		LogLevel:            "normal",
		ColorOutput:         true,
		RecentDays:          utils.DefaultRecentDays,
		PollInterval:        250,
		OAuth: OAuthConfig{
			AuthURL:    utils.DefaultCloudAuthURL,
			TokenURL:   utils.DefaultCloudTokenURL,
			APIBaseURL: utils.DefaultCloudAPIBase,
			Scopes:     append([]string(nil), utils.DefaultCloudScopes...),
		},
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads configuration from an explicit file path
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(configPath); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_ACCOUNT"); v != "" {
		c.DefaultAccount = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	envInt(EnvPrefix+"MAX_RETRIES", &c.MaxRetries)
	envInt(EnvPrefix+"RETRY_BASE_DELAY", &c.RetryBaseDelay)
	envInt(EnvPrefix+"REQUEST_TIMEOUT", &c.RequestTimeout)
	envInt(EnvPrefix+"RECENT_DAYS", &c.RecentDays)
	envInt(EnvPrefix+"POLL_INTERVAL", &c.PollInterval)
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "OAUTH_CLIENT_ID"); v != "" {
		c.OAuth.ClientID = v
	}
	if v := os.Getenv(EnvPrefix + "OAUTH_CLIENT_SECRET"); v != "" {
		c.OAuth.ClientSecret = v
	}
	if v := os.Getenv(EnvPrefix + "API_BASE_URL"); v != "" {
		c.OAuth.APIBaseURL = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Save saves the configuration to the default config file
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to configPath
func (c *Config) SaveTo(configPath string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.DefaultOutputFormat {
	case types.OutputFormatJSON, types.OutputFormatTable, types.OutputFormatYAML:
	default:
		return fmt.Errorf("invalid output format: %s (must be 'json', 'table' or 'yaml')", c.DefaultOutputFormat)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if c.RecentDays < 1 || c.RecentDays > 365 {
		return fmt.Errorf("recent days must be between 1 and 365, got: %d", c.RecentDays)
	}

	if c.PollInterval < 10 || c.PollInterval > 60000 {
		return fmt.Errorf("poll interval must be between 10ms and 60000ms, got: %d", c.PollInterval)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// Set assigns one field by its JSON name, as used by 'config set'
func (c *Config) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, nil
	}

	var err error
	switch key {
	case "defaultAccount":
		c.DefaultAccount = value
	case "defaultOutputFormat":
		c.DefaultOutputFormat = types.OutputFormat(value)
	case "cacheDir":
		c.CacheDir = value
	case "maxRetries":
		c.MaxRetries, err = atoi()
	case "retryBaseDelay":
		c.RetryBaseDelay, err = atoi()
	case "requestTimeout":
		c.RequestTimeout, err = atoi()
	case "recentDays":
		c.RecentDays, err = atoi()
	case "pollInterval":
		c.PollInterval, err = atoi()
	case "logLevel":
		c.LogLevel = value
	case "colorOutput":
		c.ColorOutput = parseBool(value)
	case "oauth.clientId":
		c.OAuth.ClientID = value
	case "oauth.clientSecret":
		c.OAuth.ClientSecret = value
	case "oauth.authUrl":
		c.OAuth.AuthURL = value
	case "oauth.tokenUrl":
		c.OAuth.TokenURL = value
	case "oauth.apiBaseUrl":
		c.OAuth.APIBaseURL = value
	case "oauth.scopes":
		c.OAuth.Scopes = strings.Fields(strings.ReplaceAll(value, ",", " "))
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetPollInterval returns the listing re-poll interval as a duration
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// GetRecentWindow returns the recent documents window
func (c *Config) GetRecentWindow() time.Duration {
	return time.Duration(c.RecentDays) * 24 * time.Hour
}

// ResolveCacheDir returns CacheDir or its default under configDir
func (c *Config) ResolveCacheDir(configDir string) string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Join(configDir, "cache")
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "ecmdocs"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
