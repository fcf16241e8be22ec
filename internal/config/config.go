package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for Archetype
type Config struct {
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Fallback LLMConfig      `json:"fallback" yaml:"fallback"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Server   ServerConfig   `json:"server" yaml:"server"`
}

// LLMConfig holds configuration for an OpenAI-compatible endpoint
type LLMConfig struct {
	URL         string  `json:"url" yaml:"url"`
	APIKey      string  `json:"api_key" yaml:"api_key"`
	Model       string  `json:"model" yaml:"model"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Timeout     int     `json:"timeout" yaml:"timeout"` // seconds
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Path is used for SQLite (local runs)
	Path string `json:"path" yaml:"path"`
	// PostgreSQL connection, preferred when set
	PostgresURL string `json:"postgres_url" yaml:"postgres_url"`
}

// SearchConfig holds the evolutionary search parameters
type SearchConfig struct {
	DataFilename        string  `json:"data_filename" yaml:"data_filename"`
	ValidSize           int     `json:"valid_size" yaml:"valid_size"`
	TestSize            int     `json:"test_size" yaml:"test_size"`
	ShuffleSeed         uint64  `json:"shuffle_seed" yaml:"shuffle_seed"`
	NGeneration         int     `json:"n_generation" yaml:"n_generation"`
	MaxWorkers          int     `json:"max_workers" yaml:"max_workers"`
	DebugMax            int     `json:"debug_max" yaml:"debug_max"`
	Model               string  `json:"model" yaml:"model"`
	K                   int     `json:"k" yaml:"k"`
	MinAccuracy         float64 `json:"min_accuracy" yaml:"min_accuracy"`
	TaskTimeout         int     `json:"task_timeout" yaml:"task_timeout"` // seconds
	BootstrapSamples    int     `json:"bootstrap_samples" yaml:"bootstrap_samples"`
	ConfidenceLevel     float64 `json:"confidence_level" yaml:"confidence_level"`
	InitialEval         bool    `json:"initial_eval" yaml:"initial_eval"`
	DesignerTemperature float64 `json:"designer_temperature" yaml:"designer_temperature"`
	MutationParallelism int     `json:"mutation_parallelism" yaml:"mutation_parallelism"`
}

// ServerConfig holds read API server configuration
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".archetype")

	return &Config{
		LLM: LLMConfig{
			URL:         "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.5,
			Timeout:     120,
		},
		Fallback: LLMConfig{
			URL:         "",
			Model:       "gemini-2.0-flash",
			MaxTokens:   4096,
			Temperature: 0.5,
			Timeout:     120,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "archetype.db"),
			PostgresURL: "",
		},
		Search: SearchConfig{
			DataFilename:        "mmlu.csv",
			ValidSize:           128,
			TestSize:            800,
			ShuffleSeed:         0,
			NGeneration:         10,
			MaxWorkers:          48,
			DebugMax:            3,
			Model:               "gpt-4o-mini",
			K:                   7,
			MinAccuracy:         0.01,
			TaskTimeout:         300,
			BootstrapSamples:    100000,
			ConfidenceLevel:     0.95,
			InitialEval:         true,
			DesignerTemperature: 0.8,
			MutationParallelism: 4,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envUint64(key string, target *uint64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// Load loads configuration from the config file and environment variables
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := decodeFile(configPath, data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", configPath, err)
		}
	}

	applyEnv(cfg)

	if cfg.Database.PostgresURL == "" && cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	// Primary LLM; OPENAI_API_KEY is honoured when no dedicated key is set
	envString("OPENAI_API_KEY", &cfg.LLM.APIKey)
	envString("ARCHETYPE_LLM_URL", &cfg.LLM.URL)
	envString("ARCHETYPE_LLM_API_KEY", &cfg.LLM.APIKey)
	envString("ARCHETYPE_LLM_MODEL", &cfg.LLM.Model)
	envInt("ARCHETYPE_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	envFloat("ARCHETYPE_LLM_TEMPERATURE", &cfg.LLM.Temperature)
	envInt("ARCHETYPE_LLM_TIMEOUT", &cfg.LLM.Timeout)

	// Fallback LLM
	envString("GEMINI_API_KEY", &cfg.Fallback.APIKey)
	envString("ARCHETYPE_FALLBACK_URL", &cfg.Fallback.URL)
	envString("ARCHETYPE_FALLBACK_API_KEY", &cfg.Fallback.APIKey)
	envString("ARCHETYPE_FALLBACK_MODEL", &cfg.Fallback.Model)
	envInt("ARCHETYPE_FALLBACK_TIMEOUT", &cfg.Fallback.Timeout)

	envString("ARCHETYPE_DB_PATH", &cfg.Database.Path)
	envString("ARCHETYPE_POSTGRES_URL", &cfg.Database.PostgresURL)

	envString("ARCHETYPE_DATA_FILENAME", &cfg.Search.DataFilename)
	envInt("ARCHETYPE_VALID_SIZE", &cfg.Search.ValidSize)
	envInt("ARCHETYPE_TEST_SIZE", &cfg.Search.TestSize)
	envUint64("ARCHETYPE_SHUFFLE_SEED", &cfg.Search.ShuffleSeed)
	envInt("ARCHETYPE_N_GENERATION", &cfg.Search.NGeneration)
	envInt("ARCHETYPE_MAX_WORKERS", &cfg.Search.MaxWorkers)
	envInt("ARCHETYPE_DEBUG_MAX", &cfg.Search.DebugMax)
	envString("ARCHETYPE_MODEL", &cfg.Search.Model)
	envInt("ARCHETYPE_K", &cfg.Search.K)
	envFloat("ARCHETYPE_MIN_ACCURACY", &cfg.Search.MinAccuracy)
	envInt("ARCHETYPE_TASK_TIMEOUT", &cfg.Search.TaskTimeout)
	envInt("ARCHETYPE_BOOTSTRAP_SAMPLES", &cfg.Search.BootstrapSamples)
	envFloat("ARCHETYPE_CONFIDENCE_LEVEL", &cfg.Search.ConfidenceLevel)
	envBool("ARCHETYPE_INITIAL_EVAL", &cfg.Search.InitialEval)
	envFloat("ARCHETYPE_DESIGNER_TEMPERATURE", &cfg.Search.DesignerTemperature)
	envInt("ARCHETYPE_MUTATION_PARALLELISM", &cfg.Search.MutationParallelism)

	envString("ARCHETYPE_SERVER_HOST", &cfg.Server.Host)
	envInt("ARCHETYPE_SERVER_PORT", &cfg.Server.Port)
}

// IsFallbackConfigured returns true if a secondary provider is configured
func (c *Config) IsFallbackConfigured() bool {
	return c.Fallback.URL != "" && c.Fallback.APIKey != ""
}

// UsePostgres returns true when the postgres store should be used
func (c *Config) UsePostgres() bool {
	return c.Database.PostgresURL != ""
}

// TaskTimeoutDuration returns the per-task forward timeout
func (c *SearchConfig) TaskTimeoutDuration() time.Duration {
	return time.Duration(c.TaskTimeout) * time.Second
}

// TimeoutDuration returns the request timeout of the provider
func (c *LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Masked returns a copy with secrets replaced, for display
func (c *Config) Masked() *Config {
	cp := *c
	cp.LLM.APIKey = mask(c.LLM.APIKey)
	cp.Fallback.APIKey = mask(c.Fallback.APIKey)
	if c.Database.PostgresURL != "" {
		if u, err := url.Parse(c.Database.PostgresURL); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "****")
			}
			cp.Database.PostgresURL = u.String()
		}
	}
	return &cp
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func validateLLM(prefix string, c LLMConfig, errs []string) []string {
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, prefix+" temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		errs = append(errs, prefix+" max_tokens must be positive")
	}
	if c.Timeout < 1 {
		errs = append(errs, prefix+" timeout must be positive")
	}
	return errs
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	// LLM validation
	errs = validateLLM("LLM", c.LLM, errs)
	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}

	// Fallback validation (optional but validate if set)
	if c.Fallback.URL != "" {
		if !isValidURL(c.Fallback.URL) {
			errs = append(errs, "fallback URL must be a valid URL")
		}
		errs = validateLLM("fallback", c.Fallback, errs)
	}

	// Database validation
	if c.Database.PostgresURL == "" && c.Database.Path == "" {
		errs = append(errs, "either PostgreSQL URL or database path is required")
	}
	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	// Search validation
	s := c.Search
	if s.K < 1 {
		errs = append(errs, "search k must be at least 1")
	}
	if s.MaxWorkers < 1 {
		errs = append(errs, "search max_workers must be at least 1")
	}
	if s.MutationParallelism < 1 {
		errs = append(errs, "search mutation_parallelism must be at least 1")
	}
	if s.ValidSize < 0 {
		errs = append(errs, "search valid_size must not be negative")
	}
	if s.TestSize < 0 {
		errs = append(errs, "search test_size must not be negative")
	}
	if s.NGeneration < 0 {
		errs = append(errs, "search n_generation must not be negative")
	}
	if s.DebugMax < 0 {
		errs = append(errs, "search debug_max must not be negative")
	}
	if s.ConfidenceLevel <= 0 || s.ConfidenceLevel >= 1 {
		errs = append(errs, "search confidence_level must be between 0 and 1 (exclusive)")
	}
	if s.BootstrapSamples < 1 {
		errs = append(errs, "search bootstrap_samples must be positive")
	}
	if s.MinAccuracy < 0 || s.MinAccuracy > 1 {
		errs = append(errs, "search min_accuracy must be between 0 and 1")
	}
	if s.TaskTimeout < 1 {
		errs = append(errs, "search task_timeout must be positive")
	}
	if s.DesignerTemperature < 0 || s.DesignerTemperature > 2 {
		errs = append(errs, "search designer_temperature must be between 0 and 2")
	}
	if s.Model == "" {
		errs = append(errs, "search model is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("ARCHETYPE_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	// Check ~/.config/archetype/config.json first
	configPath := filepath.Join(homeDir, ".config", "archetype", "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	// Check ~/.archetype/config.json
	altPath := filepath.Join(homeDir, ".archetype", "config.json")
	if _, err := os.Stat(altPath); err == nil {
		return altPath
	}

	return configPath
}
