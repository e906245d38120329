// ABOUTME: Configuration loading and parsing for fixai-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fixai-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Services ServicesConfig `yaml:"services"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig holds the chat-completion backend configuration
type ModelConfig struct {
	BaseURL   string `yaml:"base_url"`
	ModelID   string `yaml:"model_id"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// AgentConfig holds per-turn budget configuration
type AgentConfig struct {
	MaxModelCalls          int `yaml:"max_model_calls"`
	MaxInputTokens         int `yaml:"max_input_tokens"`
	TokenEstimationDivisor int `yaml:"token_estimation_divisor"`
	ToolResultMaxChars     int `yaml:"tool_result_max_chars"`

	MaxTurnDuration    time.Duration `yaml:"-"`
	MaxTurnDurationRaw string        `yaml:"max_turn_duration"`
	ToolTimeout        time.Duration `yaml:"-"`
	ToolTimeoutRaw     string        `yaml:"tool_timeout"`
}

// ServicesConfig holds default base URLs for the diagnostic tool providers.
// Organizations may override these per-org in the store.
type ServicesConfig struct {
	CodeParserBaseURL      string `yaml:"code_parser_base_url"`
	MetricsExplorerBaseURL string `yaml:"metrics_explorer_base_url"`
	LogsExplorerBaseURL    string `yaml:"logs_explorer_base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults match the original deployment values and apply when the YAML
// omits a field.
const (
	DefaultMaxModelCalls          = 15
	DefaultMaxInputTokens         = 80_000
	DefaultTokenEstimationDivisor = 4
	DefaultToolResultMaxChars     = 12_000
	DefaultMaxTurnDuration        = 5 * time.Minute
	DefaultToolTimeout            = 60 * time.Second
	DefaultModelTimeout           = 120 * time.Second
	DefaultModelMaxTokens         = 4096
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Model.BaseURL == "" {
		return fmt.Errorf("model.base_url is required")
	}
	if c.Model.ModelID == "" {
		return fmt.Errorf("model.model_id is required")
	}
	if c.Agent.MaxModelCalls < 1 {
		return fmt.Errorf("agent.max_model_calls must be at least 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Agent.MaxModelCalls == 0 {
		c.Agent.MaxModelCalls = DefaultMaxModelCalls
	}
	if c.Agent.MaxInputTokens == 0 {
		c.Agent.MaxInputTokens = DefaultMaxInputTokens
	}
	if c.Agent.TokenEstimationDivisor == 0 {
		c.Agent.TokenEstimationDivisor = DefaultTokenEstimationDivisor
	}
	if c.Agent.ToolResultMaxChars == 0 {
		c.Agent.ToolResultMaxChars = DefaultToolResultMaxChars
	}
	if c.Agent.MaxTurnDuration == 0 {
		c.Agent.MaxTurnDuration = DefaultMaxTurnDuration
	}
	if c.Agent.ToolTimeout == 0 {
		c.Agent.ToolTimeout = DefaultToolTimeout
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = DefaultModelTimeout
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = DefaultModelMaxTokens
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.MaxTurnDurationRaw != "" {
		cfg.Agent.MaxTurnDuration, err = time.ParseDuration(cfg.Agent.MaxTurnDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing max_turn_duration %q: %w", cfg.Agent.MaxTurnDurationRaw, err)
		}
	}

	if cfg.Agent.ToolTimeoutRaw != "" {
		cfg.Agent.ToolTimeout, err = time.ParseDuration(cfg.Agent.ToolTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing tool_timeout %q: %w", cfg.Agent.ToolTimeoutRaw, err)
		}
	}

	if cfg.Model.TimeoutRaw != "" {
		cfg.Model.Timeout, err = time.ParseDuration(cfg.Model.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing model timeout %q: %w", cfg.Model.TimeoutRaw, err)
		}
	}

	return nil
}
