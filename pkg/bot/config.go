package bot

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete printerbot configuration.
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Converter ConverterConfig `yaml:"converter"`
	Printer   PrinterConfig   `yaml:"printer"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Agent     AgentConfig     `yaml:"agent"`
	Health    HealthConfig    `yaml:"health"`
}

// BotConfig configures the chat bot itself.
type BotConfig struct {
	// TokenFile holds the chat API token, one line.
	TokenFile string `yaml:"token_file"`

	// AuthPasswordFile holds the shared print password, one line.
	// It may contain a bcrypt hash instead of a plaintext password.
	AuthPasswordFile string `yaml:"auth_password_file"`

	// SpoolDir is where uploaded and converted files live.
	SpoolDir string `yaml:"spool_dir"`

	// MaxFileSize is the upload size cap in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// MaxConcurrentUpdates bounds how many chat updates are handled at
	// once.
	MaxConcurrentUpdates int `yaml:"max_concurrent_updates"`
}

// ConverterConfig configures the document conversion tool.
type ConverterConfig struct {
	Binary        string        `yaml:"binary"`
	PDFInfoBinary string        `yaml:"pdfinfo_binary"`
	Timeout       time.Duration `yaml:"timeout"`
}

// PrinterConfig configures the print spooler commands.
type PrinterConfig struct {
	PrintBinary  string        `yaml:"print_binary"`
	StatusBinary string        `yaml:"status_binary"`
	QueueBinary  string        `yaml:"queue_binary"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DispatchConfig configures the print worker pool.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DatabaseConfig configures optional PostgreSQL persistence. With an
// empty DSN, sessions and jobs are held in memory only.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// File, when set, duplicates log output into the given file.
	File string `yaml:"file"`
}

// AgentConfig configures the optional MCP agent surface.
type AgentConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// HealthConfig configures the optional health endpoint listener.
type HealthConfig struct {
	Address string `yaml:"address"`
}

// Default configuration values.
const (
	DefaultTokenFile        = "./token"
	DefaultAuthPasswordFile = "./auth_password"
	DefaultSpoolDir         = "printed_files"

	// DefaultMaxFileSize caps uploads at 64 MiB.
	DefaultMaxFileSize int64 = 64 * 1024 * 1024

	DefaultMaxConcurrentUpdates = 8
	DefaultMaxOpenConns         = 25
	DefaultAgentName            = "printerbot"
)

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled
// by the operator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Bot.TokenFile == "" {
		cfg.Bot.TokenFile = DefaultTokenFile
	}
	if cfg.Bot.AuthPasswordFile == "" {
		cfg.Bot.AuthPasswordFile = DefaultAuthPasswordFile
	}
	if cfg.Bot.SpoolDir == "" {
		cfg.Bot.SpoolDir = DefaultSpoolDir
	}
	if cfg.Bot.MaxFileSize == 0 {
		cfg.Bot.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Bot.MaxConcurrentUpdates == 0 {
		cfg.Bot.MaxConcurrentUpdates = DefaultMaxConcurrentUpdates
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = DefaultAgentName
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.TokenFile == "" {
		errs = append(errs, "bot.token_file is required")
	}
	if c.Bot.AuthPasswordFile == "" {
		errs = append(errs, "bot.auth_password_file is required")
	}
	if c.Bot.MaxFileSize < 0 {
		errs = append(errs, "bot.max_file_size must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	// The MCP surface is served by the health listener; without an
	// address the enabled agent would never be reachable.
	if c.Agent.Enabled && c.Health.Address == "" {
		errs = append(errs, "agent.enabled requires health.address")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
