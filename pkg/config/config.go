// Package config provides configuration loading and validation for replan.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrNegativeRetries   = errors.New("max retries must not be negative")
	ErrNegativeThreshold = errors.New("conflict threshold must not be negative")
	ErrNegativeLimit     = errors.New("commit limit must not be negative")
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidLogFormat  = errors.New("invalid log format")
)

// Default configuration values.
const (
	defaultMaxRetries        = 3
	defaultConflictThreshold = 0
	defaultCacheDirectory    = "/tmp/replan-cache"
)

// Config holds all configuration for replan.
type Config struct {
	Planner       PlannerConfig       `mapstructure:"planner"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PlannerConfig holds planning-specific configuration.
type PlannerConfig struct {
	// Policy is the path to the classification policy file.
	Policy string `mapstructure:"policy"`
	// MaxRetries bounds the verify-repair loop.
	MaxRetries int `mapstructure:"max_retries"`
	// ConflictThreshold tolerates that many overlapping squash writes
	// per group before warnings are emitted.
	ConflictThreshold int `mapstructure:"conflict_threshold"`
	// Limit caps how many commits are loaded; zero means unlimited.
	Limit int `mapstructure:"limit"`
}

// CacheConfig holds history cache configuration.
type CacheConfig struct {
	Directory string `mapstructure:"directory"`
	Enabled   bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ObservabilityConfig holds tracing and metrics export configuration.
type ObservabilityConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
	Enabled  bool   `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("replan")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/replan")
	}

	viperCfg.SetEnvPrefix("REPLAN")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Planner defaults.
	viperCfg.SetDefault("planner.policy", "")
	viperCfg.SetDefault("planner.max_retries", defaultMaxRetries)
	viperCfg.SetDefault("planner.conflict_threshold", defaultConflictThreshold)
	viperCfg.SetDefault("planner.limit", 0)

	// Cache defaults.
	viperCfg.SetDefault("cache.enabled", true)
	viperCfg.SetDefault("cache.directory", defaultCacheDirectory)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
	viperCfg.SetDefault("logging.output", "stderr")

	// Observability defaults.
	viperCfg.SetDefault("observability.enabled", false)
	viperCfg.SetDefault("observability.endpoint", "localhost:4317")
	viperCfg.SetDefault("observability.insecure", true)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Planner.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeRetries, config.Planner.MaxRetries)
	}

	if config.Planner.ConflictThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeThreshold, config.Planner.ConflictThreshold)
	}

	if config.Planner.Limit < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLimit, config.Planner.Limit)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}
