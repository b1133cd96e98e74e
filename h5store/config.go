package h5store

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/robert-malhotra/go-h5store/internal/policy"
	"github.com/robert-malhotra/go-h5store/internal/props"
)

// EnvPrefix prefixes environment variables read by LoadConfig, e.g.
// H5STORE_COMPRESSION_LEVEL.
const EnvPrefix = "H5STORE"

// Config holds file-level defaults.
type Config struct {
	CompressionLevel  int    `mapstructure:"compression_level"`
	DefaultExtendable bool   `mapstructure:"default_extendable"`
	ChunkThreshold    uint64 `mapstructure:"chunk_threshold"`
	ExtendThreshold   uint64 `mapstructure:"extend_threshold"`
	CreateMode        string `mapstructure:"create_mode"`
	ReadOnly          bool   `mapstructure:"read_only"`
	LogLevel          string `mapstructure:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	p := policy.Default()
	return Config{
		ChunkThreshold:  p.ChunkThreshold,
		ExtendThreshold: p.ExtendThreshold,
		CreateMode:      ModeOpen.String(),
		LogLevel:        "info",
	}
}

// LoadConfig reads configuration from the YAML file at path, when path is
// not empty, and from H5STORE_* environment variables, which take
// precedence.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("compression_level", def.CompressionLevel)
	v.SetDefault("default_extendable", def.DefaultExtendable)
	v.SetDefault("chunk_threshold", def.ChunkThreshold)
	v.SetDefault("extend_threshold", def.ExtendThreshold)
	v.SetDefault("create_mode", def.CreateMode)
	v.SetDefault("read_only", def.ReadOnly)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and mode names.
func (c Config) Validate() error {
	var errs []error
	if c.CompressionLevel < 0 || c.CompressionLevel > props.MaxCompressionLevel {
		errs = append(errs, fmt.Errorf("compression_level must be in 0..%d, got %d",
			props.MaxCompressionLevel, c.CompressionLevel))
	}
	if _, err := ParseCreateMode(c.CreateMode); err != nil {
		errs = append(errs, fmt.Errorf("create_mode: %w", err))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}
