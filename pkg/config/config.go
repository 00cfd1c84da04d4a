// Package config loads nestedsetctl configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/henderiw/nestedset/pkg/store/badgerstore"
	"github.com/henderiw/nestedset/pkg/store/memstore"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidBackend      = errors.New("invalid store backend")
	ErrMissingPath         = errors.New("store path is required for the badger backend")
	ErrInvalidValueLogSize = errors.New("invalid value log size")
	ErrInvalidLockTimeout  = errors.New("lock timeout must not be negative")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("invalid log format")
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// badger refuses value log files outside [1MB, 2GB).
const (
	minValueLogSize = 1 << 20
	maxValueLogSize = 2 << 30
)

type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type StoreConfig struct {
	Backend      string `mapstructure:"backend"`
	Path         string `mapstructure:"path"`
	SyncWrites   bool   `mapstructure:"sync_writes"`
	ValueLogSize string `mapstructure:"value_log_size"`
}

type EngineConfig struct {
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	VerifyMutations bool          `mapstructure:"verify_mutations"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from configPath, or from config.yaml in the
// usual locations when configPath is empty, overlaid with NESTEDSET_*
// environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.nestedset")
		viperCfg.AddConfigPath("/etc/nestedset")
	}

	viperCfg.SetEnvPrefix("NESTEDSET")
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

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("store.backend", BackendMemory)
	viperCfg.SetDefault("store.path", "")
	viperCfg.SetDefault("store.sync_writes", true)
	viperCfg.SetDefault("store.value_log_size", "")

	viperCfg.SetDefault("engine.lock_timeout", "5s")
	viperCfg.SetDefault("engine.verify_mutations", false)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
}

func validateConfig(config *Config) error {
	switch config.Store.Backend {
	case BackendMemory:
	case BackendBadger:
		if config.Store.Path == "" {
			return ErrMissingPath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, config.Store.Backend)
	}

	if _, err := config.Store.valueLogFileSize(); err != nil {
		return err
	}

	if config.Engine.LockTimeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLockTimeout, config.Engine.LockTimeout)
	}

	if _, err := config.Logging.level(); err != nil {
		return err
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}

func (r StoreConfig) valueLogFileSize() (int64, error) {
	if r.ValueLogSize == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(r.ValueLogSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidValueLogSize, err)
	}
	if size < minValueLogSize || size >= maxValueLogSize {
		return 0, fmt.Errorf("%w: %s is outside [%s, %s)", ErrInvalidValueLogSize,
			r.ValueLogSize, humanize.IBytes(minValueLogSize), humanize.IBytes(maxValueLogSize))
	}
	return int64(size), nil
}

func (r LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(r.Level)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, r.Level)
	}
	return level, nil
}

// MemoryOptions returns the in-memory store options.
func (r *Config) MemoryOptions() memstore.Config {
	cfg := memstore.DefaultConfig()
	cfg.LockTimeout = r.Engine.LockTimeout
	return cfg
}

// BadgerOptions returns the badger store options. logger receives badger's
// own output and may be nil.
func (r *Config) BadgerOptions(logger *slog.Logger) badgerstore.Config {
	cfg := badgerstore.DefaultConfig()
	cfg.Path = r.Store.Path
	cfg.SyncWrites = r.Store.SyncWrites
	cfg.ValueLogFileSize, _ = r.Store.valueLogFileSize()
	cfg.Logger = logger
	return cfg
}

// ServiceOptions returns the service options with logger attached.
func (r *Config) ServiceOptions(logger *slog.Logger) nestedset.Config {
	cfg := nestedset.DefaultConfig()
	cfg.LockTimeout = r.Engine.LockTimeout
	cfg.VerifyMutations = r.Engine.VerifyMutations
	cfg.Logger = logger
	return cfg
}

// LogLevel returns the configured log level. It is only valid on a loaded
// Config.
func (r *Config) LogLevel() slog.Level {
	level, _ := r.Logging.level()
	return level
}
