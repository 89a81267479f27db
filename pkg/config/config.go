// Package config loads analysisd settings from defaults, a YAML file and
// ANALYSISD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
	"github.com/Sumatoshi-tech/analysisd/pkg/persist"
	"github.com/Sumatoshi-tech/analysisd/pkg/pipeline"
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Persistence   PersistenceConfig   `mapstructure:"persistence"`
	Library       LibraryConfig       `mapstructure:"library"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Server        ServerConfig        `mapstructure:"server"`
}

// PipelineConfig holds the action pipeline tuning.
type PipelineConfig struct {
	BatchSize         int    `mapstructure:"batch_size"`
	BatchTimeout      string `mapstructure:"batch_timeout"`
	BoundedCapacity   int    `mapstructure:"bounded_capacity"`
	BatchParallelism  int    `mapstructure:"batch_parallelism"`
	ActionParallelism int    `mapstructure:"action_parallelism"`
	LoadConcurrency   int    `mapstructure:"load_concurrency"`
}

// PersistenceConfig locates the pending-action state file.
type PersistenceConfig struct {
	Dir      string `mapstructure:"dir"`
	Basename string `mapstructure:"basename"`
	Codec    string `mapstructure:"codec"`
	Compress bool   `mapstructure:"compress"`
}

// LibraryConfig locates the media library database.
type LibraryConfig struct {
	DSN   string `mapstructure:"dsn"`
	Debug bool   `mapstructure:"debug"`
}

// ObservabilityConfig holds logging and telemetry export settings.
type ObservabilityConfig struct {
	LogLevel     string  `mapstructure:"log_level"`
	LogJSON      bool    `mapstructure:"log_json"`
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// ServerConfig holds the optional HTTP endpoint for metrics and health.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Sentinel errors for configuration validation.
var (
	ErrInvalidBatchSize         = errors.New("pipeline.batch_size must be positive")
	ErrInvalidBatchTimeout      = errors.New("pipeline.batch_timeout must be a positive duration")
	ErrInvalidBoundedCapacity   = errors.New("pipeline.bounded_capacity must be positive")
	ErrInvalidBatchParallelism  = errors.New("pipeline.batch_parallelism must be positive")
	ErrInvalidActionParallelism = errors.New("pipeline.action_parallelism must be positive")
	ErrInvalidLoadConcurrency   = errors.New("pipeline.load_concurrency must be positive")
	ErrEmptyPersistenceDir      = errors.New("persistence.dir must not be empty")
	ErrInvalidCodec             = errors.New("persistence.codec must be json, gob or yaml")
	ErrEmptyLibraryDSN          = errors.New("library.dsn must not be empty")
	ErrInvalidLogLevel          = errors.New("observability.log_level must be debug, info, warn or error")
	ErrInvalidSampleRatio       = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	pipelineErr := c.validatePipeline()
	if pipelineErr != nil {
		return pipelineErr
	}

	if c.Persistence.Dir == "" {
		return ErrEmptyPersistenceDir
	}

	_, codecErr := c.Codec()
	if codecErr != nil {
		return codecErr
	}

	if c.Library.DSN == "" {
		return ErrEmptyLibraryDSN
	}

	_, levelErr := c.LogLevel()
	if levelErr != nil {
		return levelErr
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}

func (c *Config) validatePipeline() error {
	switch {
	case c.Pipeline.BatchSize <= 0:
		return ErrInvalidBatchSize
	case c.Pipeline.BoundedCapacity <= 0:
		return ErrInvalidBoundedCapacity
	case c.Pipeline.BatchParallelism <= 0:
		return ErrInvalidBatchParallelism
	case c.Pipeline.ActionParallelism <= 0:
		return ErrInvalidActionParallelism
	case c.Pipeline.LoadConcurrency <= 0:
		return ErrInvalidLoadConcurrency
	}

	_, err := c.batchTimeout()

	return err
}

func (c *Config) batchTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Pipeline.BatchTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidBatchTimeout, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidBatchTimeout, d)
	}

	return d, nil
}

// PipelineConfig converts the pipeline section into pipeline tuning.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	timeout, err := c.batchTimeout()
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		BatchSize:         c.Pipeline.BatchSize,
		BatchTimeout:      timeout,
		BoundedCapacity:   c.Pipeline.BoundedCapacity,
		BatchParallelism:  c.Pipeline.BatchParallelism,
		ActionParallelism: c.Pipeline.ActionParallelism,
		LoadConcurrency:   c.Pipeline.LoadConcurrency,
	}, nil
}

// Codec returns the state file codec named by the persistence section.
func (c *Config) Codec() (persist.Codec, error) {
	codec, err := persist.CodecByName(c.Persistence.Codec, c.Persistence.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCodec, err)
	}

	return codec, nil
}

// LogLevel parses observability.log_level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Observability.LogLevel))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Observability.LogLevel)
	}

	return level, nil
}

// Telemetry builds the observability configuration for the given mode.
func (c *Config) Telemetry(mode observability.AppMode, version string) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = c.Observability.Environment
	cfg.Mode = mode
	cfg.OTLPEndpoint = c.Observability.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Observability.OTLPHeaders)
	cfg.OTLPInsecure = c.Observability.OTLPInsecure
	cfg.SampleRatio = c.Observability.SampleRatio
	cfg.LogJSON = c.Observability.LogJSON
	cfg.Prometheus = c.Server.MetricsAddr != ""

	if level, err := c.LogLevel(); err == nil {
		cfg.LogLevel = level
	}

	return cfg
}
