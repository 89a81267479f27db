package pipeline

import (
	"fmt"
	"time"
)

// Default tuning values.
const (
	DefaultBatchSize         = 20
	DefaultBatchTimeout      = 2 * time.Second
	DefaultBoundedCapacity   = 4
	DefaultBatchParallelism  = 2
	DefaultActionParallelism = 2
	DefaultLoadConcurrency   = 1
)

// Config holds pipeline tuning parameters. Zero fields take their defaults.
type Config struct {
	// BatchSize is the number of actions that forces a batch to be emitted.
	BatchSize int

	// BatchTimeout is the idle time after the last submission that flushes a partial batch.
	BatchTimeout time.Duration

	// BoundedCapacity is the number of formed batches that may wait for processing.
	BoundedCapacity int

	// BatchParallelism is the number of batches processed concurrently.
	BatchParallelism int

	// ActionParallelism is the number of actions of one batch executed concurrently.
	ActionParallelism int

	// LoadConcurrency is the number of concurrent media index fetches.
	LoadConcurrency int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		BatchTimeout:      DefaultBatchTimeout,
		BoundedCapacity:   DefaultBoundedCapacity,
		BatchParallelism:  DefaultBatchParallelism,
		ActionParallelism: DefaultActionParallelism,
		LoadConcurrency:   DefaultLoadConcurrency,
	}
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()

	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}

	if c.BatchTimeout == 0 {
		c.BatchTimeout = def.BatchTimeout
	}

	if c.BoundedCapacity == 0 {
		c.BoundedCapacity = def.BoundedCapacity
	}

	if c.BatchParallelism == 0 {
		c.BatchParallelism = def.BatchParallelism
	}

	if c.ActionParallelism == 0 {
		c.ActionParallelism = def.ActionParallelism
	}

	if c.LoadConcurrency == 0 {
		c.LoadConcurrency = def.LoadConcurrency
	}

	return c
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	checks := []struct {
		name  string
		value int64
	}{
		{"batch size", int64(c.BatchSize)},
		{"batch timeout", int64(c.BatchTimeout)},
		{"bounded capacity", int64(c.BoundedCapacity)},
		{"batch parallelism", int64(c.BatchParallelism)},
		{"action parallelism", int64(c.ActionParallelism)},
		{"load concurrency", int64(c.LoadConcurrency)},
	}

	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, check.name, check.value)
		}
	}

	return nil
}
