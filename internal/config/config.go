package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a setting is omitted.
const (
	DefaultPollInterval  = 1 * time.Second
	DefaultConcurrency   = 4
	DefaultBatchSize     = 100
	DefaultStaleAfter    = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
	DefaultSchemaTTL     = 5 * time.Minute
)

// SchedulerConfig specifies scheduler worker behaviour
type SchedulerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval,omitempty"`  // How often listReady runs when no event arrives
	Concurrency   int           `yaml:"concurrency,omitempty"`    // Parallel claim attempts per pass
	BatchSize     int           `yaml:"batch_size,omitempty"`     // Max candidates considered per pass
	StaleAfter    time.Duration `yaml:"stale_after,omitempty"`    // Claims older than this are reset by the sweep
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"` // How often the liveness sweep runs
}

// RedactionConfig specifies where secret schemas come from
type RedactionConfig struct {
	Schemas  string        `yaml:"schemas,omitempty"`   // Path to schemas.yml
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"` // How long looked-up schemas are cached
}

// MusterConfig represents the top-level muster.yml configuration
type MusterConfig struct {
	Version   string           `yaml:"version"`
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty"`
	Redaction *RedactionConfig `yaml:"redaction,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *MusterConfig {
	cfg := &MusterConfig{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *MusterConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Scheduler == nil {
		c.Scheduler = &SchedulerConfig{}
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	if c.Redaction == nil {
		c.Redaction = &RedactionConfig{}
	}
	if c.Redaction.CacheTTL == 0 {
		c.Redaction.CacheTTL = DefaultSchemaTTL
	}
	if c.Redaction.CacheTTL < 0 {
		return fmt.Errorf("redaction.cache_ttl must be positive, got %s", c.Redaction.CacheTTL)
	}

	return nil
}

// Validate checks scheduler settings and applies defaults for zero values
func (s *SchedulerConfig) Validate() error {
	if s.PollInterval == 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.Concurrency == 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.BatchSize == 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.StaleAfter == 0 {
		s.StaleAfter = DefaultStaleAfter
	}
	if s.SweepInterval == 0 {
		s.SweepInterval = DefaultSweepInterval
	}

	if s.PollInterval < 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive, got %s", s.PollInterval)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be >= 1, got %d", s.Concurrency)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("scheduler.batch_size must be >= 1, got %d", s.BatchSize)
	}
	if s.StaleAfter < 0 {
		return fmt.Errorf("scheduler.stale_after must be positive, got %s", s.StaleAfter)
	}
	if s.SweepInterval < 0 {
		return fmt.Errorf("scheduler.sweep_interval must be positive, got %s", s.SweepInterval)
	}
	if s.SweepInterval > s.StaleAfter {
		return fmt.Errorf("scheduler.sweep_interval (%s) must not exceed scheduler.stale_after (%s)", s.SweepInterval, s.StaleAfter)
	}

	return nil
}

// Load reads and validates muster.yml from the specified path
func Load(path string) (*MusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config MusterConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*MusterConfig, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}
