// Package config loads and validates the valuation job configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PhotisTheo/LotLogic-sub001/internal/engine"
)

// Config is the full job configuration.
type Config struct {
	Engine  engine.Config `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Ops     OpsConfig     `yaml:"ops"`
	Workers int           `yaml:"workers"`
}

// StorageConfig configures the Postgres collaborator.
type StorageConfig struct {
	DSN              string        `yaml:"dsn"`
	BatchSize        int           `yaml:"batch_size"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	UpsertsPerSecond float64       `yaml:"upserts_per_second"`
}

// CacheConfig configures the stats snapshot cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// OpsConfig configures the diagnostics HTTP server.
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: engine.Config{
			LookbackDays:    365,
			TargetCompCount: 5,
			Regularization:  0.35,
		},
		Storage: StorageConfig{
			BatchSize:        500,
			QueryTimeout:     30 * time.Second,
			UpsertsPerSecond: 10,
		},
		Cache: CacheConfig{
			TTL: 6 * time.Hour,
		},
		Ops: OpsConfig{
			Addr: "127.0.0.1:9090",
		},
		Workers: 4,
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects malformed knobs eagerly, before any batch work begins.
func (c Config) Validate() error {
	if c.Engine.LookbackDays <= 0 {
		return fmt.Errorf("engine.lookback_days must be positive, got %d", c.Engine.LookbackDays)
	}
	if c.Engine.TargetCompCount <= 0 {
		return fmt.Errorf("engine.target_comp_count must be positive, got %d", c.Engine.TargetCompCount)
	}
	if c.Engine.Regularization < 0 {
		return fmt.Errorf("engine.regularization must not be negative, got %f", c.Engine.Regularization)
	}
	if c.Storage.BatchSize <= 0 {
		return fmt.Errorf("storage.batch_size must be positive, got %d", c.Storage.BatchSize)
	}
	if c.Storage.QueryTimeout <= 0 {
		return fmt.Errorf("storage.query_timeout must be positive, got %s", c.Storage.QueryTimeout)
	}
	if c.Storage.UpsertsPerSecond <= 0 {
		return fmt.Errorf("storage.upserts_per_second must be positive, got %f", c.Storage.UpsertsPerSecond)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}
