// Package config loads the scheduler daemon's settings from a YAML
// file with environment variable overrides, using an os.Getenv +
// fmt.Sscanf override pass after the file load.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/meilidex/searchcore/internal/scheduler"
)

// StoreBackend selects which TaskStore implementation to construct.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// Config is the schedulerd process's full configuration.
type Config struct {
	Scheduler struct {
		MaxBatchSize         int `yaml:"max_batch_size"`
		MaxDocumentsPerBatch int `yaml:"max_documents_per_batch"`
		DebounceSeconds      int `yaml:"debounce_seconds"`
	} `yaml:"scheduler"`

	Store struct {
		Backend    StoreBackend `yaml:"backend"`
		DatabaseURL string      `yaml:"database_url"`
		RedisAddr   string      `yaml:"redis_addr"`
		RedisDB     int         `yaml:"redis_db"`
	} `yaml:"store"`

	Leader struct {
		NodeID string `yaml:"node_id"`
		TTLSec int    `yaml:"ttl_seconds"`
	} `yaml:"leader"`

	Dashboard struct {
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"dashboard"`

	IncidentCapacity int `yaml:"incident_capacity"`
}

// Default returns the process's baseline configuration before any
// file or environment override is applied.
func Default() Config {
	var c Config
	c.Scheduler.MaxBatchSize = scheduler.DefaultConfig().MaxBatchSize
	c.Store.Backend = StoreMemory
	c.Store.RedisAddr = "localhost:6379"
	c.Leader.TTLSec = 30
	c.Dashboard.IntervalMs = 1000
	c.IncidentCapacity = 100
	return c
}

// Load reads path (if non-empty and present) as YAML over the
// defaults, then applies environment variable overrides: file first,
// env last, env always wins.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Leader.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.Leader.NodeID = hostname
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCHEDULER_MAX_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Scheduler.MaxBatchSize)
	}
	if v := os.Getenv("SCHEDULER_MAX_DOCUMENTS_PER_BATCH"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Scheduler.MaxDocumentsPerBatch)
	}
	if v := os.Getenv("SCHEDULER_DEBOUNCE_SECONDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Scheduler.DebounceSeconds)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
		if cfg.Store.Backend == StoreMemory {
			cfg.Store.Backend = StorePostgres
		}
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = StoreBackend(v)
	}
	if v := os.Getenv("SCHEDULER_NODE_ID"); v != "" {
		cfg.Leader.NodeID = v
	}
}

// SchedulerConfig converts the loaded settings into a
// scheduler.Config.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxBatchSize:         c.Scheduler.MaxBatchSize,
		MaxDocumentsPerBatch: c.Scheduler.MaxDocumentsPerBatch,
		DebounceDurationSec:  c.Scheduler.DebounceSeconds,
	}
}

// LeaderTTL returns the configured lease TTL as a time.Duration.
func (c Config) LeaderTTL() time.Duration {
	return time.Duration(c.Leader.TTLSec) * time.Second
}

// DashboardInterval returns the configured broadcast interval.
func (c Config) DashboardInterval() time.Duration {
	return time.Duration(c.Dashboard.IntervalMs) * time.Millisecond
}
