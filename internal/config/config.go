package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the decision engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Queue      QueueConfig      `yaml:"queue"`
	Store      StoreConfig      `yaml:"store"`
	Workers    WorkersConfig    `yaml:"workers"`
	Cache      CacheConfig      `yaml:"cache"`
	Governance GovernanceConfig `yaml:"governance"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// QueueConfig selects and configures the work queue backend.
type QueueConfig struct {
	Kind        string        `yaml:"kind"` // memory or redis
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Key         string        `yaml:"key"`
	Buffer      int           `yaml:"buffer"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	PopTimeout  time.Duration `yaml:"popTimeout"`
}

// StoreConfig selects and configures the job registry backend.
type StoreConfig struct {
	Kind     string        `yaml:"kind"` // memory or postgres
	DSN      string        `yaml:"dsn"`
	LeaseTTL time.Duration `yaml:"leaseTTL"`
}

// WorkersConfig tunes the worker pool.
type WorkersConfig struct {
	Count             int           `yaml:"count"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	ReapInterval      time.Duration `yaml:"reapInterval"`
}

// CacheConfig controls the Redis-backed listing cache.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	ListTTL     time.Duration `yaml:"listTTL"`
}

// GovernanceConfig controls policy-pack loading for the pipeline.
type GovernanceConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DECISION_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Queue: QueueConfig{
			Kind:        "memory",
			Buffer:      256,
			DialTimeout: 2 * time.Second,
			PopTimeout:  2 * time.Second,
		},
		Store: StoreConfig{
			Kind:     "memory",
			LeaseTTL: 30 * time.Second,
		},
		Workers: WorkersConfig{
			Count:             4,
			HeartbeatInterval: 10 * time.Second,
			ReapInterval:      10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:     false,
			DialTimeout: 2 * time.Second,
			ListTTL:     5 * time.Second,
		},
		Governance: GovernanceConfig{Path: "configs/policy/default.yaml"},
	}
}

func validate(cfg *Config) error {
	switch cfg.Queue.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue kind %q", cfg.Queue.Kind)
	}
	if cfg.Queue.Kind == "redis" && cfg.Queue.Addr == "" {
		return errors.New("queue.addr is required for the redis queue")
	}

	switch cfg.Store.Kind {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
	if cfg.Store.Kind == "postgres" && cfg.Store.DSN == "" {
		return errors.New("store.dsn is required for the postgres store")
	}

	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DECISION_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DECISION_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("DECISION_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DECISION_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DECISION_ENGINE_QUEUE_KIND"); v != "" {
		cfg.Queue.Kind = v
	}
	if v := os.Getenv("DECISION_ENGINE_QUEUE_ADDR"); v != "" {
		cfg.Queue.Addr = v
	}
	if v := os.Getenv("DECISION_ENGINE_QUEUE_PASSWORD"); v != "" {
		cfg.Queue.Password = v
	}
	if v := os.Getenv("DECISION_ENGINE_QUEUE_KEY"); v != "" {
		cfg.Queue.Key = v
	}
	if v := os.Getenv("DECISION_ENGINE_QUEUE_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Buffer = n
		}
	}
	if v := os.Getenv("DECISION_ENGINE_STORE_KIND"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("DECISION_ENGINE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("DECISION_ENGINE_STORE_LEASE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.LeaseTTL = d
		}
	}
	if v := os.Getenv("DECISION_ENGINE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Count = n
		}
	}
	if v := os.Getenv("DECISION_ENGINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("DECISION_ENGINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("DECISION_ENGINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("DECISION_ENGINE_CACHE_LIST_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ListTTL = d
		}
	}
	if v := os.Getenv("DECISION_ENGINE_GOVERNANCE_PATH"); v != "" {
		cfg.Governance.Path = v
	}
}
