package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DataSourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

type EngineConfig struct {
	CacheTTLSeconds      int      `yaml:"cache_ttl_seconds"`
	MaxCacheSize         int      `yaml:"max_cache_size"`
	QueriesPerSecond     int      `yaml:"queries_per_second"`
	SlowQueryMs          int64    `yaml:"slow_query_ms"`
	CooldownSeconds      int      `yaml:"cooldown_seconds"`
	BufferSize           int      `yaml:"buffer_size"`
	FlushIntervalSeconds int      `yaml:"flush_interval_seconds"`
	AllowedTables        []string `yaml:"allowed_tables"`
}

type Config struct {
	ListenAddr        string             `yaml:"listen_addr"`
	DatabaseURL       string             `yaml:"database_url"`
	NatsURL           string             `yaml:"nats_url"`
	EncryptionKey     string             `yaml:"encryption_key"`
	LogMode           string             `yaml:"log_mode"`
	DefaultDataSource string             `yaml:"default_data_source"`
	DataSources       []DataSourceConfig `yaml:"data_sources"`
	Engine            EngineConfig       `yaml:"engine"`
}

func (c *EngineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *EngineConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c *EngineConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// loadConfig reads the YAML file when present and applies environment
// overrides on top. A missing file is fine as long as the essentials
// arrive via environment.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr: ":8080",
		LogMode:    "production",
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// environment-only config
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NatsURL = getenv("NATS_URL", cfg.NatsURL)
	cfg.EncryptionKey = getenv("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.LogMode = getenv("LOG_MODE", cfg.LogMode)
	cfg.DefaultDataSource = getenv("DEFAULT_DATA_SOURCE", cfg.DefaultDataSource)
	cfg.Engine.SlowQueryMs = int64(getenvInt("SLOW_QUERY_MS", int(cfg.Engine.SlowQueryMs)))
	cfg.Engine.CacheTTLSeconds = getenvInt("CACHE_TTL_SECONDS", cfg.Engine.CacheTTLSeconds)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (config file or DATABASE_URL)")
	}
	if cfg.DefaultDataSource == "" && len(cfg.DataSources) > 0 {
		cfg.DefaultDataSource = cfg.DataSources[0].Name
	}
	return cfg, nil
}

func (c *Config) dataSource(name string) (DataSourceConfig, bool) {
	for _, ds := range c.DataSources {
		if ds.Name == name {
			return ds, true
		}
	}
	return DataSourceConfig{}, false
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
