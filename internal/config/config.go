package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	JWTSecret string           `json:"jwt_secret"`
	LogConfig logger.LogConfig `json:"log_config"`
	Database  DatabaseConfig   `json:"database"`
	AI        AIConfig         `json:"ai"`
	Search    SearchConfig     `json:"search"`
	Retry     RetryConfig      `json:"retry"`
	Backfill  BackfillConfig   `json:"backfill"`
	CORS      []string         `json:"cors_allowlist"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIProviderConfig struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Data     json.RawMessage `json:"data"`
}

type AIConfig struct {
	Providers      []AIProviderConfig `json:"providers"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	MaxInputChars  int                `json:"max_input_chars"`
}

type SearchConfig struct {
	CacheSize        int `json:"cache_size"`
	CacheTTLMinutes  int `json:"cache_ttl_minutes"`
	RateLimitSeconds int `json:"rate_limit_seconds"`
}

type RetryConfig struct {
	Spec      string `json:"spec"`
	BatchSize int    `json:"batch_size"`
	Workers   int    `json:"workers"`
}

type BackfillConfig struct {
	Spec      string `json:"spec"`
	BatchSize int    `json:"batch_size"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.AI.Providers) == 0 {
		return nil, fmt.Errorf("at least one ai provider is required")
	}
	for i, p := range cfg.AI.Providers {
		if p.Provider == "" || p.Model == "" {
			return nil, fmt.Errorf("ai.providers[%d]: provider and model are required", i)
		}
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 8000
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 10000
	}
	if cfg.Search.CacheTTLMinutes == 0 {
		cfg.Search.CacheTTLMinutes = 120
	}
	if cfg.Retry.Spec == "" {
		cfg.Retry.Spec = "*/5 * * * *"
	}
	if cfg.Retry.BatchSize == 0 {
		cfg.Retry.BatchSize = 50
	}
	if cfg.Retry.Workers == 0 {
		cfg.Retry.Workers = 4
	}
	if cfg.Backfill.Spec == "" {
		cfg.Backfill.Spec = "*/30 * * * *"
	}
	if cfg.Backfill.BatchSize == 0 {
		cfg.Backfill.BatchSize = 100
	}
	return &cfg, nil
}
