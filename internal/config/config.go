package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	DBDsn       string            `json:"db_dsn"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	FileStore   FileStoreConfig   `json:"file_store"`
	Qdrant      QdrantConfig      `json:"qdrant"`
	Secrets     map[string]string `json:"secrets"`
	WebSearch   WebSearchConfig   `json:"web_search"`
	Chat        ChatConfig        `json:"chat"`
	Ingest      IngestConfig      `json:"ingest"`
	CORSOrigins []string          `json:"cors_origins"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type QdrantConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

type WebSearchConfig struct {
	Provider string `json:"provider"`
	EngineID string `json:"engine_id"`
}

type ChatConfig struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type IngestConfig struct {
	RetrySpec string `json:"retry_spec"`
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
	if cfg.DBDsn == "" {
		return nil, fmt.Errorf("db_dsn is required")
	}
	if cfg.Qdrant.URL == "" {
		return nil, fmt.Errorf("qdrant.url is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = 0.7
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = 2048
	}
	if cfg.Ingest.RetrySpec == "" {
		cfg.Ingest.RetrySpec = "*/5 * * * *"
	}
	return &cfg, nil
}
