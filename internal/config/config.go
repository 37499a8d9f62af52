package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

const (
	defaultEmbedModel     = "models/embedding-001"
	defaultGenerateModel  = "gemini-1.5-pro"
	defaultRebuildSpec    = "0 8 * * *"
	defaultIndexKey       = "faiss_index/index.json.gz"
	defaultChunkMaxSize   = 1000
	defaultEmbedBatchSize = 100
)

var DefaultSeparators = []string{"\n\n", "\n", ". ", ", "}

type Config struct {
	Port          int              `json:"port"`
	JWTSecret     string           `json:"jwt_secret"`
	LogConfig     logger.LogConfig `json:"log_config"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	Sources       []SourceConfig   `json:"sources"`
	Fetch         FetchConfig      `json:"fetch"`
	Chunk         ChunkConfig      `json:"chunk"`
	Embed         EmbedConfig      `json:"embed"`
	Generate      GenerateConfig   `json:"generate"`
	Index         IndexConfig      `json:"index"`
	FileStore     FileStoreConfig  `json:"file_store"`
	Database      DatabaseConfig   `json:"database"`
	Schedule      ScheduleConfig   `json:"schedule"`
	Query         QueryConfig      `json:"query"`
}

type SourceConfig struct {
	Type string      `json:"type"`
	Name string      `json:"name"`
	Data interface{} `json:"data"`
}

type FetchConfig struct {
	Timeout     int    `json:"timeout"`
	Concurrency int    `json:"concurrency"`
	UserAgent   string `json:"user_agent"`
}

type ChunkConfig struct {
	MaxSize    int      `json:"max_size"`
	Separators []string `json:"separators"`
}

type EmbedConfig struct {
	Provider          string      `json:"provider"`
	Model             string      `json:"model"`
	Data              interface{} `json:"data"`
	BatchSize         int         `json:"batch_size"`
	Timeout           int         `json:"timeout"`
	MaxAttempts       int         `json:"max_attempts"`
	BackoffMillis     int         `json:"backoff_ms"`
	MaxBackoffMillis  int         `json:"max_backoff_ms"`
	RequestsPerSecond float64     `json:"requests_per_second"`
	QueryCacheSize    int         `json:"query_cache_size"`
	QueryCacheTTL     int         `json:"query_cache_ttl"`
}

type GenerateConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
	Timeout  int         `json:"timeout"`
}

type IndexConfig struct {
	Key            string `json:"key"`
	PersistTimeout int    `json:"persist_timeout"`
	LoadOnStart    *bool  `json:"load_on_start"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type DatabaseConfig struct {
	DSN             string `json:"dsn"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	DBName          string `json:"dbname"`
	SSLMode         string `json:"sslmode"`
	CacheMaxAgeDays int    `json:"cache_max_age_days"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type ScheduleConfig struct {
	Rebuild      string `json:"rebuild"`
	CacheCleanup string `json:"cache_cleanup"`
	RunOnStart   bool   `json:"run_on_start"`
}

type QueryConfig struct {
	TopK             int     `json:"top_k"`
	MinScore         float64 `json:"min_score"`
	Timeout          int     `json:"timeout"`
	RateLimitSeconds int     `json:"rate_limit_seconds"`
	AnswerCacheSize  int     `json:"answer_cache_size"`
	AnswerCacheTTL   int     `json:"answer_cache_ttl"`
}

func (c IndexConfig) ShouldLoadOnStart() bool {
	return c.LoadOnStart == nil || *c.LoadOnStart
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
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Type) == "" {
			return fmt.Errorf("sources[%d].type is required", i)
		}
		if src.Name == "" {
			c.Sources[i].Name = fmt.Sprintf("%s-%d", src.Type, i)
		}
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 15
	}
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = 4
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "insightai/1.0"
	}
	if c.Chunk.MaxSize <= 0 {
		c.Chunk.MaxSize = defaultChunkMaxSize
	}
	if len(c.Chunk.Separators) == 0 {
		c.Chunk.Separators = append([]string(nil), DefaultSeparators...)
	}
	if c.Embed.Provider == "" {
		c.Embed.Provider = "gemini"
	}
	if c.Embed.Model == "" {
		c.Embed.Model = defaultEmbedModel
	}
	if c.Embed.BatchSize <= 0 {
		c.Embed.BatchSize = defaultEmbedBatchSize
	}
	if c.Embed.Timeout <= 0 {
		c.Embed.Timeout = 30
	}
	if c.Embed.MaxAttempts <= 0 {
		c.Embed.MaxAttempts = 3
	}
	if c.Embed.BackoffMillis <= 0 {
		c.Embed.BackoffMillis = 500
	}
	if c.Embed.MaxBackoffMillis <= 0 {
		c.Embed.MaxBackoffMillis = 10000
	}
	if c.Embed.QueryCacheSize <= 0 {
		c.Embed.QueryCacheSize = 1000
	}
	if c.Embed.QueryCacheTTL <= 0 {
		c.Embed.QueryCacheTTL = 3600
	}
	if c.Generate.Provider == "" {
		c.Generate.Provider = c.Embed.Provider
	}
	if c.Generate.Data == nil {
		c.Generate.Data = c.Embed.Data
	}
	if c.Generate.Model == "" {
		c.Generate.Model = defaultGenerateModel
	}
	if c.Generate.Timeout <= 0 {
		c.Generate.Timeout = 60
	}
	if c.Index.Key == "" {
		c.Index.Key = defaultIndexKey
	}
	if c.Index.PersistTimeout <= 0 {
		c.Index.PersistTimeout = 60
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	switch c.FileStore.Type {
	case "local", "s3":
	case "postgres":
		if !c.Database.Enabled() {
			return fmt.Errorf("file_store.type postgres requires database config")
		}
	default:
		return fmt.Errorf("file_store.type must be local, s3 or postgres")
	}
	if c.Database.Enabled() {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.CacheMaxAgeDays <= 0 {
			c.Database.CacheMaxAgeDays = 30
		}
	}
	if c.Schedule.Rebuild == "" {
		c.Schedule.Rebuild = defaultRebuildSpec
	}
	if c.Schedule.CacheCleanup == "" {
		c.Schedule.CacheCleanup = "30 3 * * *"
	}
	if c.Query.TopK <= 0 {
		c.Query.TopK = 4
	}
	if c.Query.MinScore < 0 || c.Query.MinScore > 1 {
		return fmt.Errorf("query.min_score must be within [0, 1]")
	}
	if c.Query.Timeout <= 0 {
		c.Query.Timeout = 30
	}
	if c.Query.AnswerCacheSize <= 0 {
		c.Query.AnswerCacheSize = 1000
	}
	if c.Query.AnswerCacheTTL <= 0 {
		c.Query.AnswerCacheTTL = 3600
	}
	return nil
}
