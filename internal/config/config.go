package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

const (
	defaultDemoUserID     = "demo-user-123"
	defaultEmbedDimension = 1536
	defaultCVMinChars     = 50
	defaultJobMinChars    = 30
	defaultMaxUploadBytes = 5 * 1024 * 1024
)

type Config struct {
	Port             int              `json:"port"`
	Database         DatabaseConfig   `json:"database"`
	LogConfig        logger.LogConfig `json:"log_config"`
	AI               AIConfig         `json:"ai"`
	EmbedCache       EmbedCacheConfig `json:"embed_cache"`
	FileStore        FileStoreConfig  `json:"file_store"`
	CORSAllowlist    []string         `json:"cors_allowlist"`
	RateLimitSeconds int              `json:"rate_limit_seconds"`
	DemoUserID       string           `json:"demo_user_id"`
	Validation       ValidationConfig `json:"validation"`
	Jobs             JobsConfig       `json:"jobs"`
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

// AIProviderConfig declares one named provider instance. Data is handed to
// the provider factory registered under Type.
type AIProviderConfig struct {
	Name string                 `json:"name"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// AIModelRef selects a model served by a declared provider. Lists of refs
// are tried in order.
type AIModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Providers           []AIProviderConfig `json:"providers"`
	Chat                []AIModelRef       `json:"chat"`
	Embed               []AIModelRef       `json:"embed"`
	Timeout             int                `json:"timeout"`
	MaxInputChars       int                `json:"max_input_chars"`
	EmbedDimension      int                `json:"embed_dimension"`
	CreativeTemperature float64            `json:"creative_temperature"`
	ExperienceChars     int                `json:"experience_chars"`
	Breaker             BreakerConfig      `json:"breaker"`
}

type BreakerConfig struct {
	Enabled          bool    `json:"enabled"`
	MaxRequests      uint32  `json:"max_requests"`
	IntervalSeconds  int     `json:"interval_seconds"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	MinRequests      uint32  `json:"min_requests"`
	FailureThreshold float64 `json:"failure_threshold"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds"`
	EnableDB      bool `json:"enable_db"`
}

type FileStoreConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type ValidationConfig struct {
	CVMinChars     int   `json:"cv_min_chars"`
	JobMinChars    int   `json:"job_min_chars"`
	MaxUploadBytes int64 `json:"max_upload_bytes"`
}

type JobsConfig struct {
	EmbeddingCacheCleanup    string `json:"embedding_cache_cleanup"`
	EmbeddingCacheMaxAgeDays int    `json:"embedding_cache_max_age_days"`
	ProfileReembed           string `json:"profile_reembed"`
	ProfileReembedBatch      int    `json:"profile_reembed_batch"`
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
	applyEnv(&cfg, os.Getenv)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv fills secrets from the environment. It runs once at load time;
// nothing downstream reads the environment again.
func applyEnv(cfg *Config, getenv func(string) string) {
	if dsn := strings.TrimSpace(getenv("DATABASE_DSN")); dsn != "" {
		cfg.Database.DSN = dsn
	}
	for i := range cfg.AI.Providers {
		p := &cfg.AI.Providers[i]
		envKey := strings.ToUpper(strings.TrimSpace(p.Type)) + "_API_KEY"
		val := strings.TrimSpace(getenv(envKey))
		if val == "" {
			continue
		}
		if p.Data == nil {
			p.Data = map[string]interface{}{}
		}
		if existing, _ := p.Data["api_key"].(string); strings.TrimSpace(existing) == "" {
			p.Data["api_key"] = val
		}
	}
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.DemoUserID == "" {
		cfg.DemoUserID = defaultDemoUserID
	}
	if err := cfg.AI.normalize(); err != nil {
		return err
	}
	if cfg.Validation.CVMinChars <= 0 {
		cfg.Validation.CVMinChars = defaultCVMinChars
	}
	if cfg.Validation.JobMinChars <= 0 {
		cfg.Validation.JobMinChars = defaultJobMinChars
	}
	if cfg.Validation.MaxUploadBytes <= 0 {
		cfg.Validation.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.Type == "local" {
		if cfg.FileStore.Data == nil {
			cfg.FileStore.Data = map[string]interface{}{}
		}
		if dir, _ := cfg.FileStore.Data["dir"].(string); dir == "" {
			cfg.FileStore.Data["dir"] = "./data/cv"
		}
	}
	if cfg.Jobs.EmbeddingCacheMaxAgeDays <= 0 {
		cfg.Jobs.EmbeddingCacheMaxAgeDays = 30
	}
	if cfg.Jobs.ProfileReembedBatch <= 0 {
		cfg.Jobs.ProfileReembedBatch = 20
	}
	return nil
}

func (c *AIConfig) normalize() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("ai.providers is required")
	}
	names := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Type == "" {
			return fmt.Errorf("ai.providers[%d].type is required", i)
		}
		if p.Name == "" {
			p.Name = p.Type
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate ai provider name: %s", p.Name)
		}
		names[p.Name] = true
	}
	if len(c.Chat) == 0 {
		return fmt.Errorf("ai.chat requires at least one model")
	}
	if len(c.Embed) != 1 {
		return fmt.Errorf("ai.embed requires exactly one model, got %d", len(c.Embed))
	}
	for _, ref := range append(append([]AIModelRef{}, c.Chat...), c.Embed...) {
		if !names[ref.Provider] {
			return fmt.Errorf("ai model %q references unknown provider %q", ref.Model, ref.Provider)
		}
		if ref.Model == "" {
			return fmt.Errorf("ai model name is required for provider %q", ref.Provider)
		}
	}
	if c.EmbedDimension == 0 {
		c.EmbedDimension = defaultEmbedDimension
	}
	if c.CreativeTemperature == 0 {
		c.CreativeTemperature = 0.7
	}
	if c.ExperienceChars == 0 {
		c.ExperienceChars = 500
	}
	if c.Breaker.Enabled {
		if c.Breaker.MaxRequests == 0 {
			c.Breaker.MaxRequests = 1
		}
		if c.Breaker.TimeoutSeconds == 0 {
			c.Breaker.TimeoutSeconds = 60
		}
		if c.Breaker.MinRequests == 0 {
			c.Breaker.MinRequests = 5
		}
		if c.Breaker.FailureThreshold == 0 {
			c.Breaker.FailureThreshold = 0.6
		}
	}
	return nil
}
