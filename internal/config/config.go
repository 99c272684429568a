package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "appsight"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisURL   = "redis://localhost:6379/0"
	defaultArchiveDir = "./data/archive"

	defaultReportTTLHours     = 7 * 24
	defaultAnalysisCapacity   = 100
	defaultComparisonCapacity = 50
	defaultQueryTTLMinutes    = 30
	defaultSweepHours         = 24
	defaultTrieCleanupMinutes = 60
	defaultTaskCleanupHours   = 72

	defaultEmbeddingModel = "text-embedding-3-small"
	defaultEmbeddingDims  = 384
	defaultSimThreshold   = 0.75
	defaultSemanticTopK   = 30
	defaultChunkWords     = 120
)

// Load reads, parses and normalizes the YAML config file.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := &AppConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// missing file falls through to pure defaults
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Env == "" {
		c.Env = defaultEnv
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Database.Host == "" {
		c.Database.Host = defaultDBHost
	}
	if c.Database.Port == 0 {
		c.Database.Port = defaultDBPort
	}
	if c.Database.User == "" {
		c.Database.User = defaultDBUser
	}
	if c.Database.Password == "" {
		c.Database.Password = defaultDBPassword
	}
	if c.Database.Name == "" {
		c.Database.Name = defaultDBName
	}
	if c.Database.Charset == "" {
		c.Database.Charset = defaultDBCharset
	}
	if c.Database.Loc == "" {
		c.Database.Loc = defaultDBLoc
	}
	if c.DSN == "" {
		c.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=%s",
			c.Database.User, c.Database.Password,
			c.Database.Host, c.Database.Port, c.Database.Name,
			c.Database.Charset, c.Database.Loc)
	}

	if c.RedisURL == "" {
		c.RedisURL = defaultRedisURL
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = defaultArchiveDir
	}

	if c.Cache.ReportTTLHours <= 0 {
		c.Cache.ReportTTLHours = defaultReportTTLHours
	}
	if c.Cache.AnalysisCapacity <= 0 {
		c.Cache.AnalysisCapacity = defaultAnalysisCapacity
	}
	if c.Cache.ComparisonCapacity <= 0 {
		c.Cache.ComparisonCapacity = defaultComparisonCapacity
	}
	if c.Cache.QueryTTLMinutes <= 0 {
		c.Cache.QueryTTLMinutes = defaultQueryTTLMinutes
	}
	if c.Cache.SweepIntervalHours <= 0 {
		c.Cache.SweepIntervalHours = defaultSweepHours
	}
	if c.Cache.TrieCleanupMinutes <= 0 {
		c.Cache.TrieCleanupMinutes = defaultTrieCleanupMinutes
	}
	if c.Cache.TaskCleanupAfterHours <= 0 {
		c.Cache.TaskCleanupAfterHours = defaultTaskCleanupHours
	}

	if c.AI.Embedding.Model == "" {
		c.AI.Embedding.Model = defaultEmbeddingModel
	}
	if c.AI.Embedding.Dimensions <= 0 {
		c.AI.Embedding.Dimensions = defaultEmbeddingDims
	}
	if c.AI.Semantic.SimilarityThreshold <= 0 || c.AI.Semantic.SimilarityThreshold > 1 {
		c.AI.Semantic.SimilarityThreshold = defaultSimThreshold
	}
	if c.AI.Semantic.TopK <= 0 {
		c.AI.Semantic.TopK = defaultSemanticTopK
	}
	if c.AI.Semantic.ChunkWords <= 0 {
		c.AI.Semantic.ChunkWords = defaultChunkWords
	}
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }

// ReportTTL is the age past which a report is expired in every tier.
func (c *AppConfig) ReportTTL() time.Duration {
	return time.Duration(c.Cache.ReportTTLHours) * time.Hour
}

// QueryTTL bounds the prefix query cache.
func (c *AppConfig) QueryTTL() time.Duration {
	return time.Duration(c.Cache.QueryTTLMinutes) * time.Minute
}

// SweepInterval schedules the expiration sweep.
func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalHours) * time.Hour
}

// TrieCleanupInterval schedules the prefix-cache pruning pass.
func (c *AppConfig) TrieCleanupInterval() time.Duration {
	return time.Duration(c.Cache.TrieCleanupMinutes) * time.Minute
}

// SelectAIProvider resolves the generation provider: the assigned one if
// configured and enabled, otherwise the first enabled provider.
func (c *AppConfig) SelectAIProvider() *AIProvider {
	ai := c.AI
	if ai.GenerationModel != nil && ai.GenerationModel.ProviderID != "" {
		for i := range ai.Providers {
			p := &ai.Providers[i]
			if p.ID == ai.GenerationModel.ProviderID && p.Enabled {
				if ai.GenerationModel.Model != "" {
					selected := *p
					selected.DefaultModel = ai.GenerationModel.Model
					return &selected
				}
				return p
			}
		}
	}
	for i := range ai.Providers {
		if ai.Providers[i].Enabled {
			return &ai.Providers[i]
		}
	}
	return nil
}
