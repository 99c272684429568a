package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int      `yaml:"port"`
	Env            string   `yaml:"env"` // "development" | "production"
	BaseURL        string   `yaml:"base_url"`
	AdminToken     string   `yaml:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	DSN      string                `yaml:"dsn"` // MySQL DSN, overrides Database when set
	Database DatabaseRuntimeConfig `yaml:"database"`
	RedisURL string                `yaml:"redis_url"`

	Archive  ArchiveConfig  `yaml:"archive"`
	Cache    CacheConfig    `yaml:"cache"`
	AI       AIConfig       `yaml:"ai"`
	AppStore AppStoreConfig `yaml:"appstore"`
}

type DatabaseRuntimeConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
	Loc      string `yaml:"loc"`
}

// ArchiveConfig locates the blob tiers.
type ArchiveConfig struct {
	Dir string          `yaml:"dir"`
	S3  S3MirrorOptions `yaml:"s3"`
}

type S3MirrorOptions struct {
	Enable          bool   `yaml:"enable"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}

// CacheConfig tunes the hot tier, the query trie and the sweep.
type CacheConfig struct {
	ReportTTLHours        int `yaml:"report_ttl_hours"`         // durable + hot TTL, default 168 (7d)
	AnalysisCapacity      int `yaml:"analysis_capacity"`        // default 100
	ComparisonCapacity    int `yaml:"comparison_capacity"`      // default 50
	QueryTTLMinutes       int `yaml:"query_ttl_minutes"`        // trie TTL, default 30
	SweepIntervalHours    int `yaml:"sweep_interval_hours"`     // default 24
	TrieCleanupMinutes    int `yaml:"trie_cleanup_minutes"`     // default 60
	TaskCleanupAfterHours int `yaml:"task_cleanup_after_hours"` // default 72
}

type AIConfig struct {
	Providers       []AIProvider       `yaml:"providers"`
	GenerationModel *AIModelAssignment `yaml:"generation_model,omitempty"`
	Embedding       EmbeddingConfig    `yaml:"embedding"`
	Semantic        SemanticConfig     `yaml:"semantic"`
}

type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // OpenAI | OpenAI-Compatible | Anthropic | OpenRouter
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`      // default text-embedding-3-small
	Dimensions int    `yaml:"dimensions"` // default 384
}

type SemanticConfig struct {
	Enable              bool    `yaml:"enable"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // default 0.75
	TopK                int     `yaml:"top_k"`                // default 30
	ChunkWords          int     `yaml:"chunk_words"`          // default 120
}

// AppStoreConfig lists the upstream store providers the engine scrapes
// through. Each provider gets its own prefix query cache.
type AppStoreConfig struct {
	Providers []AppStoreProvider `yaml:"providers"`
}

type AppStoreProvider struct {
	Name     string `yaml:"name"` // e.g. "google-play", "app-store"
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`
}
