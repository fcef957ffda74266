package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chronograph-io/chronograph/pkg/types"
)

// Config holds all configuration for chronograph. Every threshold the
// design leaves open (dedup cutoffs, RRF rank constant, MMR lambda,
// traversal depth, concurrency) lives here rather than in code.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Reranker  RerankerConfig  `mapstructure:"reranker"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Search    SearchConfig    `mapstructure:"search"`
	Community CommunityConfig `mapstructure:"community"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Server    ServerConfig    `mapstructure:"server"`

	// SchemaPath points at a YAML file declaring entity-type schemas.
	SchemaPath string `mapstructure:"schema_path"`
}

// LogConfig controls slog setup.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// StoreConfig selects and parameterizes the graph store backend.
type StoreConfig struct {
	Backend  string `mapstructure:"backend"` // badger or neo4j
	Path     string `mapstructure:"path"`    // badger data directory
	URI      string `mapstructure:"uri"`     // neo4j bolt uri
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// VectorDimensions sizes the neo4j vector indexes; it must match the
	// embedder's output width.
	VectorDimensions int `mapstructure:"vector_dimensions"`
}

// LLMConfig parameterizes the language-model capability.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // openai or anthropic
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	MaxRetries     int     `mapstructure:"max_retries"`
	InitialDelayMS int     `mapstructure:"initial_delay_ms"`
	MaxDelayMS     int     `mapstructure:"max_delay_ms"`
	BreakerEnabled bool    `mapstructure:"breaker_enabled"`
	BreakerRatio   float64 `mapstructure:"breaker_ratio"`
}

// EmbeddingConfig parameterizes the embedding capability.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// RerankerConfig parameterizes the optional cross-encoder capability.
type RerankerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// PipelineConfig tunes the episode pipeline.
type PipelineConfig struct {
	// MaxEpisodeBytes bounds an episode body; 0 disables the check.
	MaxEpisodeBytes int `mapstructure:"max_episode_bytes"`
	// ContextWindow is how many prior episodes accompany extraction for
	// coreference context.
	ContextWindow int `mapstructure:"context_window"`
	// MaxExtractionAttempts caps the reflexion loop, first pass included.
	MaxExtractionAttempts int `mapstructure:"max_extraction_attempts"`
	// CapabilityConcurrency is the global semaphore over outstanding
	// model/embedding/reranker calls.
	CapabilityConcurrency int `mapstructure:"capability_concurrency"`
	// RelationOverlapThreshold is the fact-embedding cosine above which
	// two differently-named relations are treated as overlapping during
	// invalidation.
	RelationOverlapThreshold float64 `mapstructure:"relation_overlap_threshold"`
	// UpdateCommunities triggers incremental community detection after
	// each persisted episode.
	UpdateCommunities bool `mapstructure:"update_communities"`
}

// DedupConfig tunes the deduplication engine.
type DedupConfig struct {
	// PrefilterThreshold is the minimum combined name-similarity score
	// for an existing entity to enter the judgment shortlist.
	PrefilterThreshold float64 `mapstructure:"prefilter_threshold"`
	// ShortlistSize caps the shortlist sent to the model judgment.
	ShortlistSize int `mapstructure:"shortlist_size"`
}

// SearchConfig tunes the hybrid search engine defaults.
type SearchConfig struct {
	// RankConstant is the k in reciprocal rank fusion.
	RankConstant int `mapstructure:"rank_constant"`
	// MMRLambda trades relevance against diversity in [0, 1].
	MMRLambda float64 `mapstructure:"mmr_lambda"`
	// MaxHops bounds center-node graph traversal.
	MaxHops int `mapstructure:"max_hops"`
	// RetrievalDepth is the per-method top-K before fusion.
	RetrievalDepth int `mapstructure:"retrieval_depth"`
	// RerankDepth bounds candidates sent to the cross-encoder.
	RerankDepth int `mapstructure:"rerank_depth"`
}

// CommunityConfig tunes label-propagation community detection.
type CommunityConfig struct {
	MinSize       int `mapstructure:"min_size"`
	MaxIterations int `mapstructure:"max_iterations"`
}

// AuditConfig controls the parquet episode audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig holds the HTTP adapter settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// Load reads configuration from the given file (optional), environment
// variables prefixed CHRONOGRAPH_, and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHRONOGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvCredentials(cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.backend", "badger")
	v.SetDefault("store.path", "./chronograph_data")
	v.SetDefault("store.vector_dimensions", 1536)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.initial_delay_ms", 1000)
	v.SetDefault("llm.max_delay_ms", 60000)
	v.SetDefault("llm.breaker_enabled", true)
	v.SetDefault("llm.breaker_ratio", 0.6)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")

	v.SetDefault("reranker.enabled", false)
	v.SetDefault("reranker.provider", "openai")
	v.SetDefault("reranker.model", "gpt-4o-mini")

	v.SetDefault("pipeline.max_episode_bytes", 1<<20)
	v.SetDefault("pipeline.context_window", 5)
	v.SetDefault("pipeline.max_extraction_attempts", 3)
	v.SetDefault("pipeline.capability_concurrency", 16)
	v.SetDefault("pipeline.relation_overlap_threshold", 0.85)
	v.SetDefault("pipeline.update_communities", false)

	v.SetDefault("dedup.prefilter_threshold", 0.5)
	v.SetDefault("dedup.shortlist_size", 10)

	v.SetDefault("search.rank_constant", 60)
	v.SetDefault("search.mmr_lambda", 0.5)
	v.SetDefault("search.max_hops", 3)
	v.SetDefault("search.retrieval_depth", 20)
	v.SetDefault("search.rerank_depth", 100)

	v.SetDefault("community.min_size", 2)
	v.SetDefault("community.max_iterations", 100)

	v.SetDefault("audit.enabled", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
}

// applyEnvCredentials fills API keys and store credentials from the
// conventional environment variables when the config left them blank.
func applyEnvCredentials(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Reranker.APIKey == "" {
		cfg.Reranker.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" && cfg.Store.URI == "" {
		cfg.Store.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" && cfg.Store.Username == "" {
		cfg.Store.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" && cfg.Store.Password == "" {
		cfg.Store.Password = pass
	}
}

// LoadSchemas reads entity-type schemas from the YAML file at path.
func LoadSchemas(path string) (types.SchemaSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var schemas []*types.EntityTypeSchema
	if err := yaml.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	set := make(types.SchemaSet, len(schemas))
	for _, s := range schemas {
		if s.Label == "" {
			return nil, fmt.Errorf("schema entry missing label")
		}
		set[s.Label] = s
	}
	return set, nil
}
