// Package chronograph is a temporally-aware knowledge graph store.
// Episodes of raw text are distilled into entity nodes and relationship
// edges by model capabilities, deduplicated against the existing graph,
// and persisted with bi-temporal validity intervals so the graph can be
// queried as of any moment. Retrieval fuses semantic, lexical, and
// graph-traversal rankings.
package chronograph

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chronograph-io/chronograph/pkg/audit"
	"github.com/chronograph-io/chronograph/pkg/community"
	"github.com/chronograph-io/chronograph/pkg/config"
	"github.com/chronograph-io/chronograph/pkg/dedup"
	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/embedder"
	"github.com/chronograph-io/chronograph/pkg/llm"
	"github.com/chronograph-io/chronograph/pkg/reranker"
	"github.com/chronograph-io/chronograph/pkg/search"
	"github.com/chronograph-io/chronograph/pkg/types"
	"github.com/chronograph-io/chronograph/pkg/utils"
)

// Client is the top-level handle. One Client owns the store connection,
// the capability clients, and the per-namespace ingestion queues.
type Client struct {
	store    driver.GraphDriver
	llm      llm.Client
	embedder embedder.Client
	reranker reranker.Client
	resolver *dedup.Resolver
	searcher *search.Engine
	detector *community.Detector
	auditor  *audit.Writer
	schemas  types.SchemaSet
	config   *config.Config
	logger   *slog.Logger

	mu     sync.Mutex
	groups map[string]*sync.Mutex
	closed bool
}

// Options overrides pieces of the default wiring; zero fields keep the
// config-driven construction. Tests inject fakes this way.
type Options struct {
	Store    driver.GraphDriver
	LLM      llm.Client
	Embedder embedder.Client
	Reranker reranker.Client
	Logger   *slog.Logger
	Schemas  types.SchemaSet
}

// New wires a Client from configuration.
func New(cfg *config.Config, opts *Options) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("chronograph: nil config")
	}
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = newLogger(cfg.Log)
	}

	limiter := utils.NewLimiter(cfg.Pipeline.CapabilityConcurrency)

	store := opts.Store
	if store == nil {
		var err error
		store, err = newStore(cfg.Store, logger)
		if err != nil {
			return nil, err
		}
	}

	llmClient := opts.LLM
	if llmClient == nil {
		var err error
		llmClient, err = newLLM(cfg.LLM, limiter)
		if err != nil {
			return nil, err
		}
	}

	embedClient := opts.Embedder
	if embedClient == nil {
		embedClient = embedder.WithLimiter(embedder.NewOpenAIClient(embedder.OpenAIConfig{
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			BaseURL: cfg.Embedding.BaseURL,
		}), limiter)
	}

	rerankClient := opts.Reranker
	if rerankClient == nil && cfg.Reranker.Enabled {
		rerankClient = reranker.WithLimiter(reranker.NewOpenAIReranker(reranker.OpenAIConfig{
			APIKey:  cfg.Reranker.APIKey,
			Model:   cfg.Reranker.Model,
			BaseURL: cfg.Reranker.BaseURL,
		}), limiter)
	}

	schemas := opts.Schemas
	if schemas == nil && cfg.SchemaPath != "" {
		loaded, err := config.LoadSchemas(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("chronograph: %w", err)
		}
		schemas = loaded
	}

	var auditor *audit.Writer
	if cfg.Audit.Enabled {
		w, err := audit.NewWriter(cfg.Audit.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("chronograph: %w", err)
		}
		auditor = w
	}

	client := &Client{
		store:    store,
		llm:      llmClient,
		embedder: embedClient,
		reranker: rerankClient,
		resolver: dedup.NewResolver(llmClient, dedup.Config{
			PrefilterThreshold: cfg.Dedup.PrefilterThreshold,
			ShortlistSize:      cfg.Dedup.ShortlistSize,
		}, logger),
		searcher: search.NewEngine(store, embedClient, rerankClient, search.Config{
			RankConstant:   cfg.Search.RankConstant,
			MMRLambda:      cfg.Search.MMRLambda,
			RetrievalDepth: cfg.Search.RetrievalDepth,
		}, logger),
		detector: community.NewDetector(store, llmClient, community.Config{
			MinSize:       cfg.Community.MinSize,
			MaxIterations: cfg.Community.MaxIterations,
		}, logger),
		auditor: auditor,
		schemas: schemas,
		config:  cfg,
		logger:  logger,
		groups:  make(map[string]*sync.Mutex),
	}
	return client, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(cfg config.StoreConfig, logger *slog.Logger) (driver.GraphDriver, error) {
	switch cfg.Backend {
	case "", "badger":
		return driver.NewBadgerDriver(cfg.Path, logger)
	case "neo4j":
		return driver.NewNeo4jDriver(driver.Neo4jConfig{
			URI:              cfg.URI,
			Username:         cfg.Username,
			Password:         cfg.Password,
			Database:         cfg.Database,
			VectorDimensions: cfg.VectorDimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("chronograph: unknown store backend %q", cfg.Backend)
	}
}

func newLLM(cfg config.LLMConfig, limiter *utils.Limiter) (llm.Client, error) {
	var base llm.Client
	switch cfg.Provider {
	case "", "openai":
		base = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "anthropic":
		base = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("chronograph: unknown llm provider %q", cfg.Provider)
	}

	retryCfg := llm.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialDelayMS > 0 {
		retryCfg.InitialDelay = time.Duration(cfg.InitialDelayMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		retryCfg.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}

	var client llm.Client = llm.NewRetryClient(base, retryCfg)
	if cfg.BreakerEnabled {
		breakerCfg := llm.DefaultBreakerConfig()
		if cfg.BreakerRatio > 0 {
			breakerCfg.FailureRatio = cfg.BreakerRatio
		}
		client = llm.NewBreakerClient(client, breakerCfg)
	}
	return llm.WithLimiter(client, limiter), nil
}

// groupLock returns the mutex serializing ingestion for one namespace.
func (c *Client) groupLock(groupID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.groups[groupID]
	if !ok {
		lock = &sync.Mutex{}
		c.groups[groupID] = lock
	}
	return lock
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the store and capability clients. In-flight episodes
// finish; new calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var firstErr error
	if c.auditor != nil {
		if err := c.auditor.Close(); err != nil {
			firstErr = err
		}
	}
	for _, closer := range []interface{ Close() error }{c.llm, c.embedder} {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.reranker != nil {
		if err := c.reranker.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
