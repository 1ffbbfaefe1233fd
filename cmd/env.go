package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/db"
	"github.com/khizarrm/outreach/internal/domain"
	"github.com/khizarrm/outreach/internal/enrich"
	"github.com/khizarrm/outreach/internal/index"
	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/pipeline"
	"github.com/khizarrm/outreach/internal/policy"
	"github.com/khizarrm/outreach/internal/resilience"
	"github.com/khizarrm/outreach/internal/search"
	"github.com/khizarrm/outreach/internal/store"
	"github.com/khizarrm/outreach/pkg/anthropic"
	"github.com/khizarrm/outreach/pkg/exa"
	"github.com/khizarrm/outreach/pkg/jina"
	"github.com/khizarrm/outreach/pkg/perplexity"
)

// appEnv holds the initialized pipeline and its collaborators. Store is nil
// when the store driver is "none".
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Search   *search.Tool
	Index    *index.Async

	stopWatch context.CancelFunc
}

// Close drains background indexing and releases the store.
func (e *appEnv) Close() {
	if e.stopWatch != nil {
		e.stopWatch()
	}
	if e.Index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.Index.Drain(ctx); err != nil {
			zap.L().Warn("index drain incomplete", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}

// initStore opens the configured store. It returns a nil Store for the
// "none" driver.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// requireStore opens and migrates the store for commands that read history.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store.driver is none; run history and companies are unavailable")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates config for mode and wires the pipeline.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
	}

	holder, err := initPolicy()
	if err != nil {
		return nil, err
	}
	if cfg.Pipeline.WatchPolicy && cfg.Pipeline.PolicyPath != "" {
		watchCtx, cancel := context.WithCancel(context.Background())
		env.stopWatch = cancel
		go func() {
			if err := holder.Watch(watchCtx, cfg.Pipeline.PolicyPath); err != nil {
				zap.L().Warn("policy watch stopped", zap.Error(err))
			}
		}()
	}

	agentModel, extractModel := initModels()
	env.Search = initSearch(env.Store)

	enricher, err := initEnricher(ctx)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Validator: domain.NewValidator(domain.Config{
			Resolve: cfg.Domain.Resolve,
			Timeout: time.Duration(cfg.Domain.TimeoutSecs) * time.Second,
		}, nil),
		AgentModel:   agentModel,
		ExtractModel: extractModel,
		Searcher:     env.Search,
		Policy:       holder,
		Enricher:     enricher,
	}
	if env.Store != nil {
		deps.Runs = env.Store
		deps.Companies = env.Store
	}

	if cfg.Index.Provider == "weaviate" {
		indexer, err := initIndexer(ctx)
		if err != nil {
			return nil, err
		}
		env.Index = index.NewAsync(indexer, time.Duration(cfg.Index.TimeoutSecs)*time.Second)
		deps.Index = env.Index
	}

	env.Pipeline = pipeline.New(pipeline.Config{
		ResearchRoundTrips:     cfg.Pipeline.ResearchRoundTrips,
		PeopleRoundTrips:       cfg.Pipeline.PeopleRoundTrips,
		RevalidationRoundTrips: cfg.Pipeline.RevalidationRoundTrips,
		SufficiencyThreshold:   cfg.Pipeline.SufficiencyThreshold,
		LowConfidenceFallback:  cfg.Pipeline.LowConfidenceFallback,
		MaxTokens:              cfg.LLM.MaxTokens,
		EnrichTimeout:          time.Duration(cfg.Enrich.TimeoutSecs) * time.Second,
	}, deps)

	zap.L().Info("pipeline initialized",
		zap.String("mode", mode),
		zap.String("store", cfg.Store.Driver),
		zap.String("llm", cfg.LLM.Provider),
		zap.Strings("search", cfg.Search.Providers),
		zap.String("enrich", enricher.Name()),
		zap.String("index", cfg.Index.Provider),
		zap.String("policy_version", holder.Current().Version),
	)

	ok = true
	return env, nil
}

func initPolicy() (*policy.Holder, error) {
	if cfg.Pipeline.PolicyPath == "" {
		return policy.NewHolder(policy.Default()), nil
	}
	p, err := policy.Load(cfg.Pipeline.PolicyPath)
	if err != nil {
		return nil, eris.Wrap(err, "load policy")
	}
	return policy.NewHolder(p), nil
}

// initModels returns the tool-loop model and the extraction model.
func initModels() (llm.Model, llm.Model) {
	if cfg.LLM.Provider == "openai" {
		client := llm.NewOpenAIClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL)
		return llm.NewOpenAI(client, cfg.OpenAI.AgentModel), llm.NewOpenAI(client, cfg.OpenAI.ExtractModel)
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return llm.NewAnthropic(client, cfg.Anthropic.AgentModel), llm.NewAnthropic(client, cfg.Anthropic.ExtractModel)
}

// initSearch builds the search tool over the configured provider chain.
// cache may be nil.
func initSearch(cache search.Cache) *search.Tool {
	breakers := resilience.NewServiceBreakers(resilience.NewCircuitBreakerConfig(
		cfg.Search.BreakerThreshold,
		time.Duration(cfg.Search.BreakerResetSecs)*time.Second,
	))

	var providers []search.Provider
	for _, name := range cfg.Search.Providers {
		switch name {
		case "exa":
			providers = append(providers, search.NewExa(
				exa.NewClient(cfg.Exa.Key, exa.WithBaseURL(cfg.Exa.BaseURL)),
				cfg.Search.SnippetChars,
			))
		case "jina":
			providers = append(providers, search.NewJina(
				jina.NewClient(cfg.Jina.Key, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL)),
			))
		case "perplexity":
			providers = append(providers, search.NewPerplexity(
				perplexity.NewClient(cfg.Perplexity.Key, perplexity.WithBaseURL(cfg.Perplexity.BaseURL)),
			))
		}
	}

	var limiter *search.AdaptiveLimiter
	if cfg.Search.RatePerSec > 0 {
		limiter = search.NewAdaptiveLimiter(cfg.Search.RatePerSec, cfg.Search.Burst)
	}

	return search.NewTool(search.NewChain(breakers, providers...), limiter, cache, search.Options{
		Timeout:        cfg.SearchTimeout(),
		DefaultResults: cfg.Search.DefaultResults,
		MaxResults:     cfg.Search.MaxResults,
		SnippetChars:   cfg.Search.SnippetChars,
		Concurrency:    cfg.Search.Concurrency,
		CacheTTL:       time.Duration(cfg.Search.CacheTTLHours) * time.Hour,
	})
}

func initEnricher(ctx context.Context) (enrich.Enricher, error) {
	if cfg.Enrich.Provider != "gemini" {
		return enrich.Noop{}, nil
	}
	g, err := enrich.NewGemini(ctx, enrich.GeminiConfig{
		APIKey: cfg.Gemini.Key,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init enricher")
	}
	return g, nil
}

// initIndexer connects to Weaviate and ensures the schema. A schema failure
// is logged; writes will be retried per row.
func initIndexer(ctx context.Context) (index.Indexer, error) {
	w, err := index.NewWeaviate(index.WeaviateConfig{
		Host:       cfg.Index.Host,
		Scheme:     cfg.Index.Scheme,
		APIKey:     cfg.Index.APIKey,
		Vectorizer: cfg.Index.Vectorizer,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init indexer")
	}
	schemaCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Index.TimeoutSecs)*time.Second)
	defer cancel()
	if err := w.EnsureSchema(schemaCtx); err != nil {
		zap.L().Warn("weaviate schema not ensured", zap.Error(err))
	}
	return w, nil
}
