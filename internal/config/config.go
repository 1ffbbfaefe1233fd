package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Exa        ExaConfig        `yaml:"exa" mapstructure:"exa"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Domain     DomainConfig     `yaml:"domain" mapstructure:"domain"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	MCP        MCPConfig        `yaml:"mcp" mapstructure:"mcp"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs" validate:"gte=0"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// LLMConfig selects the model provider used by the tool loops and extractors.
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"oneof=anthropic openai"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=256"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	AgentModel   string `yaml:"agent_model" mapstructure:"agent_model"`
	ExtractModel string `yaml:"extract_model" mapstructure:"extract_model"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	AgentModel   string `yaml:"agent_model" mapstructure:"agent_model"`
	ExtractModel string `yaml:"extract_model" mapstructure:"extract_model"`
}

// SearchConfig configures the web search tool exposed to the model.
type SearchConfig struct {
	Providers        []string `yaml:"providers" mapstructure:"providers"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	DefaultResults   int      `yaml:"default_results" mapstructure:"default_results" validate:"gte=1"`
	MaxResults       int      `yaml:"max_results" mapstructure:"max_results" validate:"gte=1,lte=25"`
	SnippetChars     int      `yaml:"snippet_chars" mapstructure:"snippet_chars" validate:"gte=100"`
	RatePerSec       float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
	Burst            int      `yaml:"burst" mapstructure:"burst" validate:"gte=1"`
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1,lte=20"`
	CacheTTLHours    int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours" validate:"gte=0"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold" validate:"gte=1"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs" validate:"gte=1"`
}

// ExaConfig holds Exa search API settings.
type ExaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity Search API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DomainConfig configures the domain validator.
type DomainConfig struct {
	Resolve     bool `yaml:"resolve" mapstructure:"resolve"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// PipelineConfig configures the research pipeline stages.
type PipelineConfig struct {
	ResearchRoundTrips     int    `yaml:"research_round_trips" mapstructure:"research_round_trips" validate:"gte=1,lte=10"`
	PeopleRoundTrips       int    `yaml:"people_round_trips" mapstructure:"people_round_trips" validate:"gte=1,lte=10"`
	RevalidationRoundTrips int    `yaml:"revalidation_round_trips" mapstructure:"revalidation_round_trips" validate:"gte=1,lte=10"`
	SufficiencyThreshold   int    `yaml:"sufficiency_threshold" mapstructure:"sufficiency_threshold" validate:"gte=0"`
	LowConfidenceFallback  int    `yaml:"low_confidence_fallback" mapstructure:"low_confidence_fallback" validate:"gte=0,lte=10"`
	PolicyPath             string `yaml:"policy_path" mapstructure:"policy_path"`
	WatchPolicy            bool   `yaml:"watch_policy" mapstructure:"watch_policy"`
}

// EnrichConfig selects the email enrichment collaborator.
type EnrichConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider" validate:"oneof=gemini none"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// GeminiConfig holds Gemini API settings for grounded email enrichment.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// IndexConfig configures the semantic index sink.
type IndexConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider" validate:"oneof=weaviate none"`
	Host        string `yaml:"host" mapstructure:"host"`
	Scheme      string `yaml:"scheme" mapstructure:"scheme" validate:"oneof=http https"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	Vectorizer  string `yaml:"vectorizer" mapstructure:"vectorizer"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// TemporalConfig configures the Temporal worker and client.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport" validate:"oneof=stdio http"`
	Addr      string `yaml:"addr" mapstructure:"addr"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Stdout bool `yaml:"stdout" mapstructure:"stdout"`
}

// SearchTimeout returns the per-call search timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.outreach")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 300)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("anthropic.agent_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.agent_model", "gpt-4o")
	v.SetDefault("openai.extract_model", "gpt-4o-mini")
	v.SetDefault("search.providers", []string{"exa", "jina"})
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.default_results", 5)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.snippet_chars", 1500)
	v.SetDefault("search.rate_per_sec", 5.0)
	v.SetDefault("search.burst", 5)
	v.SetDefault("search.concurrency", 5)
	v.SetDefault("search.cache_ttl_hours", 24)
	v.SetDefault("search.breaker_threshold", 5)
	v.SetDefault("search.breaker_reset_secs", 30)
	v.SetDefault("exa.base_url", "https://api.exa.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("domain.resolve", true)
	v.SetDefault("domain.timeout_secs", 5)
	v.SetDefault("pipeline.research_round_trips", 3)
	v.SetDefault("pipeline.people_round_trips", 5)
	v.SetDefault("pipeline.revalidation_round_trips", 3)
	v.SetDefault("pipeline.sufficiency_threshold", 100)
	v.SetDefault("pipeline.low_confidence_fallback", 3)
	v.SetDefault("pipeline.watch_policy", false)
	v.SetDefault("enrich.provider", "none")
	v.SetDefault("enrich.timeout_secs", 60)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("index.provider", "none")
	v.SetDefault("index.host", "localhost:8081")
	v.SetDefault("index.scheme", "http")
	v.SetDefault("index.vectorizer", "text2vec-transformers")
	v.SetDefault("index.timeout_secs", 10)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "outreach-research")
	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.addr", ":8090")
	v.SetDefault("telemetry.stdout", false)

	// Secrets have no default but must be known to viper for env binding.
	for _, key := range []string{
		"anthropic.key", "openai.key", "exa.key", "jina.key", "perplexity.key",
		"gemini.key", "index.api_key", "pipeline.policy_path",
	} {
		v.SetDefault(key, "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field ranges and the keys required by the given mode
// (research, serve, worker, mcp).
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				errs = append(errs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
			} else {
				errs = append(errs, fmt.Sprintf("%s must satisfy %s", field, fe.Tag()))
			}
		}
	}

	switch mode {
	case "research", "serve", "worker", "mcp":
		errs = append(errs, c.requireProviders()...)
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port == 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if mode == "worker" && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) requireProviders() []string {
	var errs []string
	switch c.LLM.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	}

	if len(c.Search.Providers) == 0 {
		errs = append(errs, "search.providers must not be empty")
	}
	for _, p := range c.Search.Providers {
		switch p {
		case "exa":
			if c.Exa.Key == "" {
				errs = append(errs, "exa.key is required")
			}
		case "jina":
			if c.Jina.Key == "" {
				errs = append(errs, "jina.key is required")
			}
		case "perplexity":
			if c.Perplexity.Key == "" {
				errs = append(errs, "perplexity.key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("search.providers: unknown provider %q", p))
		}
	}

	if c.Enrich.Provider == "gemini" && c.Gemini.Key == "" {
		errs = append(errs, "gemini.key is required")
	}
	if c.Index.Provider == "weaviate" && c.Index.Host == "" {
		errs = append(errs, "index.host is required")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
