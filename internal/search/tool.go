package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/policy"
	"github.com/khizarrm/outreach/internal/resilience"
)

// Cache stores search results between runs.
type Cache interface {
	GetCachedSearch(ctx context.Context, key string) ([]model.EvidenceRecord, bool, error)
	SetCachedSearch(ctx context.Context, key string, records []model.EvidenceRecord, ttl time.Duration) error
}

// Options tune the search tool.
type Options struct {
	Timeout        time.Duration
	DefaultResults int
	MaxResults     int
	SnippetChars   int
	Concurrency    int
	CacheTTL       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.DefaultResults <= 0 {
		o.DefaultResults = 5
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = 1500
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Tool is the search capability exposed to the research agents. It is safe
// for concurrent use and shared across runs.
type Tool struct {
	provider Provider
	limiter  *AdaptiveLimiter
	cache    Cache
	opts     Options
}

// NewTool builds a Tool. limiter and cache may be nil.
func NewTool(provider Provider, limiter *AdaptiveLimiter, cache Cache, opts Options) *Tool {
	return &Tool{provider: provider, limiter: limiter, cache: cache, opts: opts.withDefaults()}
}

// Input is the argument object the model passes to the search tool.
type Input struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults,omitempty"`
}

// Definition describes the search tool to the model using the policy text.
func Definition(p *policy.Policy) llm.Tool {
	return llm.Tool{
		Name:        p.SearchTool.Name,
		Description: p.SearchTool.Description,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": p.SearchTool.QueryDescription,
				},
				"numResults": map[string]any{
					"type":        "integer",
					"description": p.SearchTool.NumResultsDescription,
				},
			},
			"required": []string{"query"},
		},
	}
}

// Search runs one query. Failures and timeouts yield an empty list.
func (t *Tool) Search(ctx context.Context, query string, numResults int) []model.EvidenceRecord {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.EvidenceRecord{}
	}
	n := t.clamp(numResults)
	log := zap.L().With(zap.String("query", query), zap.Int("num_results", n))

	key := cacheKey(t.provider.Name(), query, n)
	if recs, ok := t.cached(ctx, key); ok {
		log.Debug("search cache hit")
		return recs
	}

	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	if t.limiter != nil {
		if err := t.limiter.Wait(callCtx); err != nil {
			searchRequests.WithLabelValues(t.provider.Name(), "rate_limited").Inc()
			log.Warn("search skipped waiting for rate limiter", zap.Error(err))
			return []model.EvidenceRecord{}
		}
	}

	start := time.Now()
	raw, err := t.provider.Search(callCtx, query, n)
	searchDuration.WithLabelValues(t.provider.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		searchRequests.WithLabelValues(t.provider.Name(), "error").Inc()
		if t.limiter != nil && throttled(err) {
			t.limiter.OnRateLimit()
		}
		log.Warn("search failed, continuing with no results", zap.Error(err))
		return []model.EvidenceRecord{}
	}
	if t.limiter != nil {
		t.limiter.OnSuccess()
	}

	recs := t.clean(raw, n)
	searchRequests.WithLabelValues(t.provider.Name(), "ok").Inc()
	log.Info("search complete", zap.Int("results", len(recs)))

	if t.cache != nil && t.opts.CacheTTL > 0 {
		if err := t.cache.SetCachedSearch(ctx, key, recs, t.opts.CacheTTL); err != nil {
			log.Warn("search cache write failed", zap.Error(err))
		}
	}
	return recs
}

// Call is one search request within a round trip.
type Call struct {
	Query      string
	NumResults int
}

// SearchAll runs calls concurrently and returns results in call order.
func (t *Tool) SearchAll(ctx context.Context, calls []Call) [][]model.EvidenceRecord {
	out := make([][]model.EvidenceRecord, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Concurrency)
	for i, c := range calls {
		g.Go(func() error {
			out[i] = t.Search(gctx, c.Query, c.NumResults)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (t *Tool) clamp(n int) int {
	if n <= 0 {
		n = t.opts.DefaultResults
	}
	return max(1, min(n, t.opts.MaxResults))
}

func (t *Tool) clean(raw []model.EvidenceRecord, n int) []model.EvidenceRecord {
	out := make([]model.EvidenceRecord, 0, len(raw))
	for _, r := range raw {
		r.Title = strings.TrimSpace(r.Title)
		r.Content = truncateRunes(strings.TrimSpace(r.Content), t.opts.SnippetChars)
		if r.Empty() {
			continue
		}
		out = append(out, r)
		if len(out) == n {
			break
		}
	}
	return out
}

func (t *Tool) cached(ctx context.Context, key string) ([]model.EvidenceRecord, bool) {
	if t.cache == nil || t.opts.CacheTTL <= 0 {
		return nil, false
	}
	recs, ok, err := t.cache.GetCachedSearch(ctx, key)
	switch {
	case err != nil:
		searchCache.WithLabelValues("error").Inc()
		zap.L().Warn("search cache read failed", zap.Error(err))
		return nil, false
	case !ok:
		searchCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	searchCache.WithLabelValues("hit").Inc()
	if recs == nil {
		recs = []model.EvidenceRecord{}
	}
	return recs, true
}

func cacheKey(provider, query string, n int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", provider, strings.ToLower(query), n)))
	return hex.EncodeToString(sum[:])
}

func throttled(err error) bool {
	var se *resilience.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
