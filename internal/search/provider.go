// Package search implements the web search tool the research agents call.
// Provider failures degrade to empty evidence and never fail a run.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/resilience"
	"github.com/khizarrm/outreach/pkg/exa"
	"github.com/khizarrm/outreach/pkg/jina"
	"github.com/khizarrm/outreach/pkg/perplexity"
)

// Provider is a web search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, numResults int) ([]model.EvidenceRecord, error)
}

// Exa searches with Exa and returns page text.
type Exa struct {
	client   exa.Client
	maxChars int
}

// NewExa wraps an Exa client. maxChars bounds the text Exa returns per page.
func NewExa(client exa.Client, maxChars int) *Exa {
	return &Exa{client: client, maxChars: maxChars}
}

func (p *Exa) Name() string { return "exa" }

func (p *Exa) Search(ctx context.Context, query string, n int) ([]model.EvidenceRecord, error) {
	resp, err := p.client.Search(ctx, exa.SearchRequest{
		Query:      query,
		Type:       "auto",
		NumResults: n,
		Contents:   &exa.Contents{Text: &exa.TextOptions{MaxCharacters: p.maxChars}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.EvidenceRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, model.EvidenceRecord{Title: r.Title, URL: r.URL, Content: r.Text})
	}
	return out, nil
}

// Jina searches with Jina AI Search.
type Jina struct {
	client jina.Client
}

// NewJina wraps a Jina client.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

func (p *Jina) Name() string { return "jina" }

func (p *Jina) Search(ctx context.Context, query string, n int) ([]model.EvidenceRecord, error) {
	resp, err := p.client.Search(ctx, query, jina.WithCount(n))
	if err != nil {
		return nil, err
	}
	out := make([]model.EvidenceRecord, 0, len(resp.Data))
	for _, r := range resp.Data {
		out = append(out, model.EvidenceRecord{Title: r.Title, URL: r.URL, Content: r.Text()})
	}
	return out, nil
}

// Perplexity searches with the Perplexity Search API.
type Perplexity struct {
	client perplexity.Client
}

// NewPerplexity wraps a Perplexity client.
func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client}
}

func (p *Perplexity) Name() string { return "perplexity" }

func (p *Perplexity) Search(ctx context.Context, query string, n int) ([]model.EvidenceRecord, error) {
	resp, err := p.client.Search(ctx, perplexity.SearchRequest{Query: query, MaxResults: n})
	if err != nil {
		return nil, err
	}
	out := make([]model.EvidenceRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, model.EvidenceRecord{Title: r.Title, URL: r.URL, Content: r.Snippet})
	}
	return out, nil
}

// Chain tries providers in order, each behind its own circuit breaker, and
// returns the first successful answer. An empty answer is a success.
type Chain struct {
	providers []Provider
	breakers  *resilience.ServiceBreakers
}

// NewChain builds a Chain. breakers may be shared across chains.
func NewChain(breakers *resilience.ServiceBreakers, providers ...Provider) *Chain {
	return &Chain{providers: providers, breakers: breakers}
}

// Name lists the chained providers.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Search(ctx context.Context, query string, n int) ([]model.EvidenceRecord, error) {
	if len(c.providers) == 0 {
		return nil, eris.New("search: no providers configured")
	}
	var errs []error
	for _, p := range c.providers {
		recs, err := resilience.ExecuteVal(ctx, c.breakers.Get(p.Name()), func(ctx context.Context) ([]model.EvidenceRecord, error) {
			return p.Search(ctx, query, n)
		})
		if err == nil {
			return recs, nil
		}
		errs = append(errs, eris.Wrapf(err, "search: %s", p.Name()))
		if ctx.Err() != nil {
			break
		}
		zap.L().Debug("search provider failed, falling through",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
	}
	return nil, errors.Join(errs...)
}
