// Package exa provides a client for the Exa neural web search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/resilience"
)

const defaultBaseURL = "https://api.exa.ai"

// Client searches the web through Exa.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query         string    `json:"query"`
	Type          string    `json:"type,omitempty"`
	NumResults    int       `json:"numResults,omitempty"`
	UseAutoprompt bool      `json:"useAutoprompt"`
	Contents      *Contents `json:"contents,omitempty"`
}

// Contents asks Exa to return page text alongside each result.
type Contents struct {
	Text *TextOptions `json:"text,omitempty"`
}

// TextOptions bounds returned page text.
type TextOptions struct {
	MaxCharacters int `json:"maxCharacters,omitempty"`
}

// SearchResponse is the response from POST /search.
type SearchResponse struct {
	RequestID string   `json:"requestId"`
	Results   []Result `json:"results"`
}

// Result is one search hit.
type Result struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Text          string  `json:"text"`
	PublishedDate string  `json:"publishedDate,omitempty"`
	Author        string  `json:"author,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates an Exa API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("exa", "search")
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Type == "" {
		req.Type = "auto"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "exa: marshal request")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*SearchResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "exa: create request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, eris.Wrap(err, "exa: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "exa: read response")
		}
		if err := resilience.CheckStatus("exa", resp, respBody); err != nil {
			return nil, err
		}

		var result SearchResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, eris.Wrap(err, "exa: unmarshal response")
		}
		return &result, nil
	})
}
