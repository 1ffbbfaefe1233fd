// Package mcpserver exposes company research and web search as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/pipeline"
)

// Researcher runs a research pipeline for a query.
type Researcher interface {
	Run(ctx context.Context, query string) (*model.PipelineResult, error)
}

// WebSearcher runs a single web search.
type WebSearcher interface {
	Search(ctx context.Context, query string, numResults int) []model.EvidenceRecord
}

// Server is the outreach MCP server.
type Server struct {
	research Researcher
	search   WebSearcher
	server   *mcp.Server
}

// New creates a Server. search may be nil, in which case search_web is not
// offered.
func New(research Researcher, search WebSearcher, version string) *Server {
	s := &Server{
		research: research,
		search:   search,
		server:   mcp.NewServer(&mcp.Implementation{Name: "outreach", Version: version}, nil),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns a streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves streamable HTTP on addr until ctx is canceled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	zap.L().Info("mcp: listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "mcp: serve http")
	}
	return nil
}

// ResearchInput is the input of research_company.
type ResearchInput struct {
	Query string `json:"query" jsonschema:"a company domain, URL, or a sentence containing one"`
}

// SearchInput is the input of search_web.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query"`
	NumResults int    `json:"numResults,omitempty" jsonschema:"number of results to return (default 5)"`
}

// SearchOutput is the output of search_web.
type SearchOutput struct {
	Results []model.EvidenceRecord `json:"results"`
	Count   int                    `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "research_company",
		Description: "Research a company by domain and return its metadata and leadership team with confidence-filtered contacts.",
	}, s.handleResearch)

	if s.search != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "search_web",
			Description: "Search the web and return titles, URLs and content snippets.",
		}, s.handleSearch)
	}
}

func (s *Server) handleResearch(ctx context.Context, _ *mcp.CallToolRequest, in ResearchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, nil, eris.New("query is required")
	}
	res, err := s.research.Run(ctx, in.Query)
	if err != nil {
		zap.L().Warn("mcp: research failed", zap.String("query", in.Query), zap.Error(err))
		return nil, nil, eris.New(pipeline.Message(err))
	}
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, nil, eris.Wrap(err, "mcp: marshal result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, eris.New("query is required")
	}
	recs := s.search.Search(ctx, in.Query, in.NumResults)
	return nil, SearchOutput{Results: recs, Count: len(recs)}, nil
}
