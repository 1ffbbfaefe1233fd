package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/pipeline"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeResearcher struct {
	res     *model.PipelineResult
	err     error
	queries []string
}

func (f *fakeResearcher) Run(_ context.Context, query string) (*model.PipelineResult, error) {
	f.queries = append(f.queries, query)
	return f.res, f.err
}

type fakeSearcher struct {
	recs []model.EvidenceRecord
	n    int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, n int) []model.EvidenceRecord {
	f.n = n
	return f.recs
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()

	ss, err := s.server.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() }) //nolint:errcheck

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() }) //nolint:errcheck
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListTools(t *testing.T) {
	cs := connect(t, New(&fakeResearcher{}, &fakeSearcher{}, "test"))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"research_company", "search_web"}, names)
}

func TestListToolsWithoutSearch(t *testing.T) {
	cs := connect(t, New(&fakeResearcher{}, nil, "test"))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "research_company", res.Tools[0].Name)
}

func TestResearchCompany(t *testing.T) {
	result := model.NewPipelineResult("acme.io", model.CompanyMetadata{Name: "Acme"})
	result.People = []model.Person{{Name: "Jane Doe", Role: "CEO", Emails: []string{"jane@acme.io"}}}
	r := &fakeResearcher{res: &result}
	cs := connect(t, New(r, nil, "test"))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "research_company",
		Arguments: map[string]any{"query": "acme.io"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got model.PipelineResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "Acme", got.Company)
	assert.Equal(t, "jane@acme.io", got.People[0].Emails[0])
	assert.Equal(t, []string{"acme.io"}, r.queries)
}

func TestResearchCompanyError(t *testing.T) {
	r := &fakeResearcher{err: &pipeline.Error{Kind: pipeline.KindInvalidInput, Err: errors.New("no domain")}}
	cs := connect(t, New(r, nil, "test"))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "research_company",
		Arguments: map[string]any{"query": "not a domain"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "No valid domain found in query")
}

func TestResearchCompanyBlankQuery(t *testing.T) {
	r := &fakeResearcher{}
	cs := connect(t, New(r, nil, "test"))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "research_company",
		Arguments: map[string]any{"query": "  "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, r.queries)
}

func TestSearchWeb(t *testing.T) {
	s := &fakeSearcher{recs: []model.EvidenceRecord{{Title: "Acme", URL: "https://acme.io", Content: "rockets"}}}
	cs := connect(t, New(&fakeResearcher{}, s, "test"))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_web",
		Arguments: map[string]any{"query": "acme rockets", "numResults": 3},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 3, s.n)

	var out SearchOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "https://acme.io", out.Results[0].URL)
}
