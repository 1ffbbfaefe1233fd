//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/pipeline"
	"github.com/khizarrm/outreach/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockResearcher struct {
	mock.Mock
}

func (m *mockResearcher) Run(ctx context.Context, query string) (*model.PipelineResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PipelineResult), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockHistory) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockHistory) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Company), args.Error(1)
}

func (m *mockHistory) ListEmployees(ctx context.Context, companyID int64) ([]model.Employee, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Employee), args.Error(1)
}

var testAPIConfig = apiConfig{CORSOrigins: []string{"*"}, RequestTimeout: time.Minute}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(new(mockResearcher), nil, testAPIConfig)

	rr := serve(h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	h := buildRouter(new(mockResearcher), nil, testAPIConfig)

	rr := serve(h, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRouter_ResearchOK(t *testing.T) {
	r := new(mockResearcher)
	res := model.NewPipelineResult("acme.com", model.CompanyMetadata{Name: "Acme"})
	res.People = []model.Person{{Name: "Jane Doe", Role: "CEO", Emails: []string{"jane@acme.com"}}}
	r.On("Run", mock.Anything, "Acme Inc").Return(&res, nil)

	h := buildRouter(r, nil, testAPIConfig)
	rr := serve(h, http.MethodPost, "/research", `{"query":"  Acme Inc "}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var got model.PipelineResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "Acme", got.Company)
	assert.Equal(t, "https://acme.com", got.Website)
	require.Len(t, got.People, 1)
	assert.Equal(t, "jane@acme.com", got.People[0].Emails[0])
	r.AssertExpectations(t)
}

func TestRouter_ResearchRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"query":`, "invalid request body"},
		{"missing", `{}`, "query is required"},
		{"blank", `{"query":"   "}`, "query is required"},
		{"too long", fmt.Sprintf(`{"query":%q}`, strings.Repeat("a", 501)), "query too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(mockResearcher)
			h := buildRouter(r, nil, testAPIConfig)

			rr := serve(h, http.MethodPost, "/research", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.want, decodeError(t, rr))
			r.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestRouter_ResearchErrorStatuses(t *testing.T) {
	tests := []struct {
		kind   pipeline.Kind
		status int
		msg    string
	}{
		{pipeline.KindInvalidInput, http.StatusBadRequest, "No valid domain found in query"},
		{pipeline.KindUnresolvable, http.StatusBadRequest, "Domain is invalid"},
		{pipeline.KindNoLeadership, http.StatusNotFound, "No leadership found for this company"},
		{pipeline.KindExtraction, http.StatusInternalServerError, "Processing failed"},
		{pipeline.KindEnrichment, http.StatusInternalServerError, "Processing failed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			r := new(mockResearcher)
			r.On("Run", mock.Anything, "acme.com").
				Return(nil, &pipeline.Error{Kind: tt.kind, Err: errors.New("boom")})

			h := buildRouter(r, nil, testAPIConfig)
			rr := serve(h, http.MethodPost, "/research", `{"query":"acme.com"}`)

			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, decodeError(t, rr), tt.msg)
		})
	}
}

func TestRouter_ResearchUnclassifiedErrorIs500(t *testing.T) {
	r := new(mockResearcher)
	r.On("Run", mock.Anything, "acme.com").Return(nil, errors.New("unexpected"))

	h := buildRouter(r, nil, testAPIConfig)
	rr := serve(h, http.MethodPost, "/research", `{"query":"acme.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Processing failed: unexpected", decodeError(t, rr))
}

func TestRouter_ResearchAppliesTimeout(t *testing.T) {
	r := new(mockResearcher)
	r.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "acme.com").Return(&model.PipelineResult{Domain: "acme.com"}, nil)

	h := buildRouter(r, nil, testAPIConfig)
	rr := serve(h, http.MethodPost, "/research", `{"query":"acme.com"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	r.AssertExpectations(t)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := buildRouter(new(mockResearcher), nil, testAPIConfig)

	req := httptest.NewRequest(http.MethodOptions, "/research", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ListingsWithoutStore(t *testing.T) {
	h := buildRouter(new(mockResearcher), nil, testAPIConfig)

	for _, path := range []string{"/companies", "/companies/1/employees", "/runs", "/runs/abc"} {
		rr := serve(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestRouter_ListCompanies(t *testing.T) {
	hist := new(mockHistory)
	website := "https://acme.com"
	hist.On("ListCompanies", mock.Anything, store.CompanyFilter{Limit: 10, Offset: 20}).
		Return([]model.Company{{ID: 7, Name: "Acme", Website: &website, EmployeeCount: 2}}, nil)

	h := buildRouter(new(mockResearcher), hist, testAPIConfig)
	rr := serve(h, http.MethodGet, "/companies?limit=10&offset=20", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.Company
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)
	assert.Equal(t, 2, got[0].EmployeeCount)
	hist.AssertExpectations(t)
}

func TestRouter_ListCompaniesEmptyIsArray(t *testing.T) {
	hist := new(mockHistory)
	hist.On("ListCompanies", mock.Anything, store.CompanyFilter{}).Return(nil, nil)

	h := buildRouter(new(mockResearcher), hist, testAPIConfig)
	rr := serve(h, http.MethodGet, "/companies", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRouter_ListCompaniesBadPagination(t *testing.T) {
	hist := new(mockHistory)
	h := buildRouter(new(mockResearcher), hist, testAPIConfig)

	rr := serve(h, http.MethodGet, "/companies?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid limit", decodeError(t, rr))

	rr = serve(h, http.MethodGet, "/companies?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid offset", decodeError(t, rr))

	hist.AssertNotCalled(t, "ListCompanies", mock.Anything, mock.Anything)
}

func TestRouter_ListCompaniesStoreError(t *testing.T) {
	hist := new(mockHistory)
	hist.On("ListCompanies", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	h := buildRouter(new(mockResearcher), hist, testAPIConfig)
	rr := serve(h, http.MethodGet, "/companies", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "failed to list companies", decodeError(t, rr))
}

func TestRouter_ListEmployees(t *testing.T) {
	hist := new(mockHistory)
	hist.On("ListEmployees", mock.Anything, int64(7)).
		Return([]model.Employee{{ID: 1, CompanyID: 7, Name: "Jane Doe", Title: "CEO", Email: "jane@acme.com"}}, nil)

	h := buildRouter(new(mockResearcher), hist, testAPIConfig)
	rr := serve(h, http.MethodGet, "/companies/7/employees", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.Employee
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Jane Doe", got[0].Name)
	assert.Equal(t, int64(7), got[0].CompanyID)
}

func TestRouter_ListEmployeesBadID(t *testing.T) {
	hist := new(mockHistory)
	h := buildRouter(new(mockResearcher), hist, testAPIConfig)

	for _, id := range []string{"abc", "0", "-3"} {
		rr := serve(h, http.MethodGet, "/companies/"+id+"/employees", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, id)
	}
	hist.AssertNotCalled(t, "ListEmployees", mock.Anything, mock.Anything)
}

func TestRouter_ListRunsFilters(t *testing.T) {
	hist := new(mockHistory)
	hist.On("ListRuns", mock.Anything, store.RunFilter{Status: model.RunStatusDone, Domain: "acme.com", Limit: 5}).
		Return([]model.Run{{ID: "run-1", Query: "acme", Status: model.RunStatusDone}}, nil)

	h := buildRouter(new(mockResearcher), hist, testAPIConfig)
	rr := serve(h, http.MethodGet, "/runs?status=done&domain=acme.com&limit=5", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"run-1"`)
	hist.AssertExpectations(t)
}

func TestRouter_GetRun(t *testing.T) {
	hist := new(mockHistory)
	hist.On("GetRun", mock.Anything, "run-1").
		Return(&model.Run{ID: "run-1", Query: "acme", Status: model.RunStatusFailed, Error: "boom"}, nil)
	hist.On("GetRun", mock.Anything, "missing").
		Return(nil, fmt.Errorf("get run: %w", store.ErrNotFound))

	h := buildRouter(new(mockResearcher), hist, testAPIConfig)

	rr := serve(h, http.MethodGet, "/runs/run-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, "boom", run.Error)

	rr = serve(h, http.MethodGet, "/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "run not found", decodeError(t, rr))
}
