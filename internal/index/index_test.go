package index

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func strPtr(s string) *string { return &s }

func TestCompanyText(t *testing.T) {
	c := model.Company{Name: "Acme", Description: strPtr("Reusable rockets"), Industry: strPtr("Aerospace")}
	assert.Equal(t, "Acme Reusable rockets Aerospace", CompanyText(c))
	assert.Equal(t, "Jane Doe CEO Acme", EmployeeText(model.Employee{Name: "Jane Doe", Title: "CEO"}, "Acme"))
	assert.Equal(t, "Jane Doe Acme", EmployeeText(model.Employee{Name: "Jane Doe"}, "Acme"))
}

func TestDeterministicIDs(t *testing.T) {
	a := CompanyID(model.Company{Name: "Acme, Inc."})
	b := CompanyID(model.Company{Name: "ACME Inc"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, CompanyID(model.Company{Name: "Globex"}))

	e1 := EmployeeID(model.Employee{CompanyID: 1, Name: "Jane Doe"})
	assert.Equal(t, e1, EmployeeID(model.Employee{CompanyID: 1, Name: "jane doe"}))
	assert.NotEqual(t, e1, EmployeeID(model.Employee{CompanyID: 2, Name: "Jane Doe"}))
}

type recordingIndexer struct {
	mu        sync.Mutex
	companies []string
	employees []string
	failFor   string
	block     chan struct{}
}

func (r *recordingIndexer) IndexCompany(ctx context.Context, c model.Company) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.companies = append(r.companies, c.Name)
	return nil
}

func (r *recordingIndexer) IndexEmployee(_ context.Context, e model.Employee, company string) error {
	if e.Name == r.failFor {
		return errors.New("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.employees = append(r.employees, company+"/"+e.Name)
	return nil
}

func TestAsync_SubmitAndDrain(t *testing.T) {
	rec := &recordingIndexer{failFor: "Bad Row"}
	a := NewAsync(rec, time.Second)

	a.Submit(model.Company{Name: "Acme"}, []model.Employee{{Name: "Jane Doe"}, {Name: "Bad Row"}, {Name: "John Roe"}})
	require.NoError(t, a.Drain(context.Background()))

	assert.Equal(t, []string{"Acme"}, rec.companies)
	assert.Equal(t, []string{"Acme/Jane Doe", "Acme/John Roe"}, rec.employees)
}

func TestAsync_SubmitAfterDrainDropped(t *testing.T) {
	rec := &recordingIndexer{}
	a := NewAsync(rec, time.Second)
	require.NoError(t, a.Drain(context.Background()))

	a.Submit(model.Company{Name: "Acme"}, nil)
	require.NoError(t, a.Drain(context.Background()))
	assert.Empty(t, rec.companies)
}

func TestAsync_DrainHonorsContext(t *testing.T) {
	rec := &recordingIndexer{block: make(chan struct{})}
	a := NewAsync(rec, time.Minute)
	a.Submit(model.Company{Name: "Acme"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Drain(ctx), context.DeadlineExceeded)

	close(rec.block)
	require.NoError(t, a.Drain(context.Background()))
	assert.Equal(t, []string{"Acme"}, rec.companies)
}

func TestAsync_TimeoutBoundsWork(t *testing.T) {
	rec := &recordingIndexer{block: make(chan struct{})}
	a := NewAsync(rec, 20*time.Millisecond)
	a.Submit(model.Company{Name: "Acme"}, nil)

	require.NoError(t, a.Drain(context.Background()))
	assert.Empty(t, rec.companies)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.IndexCompany(context.Background(), model.Company{}))
	assert.NoError(t, Noop{}.IndexEmployee(context.Background(), model.Employee{}, "Acme"))
}

type fakeWeaviate struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	existing map[string]bool
}

func (f *fakeWeaviate) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies[r.Method+" "+r.URL.Path] = string(body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/meta":
		_ = json.NewEncoder(w).Encode(map[string]any{"version": "1.35.2"})
	case r.Method == http.MethodHead:
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if f.existing[id] {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPatch:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/schema/"):
		w.WriteHeader(http.StatusNotFound)
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func newFakeWeaviate(t *testing.T, existing ...string) (*fakeWeaviate, *Weaviate) {
	t.Helper()
	f := &fakeWeaviate{bodies: map[string]string{}, existing: map[string]bool{}}
	for _, id := range existing {
		f.existing[id] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	w, err := NewWeaviate(WeaviateConfig{Host: strings.TrimPrefix(srv.URL, "http://"), Scheme: "http"})
	require.NoError(t, err)
	return f, w
}

func (f *fakeWeaviate) saw(req string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == req {
			return true
		}
	}
	return false
}

func TestWeaviate_CreatesNewCompany(t *testing.T) {
	f, w := newFakeWeaviate(t)
	c := model.Company{ID: 7, Name: "Acme", Description: strPtr("Rockets")}

	require.NoError(t, w.IndexCompany(context.Background(), c))
	assert.True(t, f.saw("POST /v1/objects"))
	assert.Contains(t, f.bodies["POST /v1/objects"], CompanyID(c))
	assert.Contains(t, f.bodies["POST /v1/objects"], "Acme Rockets")
}

func TestWeaviate_UpdatesExistingEmployee(t *testing.T) {
	e := model.Employee{CompanyID: 7, Name: "Jane Doe", Title: "CEO"}
	f, w := newFakeWeaviate(t, EmployeeID(e))

	require.NoError(t, w.IndexEmployee(context.Background(), e, "Acme"))
	assert.False(t, f.saw("POST /v1/objects"))
	assert.True(t, f.saw("PATCH /v1/objects/"+EmployeeClass+"/"+EmployeeID(e)))
}

func TestWeaviate_EnsureSchema(t *testing.T) {
	f, w := newFakeWeaviate(t)
	require.NoError(t, w.EnsureSchema(context.Background()))
	assert.True(t, f.saw("POST /v1/schema"))
	assert.Contains(t, f.bodies["POST /v1/schema"], EmployeeClass)
}
