package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khizarrm/outreach/internal/model"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "who runs acme.io")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusValidating, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "who runs acme.io", got.Query)
		assert.Equal(t, model.RunStatusValidating, got.Status)
		assert.Empty(t, got.Stages)
		assert.Nil(t, got.Result)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RunLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "acme.io")
		require.NoError(t, err)

		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusResearching))
		require.NoError(t, s.RecordStage(ctx, run.ID, model.StageResult{
			Name:       "validating",
			Status:     model.StageStatusComplete,
			Duration:   3,
			TokenUsage: model.TokenUsage{},
		}))
		require.NoError(t, s.RecordStage(ctx, run.ID, model.StageResult{
			Name:       "researching",
			Status:     model.StageStatusComplete,
			TokenUsage: model.TokenUsage{InputTokens: 100, OutputTokens: 20, Cost: 0.01},
		}))

		result := model.NewPipelineResult("acme.io", model.CompanyMetadata{Name: "Acme"})
		result.People = []model.Person{{Name: "Jane Doe", Role: "CEO", Emails: []string{}}}
		require.NoError(t, s.FinishRun(ctx, run.ID, RunOutcome{
			Status: model.RunStatusDone,
			Domain: "acme.io",
			Result: &result,
		}))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusDone, got.Status)
		assert.Equal(t, "acme.io", got.Domain)
		require.Len(t, got.Stages, 2)
		assert.Equal(t, "validating", got.Stages[0].Name)
		assert.Equal(t, 100, got.Stages[1].TokenUsage.InputTokens)
		require.NotNil(t, got.Result)
		assert.Equal(t, "Acme", got.Result.Company)
		assert.Equal(t, "Jane Doe", got.Result.People[0].Name)
	})

	t.Run("FinishRunFailed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "not a domain")
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(ctx, run.ID, RunOutcome{Status: model.RunStatusFailed, Error: "invalid input"}))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "invalid input", got.Error)
		assert.Nil(t, got.Result)
	})

	t.Run("UpdateMissingRun", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusDone)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRunsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, d := range []string{"a.io", "b.io", "a.io"} {
			run, err := s.CreateRun(ctx, d)
			require.NoError(t, err)
			require.NoError(t, s.FinishRun(ctx, run.ID, RunOutcome{Status: model.RunStatusDone, Domain: d}))
		}
		run, err := s.CreateRun(ctx, "c.io")
		require.NoError(t, err)
		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusResearching))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		byDomain, err := s.ListRuns(ctx, RunFilter{Domain: "a.io"})
		require.NoError(t, err)
		assert.Len(t, byDomain, 2)

		active, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusResearching})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "c.io", active[0].Query)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})

	t.Run("SearchCache", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		recs := []model.EvidenceRecord{{Title: "Acme", URL: "https://acme.io", Content: "rockets"}}

		_, ok, err := s.GetCachedSearch(ctx, "exa|acme|5")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetCachedSearch(ctx, "exa|acme|5", recs, time.Hour))
		got, ok, err := s.GetCachedSearch(ctx, "exa|acme|5")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, recs, got)

		// Overwrite keeps a single row.
		require.NoError(t, s.SetCachedSearch(ctx, "exa|acme|5", []model.EvidenceRecord{}, time.Hour))
		got, ok, err = s.GetCachedSearch(ctx, "exa|acme|5")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("SearchCacheExpiry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetCachedSearch(ctx, "old", []model.EvidenceRecord{{Title: "x"}}, -time.Minute))
		require.NoError(t, s.SetCachedSearch(ctx, "new", []model.EvidenceRecord{{Title: "y"}}, time.Hour))

		_, ok, err := s.GetCachedSearch(ctx, "old")
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := s.DeleteExpiredSearches(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, ok, err = s.GetCachedSearch(ctx, "new")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("UpsertCompanyMergesByName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.UpsertCompany(ctx, model.Company{
			Name:        "Acme, Inc.",
			Website:     strPtr("https://acme.io"),
			Description: strPtr("Rockets"),
			YearFounded: intPtr(2019),
		})
		require.NoError(t, err)

		again, err := s.UpsertCompany(ctx, model.Company{
			Name:     "ACME",
			Industry: strPtr("Aerospace"),
		})
		require.NoError(t, err)
		assert.Equal(t, id, again)

		_, err = s.UpsertEmployee(ctx, model.Employee{CompanyID: id, Name: "Jane Doe", Title: "CEO"})
		require.NoError(t, err)

		companies, err := s.ListCompanies(ctx, CompanyFilter{})
		require.NoError(t, err)
		require.Len(t, companies, 1)
		c := companies[0]
		assert.Equal(t, "Acme, Inc.", c.Name)
		assert.Equal(t, "Rockets", *c.Description)
		assert.Equal(t, "Aerospace", *c.Industry)
		assert.Equal(t, 2019, *c.YearFounded)
		assert.Equal(t, 1, c.EmployeeCount)
	})

	t.Run("UpsertCompanyMergesByWebsite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.UpsertCompany(ctx, model.Company{Name: "Acme", Website: strPtr("https://acme.io")})
		require.NoError(t, err)
		again, err := s.UpsertCompany(ctx, model.Company{Name: "Acme Rockets", Website: strPtr("https://acme.io")})
		require.NoError(t, err)
		assert.Equal(t, id, again)

		other, err := s.UpsertCompany(ctx, model.Company{Name: "Globex", Website: strPtr("https://globex.com")})
		require.NoError(t, err)
		assert.NotEqual(t, id, other)
	})

	t.Run("UpsertEmployeeKeepsNonEmptyFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		cid, err := s.UpsertCompany(ctx, model.Company{Name: "Acme"})
		require.NoError(t, err)

		id, err := s.UpsertEmployee(ctx, model.Employee{CompanyID: cid, Name: "Jane Doe", Title: "CEO", Email: "jane@acme.io"})
		require.NoError(t, err)
		again, err := s.UpsertEmployee(ctx, model.Employee{CompanyID: cid, Name: "Dr. Jane Doe", Title: "", Email: ""})
		require.NoError(t, err)
		assert.Equal(t, id, again)

		_, err = s.UpsertEmployee(ctx, model.Employee{CompanyID: cid, Name: "John Roe", Title: "CTO"})
		require.NoError(t, err)

		emps, err := s.ListEmployees(ctx, cid)
		require.NoError(t, err)
		require.Len(t, emps, 2)
		assert.Equal(t, "Dr. Jane Doe", emps[0].Name)
		assert.Equal(t, "CEO", emps[0].Title)
		assert.Equal(t, "jane@acme.io", emps[0].Email)
		assert.Equal(t, "", emps[1].Email)
	})

	t.Run("ListCompaniesSkipsEmpty", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.UpsertCompany(ctx, model.Company{Name: "Empty Co"})
		require.NoError(t, err)

		companies, err := s.ListCompanies(ctx, CompanyFilter{})
		require.NoError(t, err)
		assert.Empty(t, companies)
	})
}
