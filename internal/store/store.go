package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/model"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// defaultListLimit caps list queries that do not set a limit.
const defaultListLimit = 100

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Domain string          `json:"domain,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RunOutcome is the terminal state written when a run finishes.
type RunOutcome struct {
	Status model.RunStatus
	Domain string
	Result *model.PipelineResult
	Error  string
}

// RunRecorder is the write side of run history used by the pipeline.
type RunRecorder interface {
	CreateRun(ctx context.Context, query string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	RecordStage(ctx context.Context, runID string, stage model.StageResult) error
	FinishRun(ctx context.Context, runID string, outcome RunOutcome) error
}

// RunStore is the full run history.
type RunStore interface {
	RunRecorder
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
}

// SearchCache caches search evidence keyed by provider, query and size.
type SearchCache interface {
	GetCachedSearch(ctx context.Context, key string) ([]model.EvidenceRecord, bool, error)
	SetCachedSearch(ctx context.Context, key string, records []model.EvidenceRecord, ttl time.Duration) error
	DeleteExpiredSearches(ctx context.Context) (int, error)
}

// CompanyWriter upserts research output.
type CompanyWriter interface {
	// UpsertCompany matches on normalized name or website. Only non-nil
	// fields overwrite an existing row.
	UpsertCompany(ctx context.Context, c model.Company) (int64, error)
	// UpsertEmployee matches on (company, normalized name). Title and email
	// only overwrite when non-empty.
	UpsertEmployee(ctx context.Context, e model.Employee) (int64, error)
}

// CompanyStore is the full company/employee store.
type CompanyStore interface {
	CompanyWriter
	// ListCompanies returns companies with at least one employee, most
	// recently updated first.
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)
	ListEmployees(ctx context.Context, companyID int64) ([]model.Employee, error)
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	RunStore
	SearchCache
	CompanyStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func decodeRunJSON(r *model.Run, resultJSON, stagesJSON []byte) error {
	if len(resultJSON) > 0 {
		r.Result = &model.PipelineResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return eris.Wrap(err, "unmarshal run result")
		}
	}
	r.Stages = []model.StageResult{}
	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &r.Stages); err != nil {
			return eris.Wrap(err, "unmarshal run stages")
		}
	}
	return nil
}

// companyDest lists scan targets in companyColumns order followed by the
// employee count.
func companyDest(c *model.Company) []any {
	return []any{
		&c.ID, &c.Name, &c.Website, &c.Description, &c.TechStack, &c.Industry, &c.YearFounded,
		&c.Headquarters, &c.Revenue, &c.Funding, &c.EmployeeCountMin, &c.EmployeeCountMax, &c.Favicon,
		&c.CreatedAt, &c.UpdatedAt, &c.EmployeeCount,
	}
}
