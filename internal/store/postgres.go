package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/db"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/normalize"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'validating',
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	stages     JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_domain ON runs(domain);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	records    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);

CREATE TABLE IF NOT EXISTS companies (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	name_key           TEXT NOT NULL,
	website            TEXT,
	description        TEXT,
	tech_stack         TEXT,
	industry           TEXT,
	year_founded       INTEGER,
	headquarters       TEXT,
	revenue            TEXT,
	funding            TEXT,
	employee_count_min INTEGER,
	employee_count_max INTEGER,
	favicon            TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key);
CREATE INDEX IF NOT EXISTS idx_companies_website ON companies(website);

CREATE TABLE IF NOT EXISTS employees (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, name_key)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, query string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, query, string(model.RunStatusValidating), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		Query:     query,
		Status:    model.RunStatusValidating,
		Stages:    []model.StageResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) RecordStage(ctx context.Context, runID string, stage model.StageResult) error {
	stageJSON, err := json.Marshal([]model.StageResult{stage})
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stages = stages || $1::jsonb, updated_at = $2 WHERE id = $3`,
		stageJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record stage %s for run %s", stage.Name, runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, outcome RunOutcome) error {
	var resultJSON []byte
	if outcome.Result != nil {
		var err error
		if resultJSON, err = json.Marshal(outcome.Result); err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, domain = $2, result = $3, error = $4, updated_at = $5 WHERE id = $6`,
		string(outcome.Status), outcome.Domain, resultJSON, outcome.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

const runColumns = `id, query, domain, status, result, error, stages, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.Domain != "" {
		args = append(args, filter.Domain)
		query += ` AND domain = $` + strconv.Itoa(len(args))
	}
	args = append(args, limitOrDefault(filter.Limit))
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r          model.Run
		resultJSON []byte
		stagesJSON []byte
	)
	if err := row.Scan(&r.ID, &r.Query, &r.Domain, &r.Status, &resultJSON, &r.Error, &stagesJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeRunJSON(&r, resultJSON, stagesJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetCachedSearch(ctx context.Context, key string) ([]model.EvidenceRecord, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT records FROM search_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached search")
	}
	var recs []model.EvidenceRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, eris.Wrap(err, "postgres: unmarshal cached search")
	}
	return recs, true, nil
}

func (s *PostgresStore) SetCachedSearch(ctx context.Context, key string, records []model.EvidenceRecord, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal search records")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_cache (key, records, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET records = EXCLUDED.records, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached search")
}

func (s *PostgresStore) DeleteExpiredSearches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired searches")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.Company) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert company: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	nameKey := normalize.CompanyKey(c.Name)
	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM companies WHERE name_key = $1 OR (website IS NOT NULL AND website = $2) ORDER BY id LIMIT 1 FOR UPDATE`,
		nameKey, c.Website,
	).Scan(&id)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx,
			`INSERT INTO companies (name, name_key, website, description, tech_stack, industry, year_founded,
				headquarters, revenue, funding, employee_count_min, employee_count_max, favicon)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
			c.Name, nameKey, c.Website, c.Description, c.TechStack, c.Industry, c.YearFounded,
			c.Headquarters, c.Revenue, c.Funding, c.EmployeeCountMin, c.EmployeeCountMax, c.Favicon,
		).Scan(&id)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert company %s", c.Name)
		}
	case err != nil:
		return 0, eris.Wrapf(err, "postgres: find company %s", c.Name)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE companies SET
				website = COALESCE($2, website),
				description = COALESCE($3, description),
				tech_stack = COALESCE($4, tech_stack),
				industry = COALESCE($5, industry),
				year_founded = COALESCE($6, year_founded),
				headquarters = COALESCE($7, headquarters),
				revenue = COALESCE($8, revenue),
				funding = COALESCE($9, funding),
				employee_count_min = COALESCE($10, employee_count_min),
				employee_count_max = COALESCE($11, employee_count_max),
				favicon = COALESCE($12, favicon),
				updated_at = now()
			 WHERE id = $1`,
			id, c.Website, c.Description, c.TechStack, c.Industry, c.YearFounded,
			c.Headquarters, c.Revenue, c.Funding, c.EmployeeCountMin, c.EmployeeCountMax, c.Favicon,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: update company %d", id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert company: commit tx")
	}
	return id, nil
}

func (s *PostgresStore) UpsertEmployee(ctx context.Context, e model.Employee) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO employees (company_id, name, name_key, title, email) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (company_id, name_key) DO UPDATE SET
			name = EXCLUDED.name,
			title = COALESCE(NULLIF(EXCLUDED.title, ''), employees.title),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), employees.email),
			updated_at = now()
		 RETURNING id`,
		e.CompanyID, e.Name, normalize.PersonKey(e.Name), e.Title, e.Email,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert employee %s", e.Name)
	}
	return id, nil
}

const companyColumns = `c.id, c.name, c.website, c.description, c.tech_stack, c.industry, c.year_founded,
	c.headquarters, c.revenue, c.funding, c.employee_count_min, c.employee_count_max, c.favicon,
	c.created_at, c.updated_at`

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+companyColumns+`, COUNT(e.id)
		 FROM companies c JOIN employees e ON e.company_id = c.id
		 GROUP BY c.id ORDER BY c.updated_at DESC LIMIT $1 OFFSET $2`,
		limitOrDefault(filter.Limit), max(filter.Offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	out := []model.Company{}
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(companyDest(&c)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) ListEmployees(ctx context.Context, companyID int64) ([]model.Employee, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, name, title, email, created_at, updated_at
		 FROM employees WHERE company_id = $1 ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list employees for company %d", companyID)
	}
	defer rows.Close()

	out := []model.Employee{}
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Title, &e.Email, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan employee")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list employees iterate")
}
