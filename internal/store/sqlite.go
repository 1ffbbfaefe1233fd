package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'validating',
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	stages     TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_domain ON runs(domain);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	records    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);

CREATE TABLE IF NOT EXISTS companies (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
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
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key);
CREATE INDEX IF NOT EXISTS idx_companies_website ON companies(website);

CREATE TABLE IF NOT EXISTS employees (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (company_id, name_key)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, query string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, query, string(model.RunStatusValidating), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) RecordStage(ctx context.Context, runID string, stage model.StageResult) error {
	stageJSON, err := json.Marshal(stage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stages = json_insert(stages, '$[#]', json(?)), updated_at = ? WHERE id = ?`,
		string(stageJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record stage %s for run %s", stage.Name, runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, outcome RunOutcome) error {
	var result sql.NullString
	if outcome.Result != nil {
		b, err := json.Marshal(outcome.Result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		result = sql.NullString{String: string(b), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, domain = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(outcome.Status), outcome.Domain, result, outcome.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetCachedSearch(ctx context.Context, key string) ([]model.EvidenceRecord, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM search_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached search")
	}
	var recs []model.EvidenceRecord
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: unmarshal cached search")
	}
	return recs, true, nil
}

func (s *SQLiteStore) SetCachedSearch(ctx context.Context, key string, records []model.EvidenceRecord, ttl time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal search records")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_cache (key, records, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET records = excluded.records, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached search")
}

func (s *SQLiteStore) DeleteExpiredSearches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired searches")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.Company) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert company: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	nameKey := normalize.CompanyKey(c.Name)
	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM companies WHERE name_key = ? OR (website IS NOT NULL AND website = ?) ORDER BY id LIMIT 1`,
		nameKey, c.Website,
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO companies (name, name_key, website, description, tech_stack, industry, year_founded,
				headquarters, revenue, funding, employee_count_min, employee_count_max, favicon, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, nameKey, c.Website, c.Description, c.TechStack, c.Industry, c.YearFounded,
			c.Headquarters, c.Revenue, c.Funding, c.EmployeeCountMin, c.EmployeeCountMax, c.Favicon, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert company %s", c.Name)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, eris.Wrap(err, "sqlite: company id")
		}
	case err != nil:
		return 0, eris.Wrapf(err, "sqlite: find company %s", c.Name)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE companies SET
				website = COALESCE(?, website),
				description = COALESCE(?, description),
				tech_stack = COALESCE(?, tech_stack),
				industry = COALESCE(?, industry),
				year_founded = COALESCE(?, year_founded),
				headquarters = COALESCE(?, headquarters),
				revenue = COALESCE(?, revenue),
				funding = COALESCE(?, funding),
				employee_count_min = COALESCE(?, employee_count_min),
				employee_count_max = COALESCE(?, employee_count_max),
				favicon = COALESCE(?, favicon),
				updated_at = ?
			 WHERE id = ?`,
			c.Website, c.Description, c.TechStack, c.Industry, c.YearFounded,
			c.Headquarters, c.Revenue, c.Funding, c.EmployeeCountMin, c.EmployeeCountMax, c.Favicon, now, id,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: update company %d", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert company: commit tx")
	}
	return id, nil
}

func (s *SQLiteStore) UpsertEmployee(ctx context.Context, e model.Employee) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO employees (company_id, name, name_key, title, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, name_key) DO UPDATE SET
			name = excluded.name,
			title = COALESCE(NULLIF(excluded.title, ''), employees.title),
			email = COALESCE(NULLIF(excluded.email, ''), employees.email),
			updated_at = excluded.updated_at
		 RETURNING id`,
		e.CompanyID, e.Name, normalize.PersonKey(e.Name), e.Title, e.Email, now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert employee %s", e.Name)
	}
	return id, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+`, COUNT(e.id)
		 FROM companies c JOIN employees e ON e.company_id = c.id
		 GROUP BY c.id ORDER BY c.updated_at DESC, c.id DESC LIMIT ? OFFSET ?`,
		limitOrDefault(filter.Limit), max(filter.Offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	out := []model.Company{}
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(companyDest(&c)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) ListEmployees(ctx context.Context, companyID int64) ([]model.Employee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, name, title, email, created_at, updated_at
		 FROM employees WHERE company_id = ? ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list employees for company %d", companyID)
	}
	defer rows.Close()

	out := []model.Employee{}
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Title, &e.Email, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan employee")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list employees iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r      model.Run
		result sql.NullString
		stages string
	)
	if err := row.Scan(&r.ID, &r.Query, &r.Domain, &r.Status, &result, &r.Error, &stages, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeRunJSON(&r, []byte(result.String), []byte(stages)); err != nil {
		return nil, err
	}
	return &r, nil
}
