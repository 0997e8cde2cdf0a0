package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/sasflow/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS job_results (
		run_id       uuid        NOT NULL,
		id           integer     NOT NULL,
		flow         text        NOT NULL,
		predecessors text        NOT NULL,
		location     text        NOT NULL,
		status       text        NOT NULL,
		log_location text,
		details      text,
		created_at   timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, id)
	)
`

// ResultRepo stores the result rows of one run in PostgreSQL.
//
// Row ids follow the CSV sink: 1 for the first row of the run, then the
// number of rows already stored plus one. Writers of the same run are
// serialised by a transaction-scoped advisory lock, so several processes may
// share a run.
type ResultRepo struct {
	pool  *pgxpool.Pool
	runID uuid.UUID
}

// NewResultRepo creates a new ResultRepo for the given run.
func NewResultRepo(pool *pgxpool.Pool, runID uuid.UUID) *ResultRepo {
	return &ResultRepo{pool: pool, runID: runID}
}

// RunID returns the run the repo writes to.
func (r *ResultRepo) RunID() uuid.UUID {
	return r.runID
}

// EnsureSchema creates the job_results table if needed.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record inserts row and sets row.ID.
func (r *ResultRepo) Record(ctx context.Context, row *domain.ResultRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, r.runID.String()); err != nil {
		return fmt.Errorf("lock run: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM job_results WHERE run_id = $1`, r.runID).Scan(&count); err != nil {
		return fmt.Errorf("count results: %w", err)
	}

	id := count + 1
	query := `
		INSERT INTO job_results (run_id, id, flow, predecessors, location, status, log_location, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		r.runID,
		id,
		row.Flow,
		row.Predecessors,
		row.Location,
		row.Status.String(),
		nullString(row.LogLocation),
		nullString(row.Details),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	row.ID = id
	return nil
}

// List returns the rows of the repo's run ordered by id.
func (r *ResultRepo) List(ctx context.Context) ([]domain.ResultRow, error) {
	query := `
		SELECT id, flow, predecessors, location, status, log_location, details
		FROM job_results
		WHERE run_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, r.runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.ResultRow
	for rows.Next() {
		var (
			row         domain.ResultRow
			status      string
			logLocation *string
			details     *string
		)
		if err := rows.Scan(&row.ID, &row.Flow, &row.Predecessors, &row.Location, &status, &logLocation, &details); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		row.Status = domain.JobStatus(status)
		if logLocation != nil {
			row.LogLocation = *logLocation
		}
		if details != nil {
			row.Details = *details
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// LatestRunID returns the run with the most recent result.
func LatestRunID(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT run_id FROM job_results ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// nullString returns nil for an empty string (NULL in the database).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
