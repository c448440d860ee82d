package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/job"
)

// Postgres persists jobs as JSONB documents and results as rows, keeping the
// relational surface small while leaving result sets queryable by rank.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the database and ensures the schema exists.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS search_jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			document JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS search_results (
			job_id TEXT NOT NULL REFERENCES search_jobs(id) ON DELETE CASCADE,
			rank_position INT NOT NULL,
			track_id TEXT NOT NULL,
			relevance_score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (job_id, rank_position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_jobs_status ON search_jobs(status)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, j *job.SearchJob) error {
	doc, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO search_jobs (id, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = $2, document = $3, updated_at = $5`,
		j.ID, string(j.Status), doc, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storing job: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*job.SearchJob, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT document FROM search_jobs WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	var j job.SearchJob
	if err := json.Unmarshal(doc, &j); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &j, nil
}

func (p *Postgres) SetResults(ctx context.Context, jobID string, results []job.RankedResult) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_results WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clearing previous results: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_results (job_id, rank_position, track_id, relevance_score)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, jobID, r.RankPosition, r.TrackID, r.RelevanceScore); err != nil {
			return fmt.Errorf("inserting result rank %d: %w", r.RankPosition, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

func (p *Postgres) GetResults(ctx context.Context, jobID string) ([]job.RankedResult, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT rank_position, track_id, relevance_score
		FROM search_results WHERE job_id = $1 ORDER BY rank_position`, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}
	defer rows.Close()

	var results []job.RankedResult
	for rows.Next() {
		r := job.RankedResult{JobID: jobID}
		if err := rows.Scan(&r.RankPosition, &r.TrackID, &r.RelevanceScore); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	if results == nil {
		// Zero rows can mean an unknown job, a job that has not produced
		// results yet, or a done job whose filters matched nothing. Only
		// the last one reads as an empty set, same as the other backends.
		var status string
		err := p.db.QueryRowContext(ctx, `SELECT status FROM search_jobs WHERE id = $1`, jobID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("checking job: %w", err)
		}
		if status != string(job.StatusDone) {
			return nil, ErrNotFound
		}
		return []job.RankedResult{}, nil
	}
	return results, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.db.Close() }
