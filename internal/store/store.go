// Package store persists search jobs and their ranked results behind narrow
// interfaces so the orchestrator stays backend agnostic. Three backends ship:
// an in-process map for tests and single-node runs, Redis for shared
// ephemeral state, and Postgres for durable history.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/job"
)

// ErrNotFound is returned when the requested job or result set does not exist.
var ErrNotFound = errors.New("not found")

// JobStore persists job records. Put overwrites the full record; jobs are
// small JSON documents so partial updates are not worth the interface cost.
type JobStore interface {
	Put(ctx context.Context, j *job.SearchJob) error
	Get(ctx context.Context, id string) (*job.SearchJob, error)
}

// ResultStore persists the final ordered result set of a job. SetResults
// replaces any previous set: each completed pass supersedes the last.
type ResultStore interface {
	SetResults(ctx context.Context, jobID string, results []job.RankedResult) error
	GetResults(ctx context.Context, jobID string) ([]job.RankedResult, error)
}

// Store bundles both interfaces; every backend implements both.
type Store interface {
	JobStore
	ResultStore
}

// New builds a store from configuration.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
