// Package search owns the job lifecycle: it accepts queries, runs the
// refinement loop asynchronously, and exposes job state for polling.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/job"
	"github.com/slavierouse/sound-your-scene/internal/refine"
	"github.com/slavierouse/sound-your-scene/internal/store"
)

// Orchestrator runs search jobs. Each job gets its own goroutine; a
// semaphore caps how many refinement loops run concurrently, and the active
// map guarantees at most one loop per job at a time.
type Orchestrator struct {
	store      store.Store
	controller *refine.Controller
	cfg        config.SearchConfig
	logger     *log.Logger

	semaphore chan struct{}

	mu     sync.Mutex
	active map[string]*activeJob

	wg sync.WaitGroup
}

type activeJob struct {
	canceled atomic.Bool
}

// NewOrchestrator wires the orchestrator to its store and controller.
func NewOrchestrator(st store.Store, controller *refine.Controller, cfg config.SearchConfig) *Orchestrator {
	return &Orchestrator{
		store:      st,
		controller: controller,
		cfg:        cfg,
		logger:     log.New(os.Stdout, "[ORCHESTRATOR] ", log.LstdFlags),
		semaphore:  make(chan struct{}, cfg.MaxConcurrentJobs),
		active:     make(map[string]*activeJob),
	}
}

// CreateJob accepts a query, persists a queued job and starts processing it
// in the background. It returns immediately with the queued record.
func (o *Orchestrator) CreateJob(ctx context.Context, query, imageData string) (*job.SearchJob, error) {
	now := time.Now().UTC()
	j := &job.SearchJob{
		ID:        uuid.NewString(),
		Status:    job.StatusQueued,
		Query:     query,
		ImageData: imageData,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Put(ctx, j); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	o.mu.Lock()
	o.active[j.ID] = &activeJob{}
	o.mu.Unlock()

	jobsCreated.Inc()
	o.logger.Printf("job %s queued: %q", j.ID, query)

	o.wg.Add(1)
	go o.run(j.ID, "")
	return j, nil
}

// GetJob returns the current job record.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*job.SearchJob, error) {
	return o.store.Get(ctx, id)
}

// GetResults returns the final ranked result set of a job, or ErrNotFound
// while the job has not produced one yet.
func (o *Orchestrator) GetResults(ctx context.Context, id string) ([]job.RankedResult, error) {
	return o.store.GetResults(ctx, id)
}

// AppendRefinement continues a finished job with a new user instruction.
// The job keeps its id and history and goes back to queued. Jobs that are
// still queued or running, or that were canceled, reject refinement; jobs
// past the refinement ceiling reject it with ErrLimitExceeded.
func (o *Orchestrator) AppendRefinement(ctx context.Context, id, message string) (*job.SearchJob, error) {
	j, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusDone && j.Status != job.StatusError {
		return nil, fmt.Errorf("%w: job is %s", job.ErrInvalidState, j.Status)
	}
	// A job that failed before completing a single pass has no conversation
	// to refine against; the user should start a fresh search instead.
	if len(j.Steps) == 0 {
		return nil, fmt.Errorf("%w: job has no prior conversation", job.ErrInvalidState)
	}
	if j.UserRefinements >= o.cfg.MaxUserRefinements {
		return nil, fmt.Errorf("%w: %d refinements used", job.ErrLimitExceeded, j.UserRefinements)
	}

	o.mu.Lock()
	if _, running := o.active[id]; running {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: job is already being processed", job.ErrInvalidState)
	}
	o.active[id] = &activeJob{}
	o.mu.Unlock()

	j.Status = job.StatusQueued
	j.UserRefinements++
	j.ErrorMessage = ""
	j.FinishedAt = nil
	j.UpdatedAt = time.Now().UTC()
	if err := o.store.Put(ctx, j); err != nil {
		o.release(id)
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	refinementsRequested.Inc()
	o.logger.Printf("job %s refinement %d queued: %q", id, j.UserRefinements, message)

	o.wg.Add(1)
	go o.run(id, message)
	return j, nil
}

// Cancel requests cancellation. A queued job is canceled immediately; a
// running one stops at the next pass boundary. Terminal jobs reject it.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*job.SearchJob, error) {
	j, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, fmt.Errorf("%w: job is %s", job.ErrInvalidState, j.Status)
	}

	o.mu.Lock()
	if a, ok := o.active[id]; ok {
		a.canceled.Store(true)
	}
	o.mu.Unlock()

	if j.Status == job.StatusQueued {
		now := time.Now().UTC()
		j.Status = job.StatusCanceled
		j.FinishedAt = &now
		j.UpdatedAt = now
		if err := o.store.Put(ctx, j); err != nil {
			return nil, fmt.Errorf("persisting job: %w", err)
		}
		jobsCanceled.Inc()
	}
	o.logger.Printf("job %s cancel requested", id)
	return j, nil
}

// Wait blocks until all in-flight jobs have finished. Used on shutdown.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

func (o *Orchestrator) isCanceled(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.active[id]
	return ok && a.canceled.Load()
}

// run executes one controller invocation for a job. It owns the job's status
// transitions from queued through running to a terminal state.
func (o *Orchestrator) run(id, message string) {
	defer o.wg.Done()
	defer o.release(id)

	o.semaphore <- struct{}{}
	defer func() { <-o.semaphore }()

	ctx := context.Background()

	if o.isCanceled(id) {
		// Canceled while queued; Cancel already persisted the status.
		return
	}

	j, err := o.store.Get(ctx, id)
	if err != nil {
		o.logger.Printf("job %s: loading: %v", id, err)
		return
	}
	if j.Status != job.StatusQueued {
		return
	}

	now := time.Now().UTC()
	j.Status = job.StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	if err := o.store.Put(ctx, j); err != nil {
		o.logger.Printf("job %s: persisting running status: %v", id, err)
		return
	}

	hooks := refine.Hooks{
		RecordStep: func(ctx context.Context, _ job.ConversationStep) error {
			j.UpdatedAt = time.Now().UTC()
			return o.store.Put(ctx, j)
		},
		Canceled: func() bool { return o.isCanceled(id) },
	}

	out, err := o.controller.Run(ctx, j, message, hooks)
	if err != nil {
		o.finishWithError(ctx, j, err)
		return
	}

	results := make([]job.RankedResult, len(out.Ranked))
	for i, r := range out.Ranked {
		results[i] = job.RankedResult{
			JobID:          j.ID,
			RankPosition:   i + 1,
			TrackID:        r.Track.TrackID,
			RelevanceScore: r.Score,
		}
	}
	if err := o.store.SetResults(ctx, j.ID, results); err != nil {
		o.finishWithError(ctx, j, fmt.Errorf("persisting results: %w", err))
		return
	}

	finished := time.Now().UTC()
	j.Status = job.StatusDone
	j.ResultCount = len(results)
	summary := out.Summary
	j.ResultSummary = &summary
	j.UserMessage = out.UserMessage
	j.FinishedAt = &finished
	j.UpdatedAt = finished
	if err := o.store.Put(ctx, j); err != nil {
		o.logger.Printf("job %s: persisting done status: %v", j.ID, err)
		return
	}

	jobsCompleted.Inc()
	passesPerRun.Observe(float64(out.Passes))
	o.logger.Printf("job %s done: %d results in %d passes", j.ID, len(results), out.Passes)
}

// finishWithError moves the job to its terminal failure state. Cancellation
// is not a failure: the job ends canceled with its history intact.
func (o *Orchestrator) finishWithError(ctx context.Context, j *job.SearchJob, err error) {
	if errors.Is(err, job.ErrCanceled) {
		j.Status = job.StatusCanceled
		jobsCanceled.Inc()
	} else {
		j.Status = job.StatusError
		j.ErrorMessage = err.Error()
		jobsErrored.Inc()
		o.logger.Printf("job %s failed: %v", j.ID, err)
	}
	now := time.Now().UTC()
	j.FinishedAt = &now
	j.UpdatedAt = now
	if perr := o.store.Put(ctx, j); perr != nil {
		o.logger.Printf("job %s: persisting terminal status: %v", j.ID, perr)
	}
}
