// Package refine drives the iterative refinement loop: translate the query,
// score the catalog, evaluate convergence, and either refine again or stop.
package refine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/slavierouse/sound-your-scene/internal/catalog"
	"github.com/slavierouse/sound-your-scene/internal/job"
	"github.com/slavierouse/sound-your-scene/internal/scoring"
	"github.com/slavierouse/sound-your-scene/internal/translator"
)

// translateBackoff spaces retries after an invalid model response.
var translateBackoff = []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}

// Hooks let the orchestrator observe the loop without the controller knowing
// about stores or job lifecycle.
type Hooks struct {
	// RecordStep persists one completed pass. A persistence failure aborts
	// the loop.
	RecordStep func(ctx context.Context, step job.ConversationStep) error
	// Canceled is polled at pass boundaries; the loop stops cooperatively
	// when it reports true.
	Canceled func() bool
}

// Outcome is the final state of one controller invocation.
type Outcome struct {
	Ranked      []scoring.RankedTrack
	Summary     scoring.Summary
	UserMessage string
	Passes      int
}

// Controller runs the refinement loop over an immutable catalog. One
// controller is shared by all jobs; per-invocation state lives on the stack.
type Controller struct {
	translator       translator.Translator
	catalog          *catalog.Catalog
	bandLow          int
	bandHigh         int
	maxAutoPasses    int
	translateRetries int
	logger           *log.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a controller. The band [low, high] is the target result-count
// range; maxAutoPasses bounds automatic refinement per invocation.
func New(tr translator.Translator, c *catalog.Catalog, low, high, maxAutoPasses, retries int) *Controller {
	return &Controller{
		translator:       tr,
		catalog:          c,
		bandLow:          low,
		bandHigh:         high,
		maxAutoPasses:    maxAutoPasses,
		translateRetries: retries,
		logger:           log.New(os.Stdout, "[REFINE] ", log.LstdFlags),
		sleep:            sleepCtx,
	}
}

// Run executes passes for one job until convergence or budget exhaustion.
// For a fresh job message is empty and the first pass translates j.Query; for
// a user refinement message carries the user's new instruction. Completed
// steps are appended to j.Steps and recorded through hooks as they happen.
func (c *Controller) Run(ctx context.Context, j *job.SearchJob, message string, hooks Hooks) (*Outcome, error) {
	stepType := job.StepInitial
	query := j.Query
	if len(j.Steps) > 0 {
		stepType = job.StepUserRefine
		query = message
	}

	var (
		ranked   []scoring.RankedTrack
		summary  scoring.Summary
		userMsg  string
		autoUsed int
		passes   int
	)

	req := translator.Request{Query: query, ImageData: j.ImageData, Steps: j.Steps}
	for {
		if hooks.Canceled != nil && hooks.Canceled() {
			return nil, job.ErrCanceled
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.translate(ctx, req)
		if err != nil {
			return nil, err
		}

		ranked = scoring.Score(c.catalog, resp.Spec)
		summary = scoring.Summarize(ranked)
		userMsg = resp.UserMessage
		passes++

		step := job.ConversationStep{
			StepNumber:  len(j.Steps) + 1,
			StepType:    stepType,
			Query:       query,
			TargetRange: [2]int{c.bandLow, c.bandHigh},
			Filters:     resp.Spec,
			Summary:     summary,
			ResultCount: summary.ResultCount,
			UserMessage: resp.UserMessage,
			Reflection:  resp.Rationale,
			Model:       resp.Model,
			CreatedAt:   time.Now().UTC(),
		}
		j.Steps = append(j.Steps, step)
		if hooks.RecordStep != nil {
			if err := hooks.RecordStep(ctx, step); err != nil {
				return nil, fmt.Errorf("recording step %d: %w", step.StepNumber, err)
			}
		}

		n := summary.ResultCount
		c.logger.Printf("job %s pass %d (%s): %d results", j.ID, step.StepNumber, stepType, n)

		if n >= c.bandLow && n <= c.bandHigh {
			break
		}
		if !resp.ContinueHint {
			break
		}
		if autoUsed >= c.maxAutoPasses {
			break
		}

		autoUsed++
		stepType = job.StepAutoRefine
		seed := autoSeed(n, c.bandLow, c.bandHigh)
		// The seed becomes the step's recorded input so the history shows
		// what each automatic pass was asked to do.
		query = seed
		req = translator.Request{
			Seed:      seed,
			Steps:     j.Steps,
			ImageData: j.ImageData,
		}
	}

	return &Outcome{Ranked: ranked, Summary: summary, UserMessage: userMsg, Passes: passes}, nil
}

// translate calls the translator, retrying invalid responses with backoff.
// Transport-level retries live in the adapter; this layer only retries
// replies that decoded badly.
func (c *Controller) translate(ctx context.Context, req translator.Request) (*translator.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.translateRetries; attempt++ {
		resp, err := c.translator.Translate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.translateRetries-1 {
			delay := translateBackoff[min(attempt, len(translateBackoff)-1)]
			c.logger.Printf("translation failed (attempt %d): %v, retrying in %s", attempt+1, err, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("translation failed after %d attempts: %w", c.translateRetries, lastErr)
}

// autoSeed tells the model which way to move: too many results means
// tighten, too few means loosen.
func autoSeed(count, low, high int) string {
	if count > high {
		return fmt.Sprintf("previous count: %d, above the target range of %d to %d. Narrow the filters: tighten bounds or raise weights on the most important features.", count, low, high)
	}
	return fmt.Sprintf("previous count: %d, below the target range of %d to %d. Widen the filters: relax the least essential bounds.", count, low, high)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
