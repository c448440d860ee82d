package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/catalog"
	"github.com/slavierouse/sound-your-scene/internal/filterspec"
	"github.com/slavierouse/sound-your-scene/internal/job"
	"github.com/slavierouse/sound-your-scene/internal/refine"
	"github.com/slavierouse/sound-your-scene/internal/store"
	"github.com/slavierouse/sound-your-scene/internal/translator"
)

func fixtureCatalog() *catalog.Catalog {
	tracks := make([]catalog.Track, 60)
	for i := range tracks {
		tracks[i] = catalog.Track{
			TrackID:          fmt.Sprintf("t%02d", i),
			TrackName:        fmt.Sprintf("Track %d", i),
			Energy:           float64(i) / 60,
			Views:            float64(i * 10),
			AlbumReleaseYear: 2000 + i%20,
			Genres:           "pop",
		}
	}
	return catalog.FromTracks(tracks)
}

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		BandLow:            20,
		BandHigh:           50,
		MaxAutoPasses:      3,
		MaxUserRefinements: 2,
		MaxConcurrentJobs:  2,
		TranslateRetries:   3,
	}
}

// inBandSpec keeps 30 of the 60 fixture tracks.
func inBandSpec() filterspec.FilterSpec {
	s := filterspec.Default()
	s.EnergyMinDecile = 6
	return s
}

func newOrchestrator(tr translator.Translator) (*Orchestrator, store.Store) {
	st := store.NewMemory()
	cfg := searchConfig()
	controller := refine.New(tr, fixtureCatalog(), cfg.BandLow, cfg.BandHigh, cfg.MaxAutoPasses, cfg.TranslateRetries)
	return NewOrchestrator(st, controller, cfg), st
}

func waitForTerminal(t *testing.T, o *Orchestrator, id string) *job.SearchJob {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		j, err := o.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func TestCreateJobRunsToDone(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: inBandSpec(), ContinueHint: true, UserMessage: "found some tracks", Model: "fake"}, nil
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "high energy pop", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if j.Status != job.StatusQueued {
		t.Fatalf("new job should be queued, got %s", j.Status)
	}
	if j.StartedAt != nil || j.FinishedAt != nil {
		t.Fatalf("queued job must not carry started/finished timestamps: %+v", j)
	}

	done := waitForTerminal(t, o, j.ID)
	if done.Status != job.StatusDone {
		t.Fatalf("expected done, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.ResultCount != 30 {
		t.Fatalf("expected 30 results, got %d", done.ResultCount)
	}
	if done.UserMessage != "found some tracks" {
		t.Fatalf("user message not carried: %q", done.UserMessage)
	}
	if done.ResultSummary == nil || done.ResultSummary.ResultCount != 30 {
		t.Fatalf("result summary missing or wrong: %+v", done.ResultSummary)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Fatalf("terminal job must carry both timestamps: started=%v finished=%v", done.StartedAt, done.FinishedAt)
	}
	if done.FinishedAt.Before(*done.StartedAt) {
		t.Fatalf("finished %v before started %v", done.FinishedAt, done.StartedAt)
	}

	results, err := o.GetResults(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(results) != 30 {
		t.Fatalf("expected 30 stored results, got %d", len(results))
	}
	for i, r := range results {
		if r.RankPosition != i+1 {
			t.Fatalf("rank positions not dense at %d: %d", i, r.RankPosition)
		}
		if i > 0 && r.RelevanceScore > results[i-1].RelevanceScore {
			t.Fatalf("scores not monotonically non-increasing at %d", i)
		}
	}
}

func TestUpstreamFailureEndsInError(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return nil, fmt.Errorf("%w: garbage", translator.ErrInvalidResponse)
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "doomed", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	done := waitForTerminal(t, o, j.ID)
	if done.Status != job.StatusError {
		t.Fatalf("expected error status, got %s", done.Status)
	}
	if done.ErrorMessage == "" {
		t.Fatalf("error message should be set")
	}
	if done.FinishedAt == nil {
		t.Fatalf("errored job must carry a finished timestamp")
	}
}

func TestRefineJobWithoutConversationIsInvalidState(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return nil, fmt.Errorf("%w: garbage", translator.ErrInvalidResponse)
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "doomed", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	failed := waitForTerminal(t, o, j.ID)
	if failed.Status != job.StatusError || len(failed.Steps) != 0 {
		t.Fatalf("expected errored job with empty conversation, got %s with %d steps", failed.Status, len(failed.Steps))
	}

	if _, err := o.AppendRefinement(context.Background(), j.ID, "make it softer"); !errors.Is(err, job.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for empty conversation, got %v", err)
	}
	after, err := o.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if after.Status != job.StatusError || after.UserRefinements != 0 {
		t.Fatalf("rejected refinement must not change the job: %s, %d refinements", after.Status, after.UserRefinements)
	}
}

func TestRefineWhileRunningIsInvalidState(t *testing.T) {
	release := make(chan struct{})
	tr := translator.Func(func(ctx context.Context, _ translator.Request) (*translator.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &translator.Response{Spec: inBandSpec(), ContinueHint: true}, nil
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "slow", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Wait for the job to leave queued so the state check is deterministic.
	deadline := time.Now().Add(5 * time.Second)
	for {
		cur, err := o.GetJob(context.Background(), j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if cur.Status == job.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never started running")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if _, err := o.AppendRefinement(context.Background(), j.ID, "more"); !errors.Is(err, job.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	close(release)
	waitForTerminal(t, o, j.ID)
}

func TestRefinementContinuesJobAndHitsCeiling(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: inBandSpec(), ContinueHint: true}, nil
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "start", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	waitForTerminal(t, o, j.ID)

	// Ceiling is 2 in the test config.
	for i := 1; i <= 2; i++ {
		refined, err := o.AppendRefinement(context.Background(), j.ID, fmt.Sprintf("refine %d", i))
		if err != nil {
			t.Fatalf("AppendRefinement %d: %v", i, err)
		}
		if refined.ID != j.ID {
			t.Fatalf("refinement must keep the job id")
		}
		if refined.FinishedAt != nil {
			t.Fatalf("reopened job must clear its finished timestamp")
		}
		done := waitForTerminal(t, o, j.ID)
		if done.UserRefinements != i {
			t.Fatalf("expected %d refinements used, got %d", i, done.UserRefinements)
		}
		if len(done.Steps) != i+1 {
			t.Fatalf("history should grow to %d steps, got %d", i+1, len(done.Steps))
		}
	}

	if _, err := o.AppendRefinement(context.Background(), j.ID, "one too many"); !errors.Is(err, job.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	tr := translator.Func(func(ctx context.Context, _ translator.Request) (*translator.Response, error) {
		calls++
		if calls == 1 {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		// Stay out of band so the loop would keep refining if not canceled.
		return &translator.Response{Spec: filterspec.Default(), ContinueHint: true}, nil
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "cancel me", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	<-started
	if _, err := o.Cancel(context.Background(), j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	done := waitForTerminal(t, o, j.ID)
	if done.Status != job.StatusCanceled {
		t.Fatalf("expected canceled, got %s", done.Status)
	}
	if done.FinishedAt == nil {
		t.Fatalf("canceled job must carry a finished timestamp")
	}
	if calls != 1 {
		t.Fatalf("loop should stop at the pass boundary, translator called %d times", calls)
	}
	if _, err := o.Cancel(context.Background(), j.ID); !errors.Is(err, job.ErrInvalidState) {
		t.Fatalf("canceling a terminal job should be ErrInvalidState, got %v", err)
	}
}

func TestZeroMatchDoneJobReadsAsEmptyResults(t *testing.T) {
	none := filterspec.Default()
	none.AlbumReleaseYearMin = 2090
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: none, ContinueHint: false}, nil
	})
	o, _ := newOrchestrator(tr)

	j, err := o.CreateJob(context.Background(), "nothing matches", "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	done := waitForTerminal(t, o, j.ID)
	if done.Status != job.StatusDone || done.ResultCount != 0 {
		t.Fatalf("expected done with 0 results, got %s with %d", done.Status, done.ResultCount)
	}
	results, err := o.GetResults(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("empty result set must not read as a lookup miss: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestGetJobUnknownID(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: inBandSpec()}, nil
	})
	o, _ := newOrchestrator(tr)
	if _, err := o.GetJob(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
