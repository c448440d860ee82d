package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/slavierouse/sound-your-scene/internal/catalog"
	"github.com/slavierouse/sound-your-scene/internal/filterspec"
	"github.com/slavierouse/sound-your-scene/internal/job"
	"github.com/slavierouse/sound-your-scene/internal/translator"
)

// fixtureCatalog has 60 tracks with energy spread evenly so decile bounds
// carve off predictable slices.
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

func newTestController(tr translator.Translator) *Controller {
	c := New(tr, fixtureCatalog(), 20, 50, 3, 3)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func specMatchingAll() filterspec.FilterSpec { return filterspec.Default() }

func specMatchingEnergyAbove(minDecile int) filterspec.FilterSpec {
	s := filterspec.Default()
	s.EnergyMinDecile = minDecile
	return s
}

func TestRunStopsInBandOnFirstPass(t *testing.T) {
	// Energy decile >= 6 keeps 30 of 60 tracks, inside [20,50].
	tr := translator.Func(func(_ context.Context, req translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: specMatchingEnergyAbove(6), ContinueHint: true, Model: "fake"}, nil
	})
	j := &job.SearchJob{ID: "j1", Query: "high energy pop"}
	out, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Passes != 1 {
		t.Fatalf("expected 1 pass, got %d", out.Passes)
	}
	if len(out.Ranked) != 30 {
		t.Fatalf("expected 30 results, got %d", len(out.Ranked))
	}
	if len(j.Steps) != 1 || j.Steps[0].StepType != job.StepInitial {
		t.Fatalf("expected one initial step, got %+v", j.Steps)
	}
}

func TestRunAutoRefinesUntilInBand(t *testing.T) {
	// First pass matches all 60 (above band), second narrows into band.
	calls := 0
	tr := translator.Func(func(_ context.Context, req translator.Request) (*translator.Response, error) {
		calls++
		if calls == 1 {
			return &translator.Response{Spec: specMatchingAll(), ContinueHint: true}, nil
		}
		if !strings.Contains(req.Seed, "Narrow") {
			t.Errorf("auto pass seed should ask to narrow, got %q", req.Seed)
		}
		if len(req.Steps) != 1 {
			t.Errorf("auto pass should see 1 prior step, got %d", len(req.Steps))
		}
		return &translator.Response{Spec: specMatchingEnergyAbove(6), ContinueHint: true}, nil
	})
	j := &job.SearchJob{ID: "j2", Query: "anything"}
	out, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Passes != 2 {
		t.Fatalf("expected 2 passes, got %d", out.Passes)
	}
	if j.Steps[1].StepType != job.StepAutoRefine {
		t.Fatalf("second step should be auto refine, got %s", j.Steps[1].StepType)
	}
	if !strings.Contains(j.Steps[1].Query, "previous count: 60") {
		t.Fatalf("auto step should record its seed as the input, got %q", j.Steps[1].Query)
	}
	for i, step := range j.Steps {
		if step.TargetRange != [2]int{20, 50} {
			t.Fatalf("step %d missing target range, got %v", i+1, step.TargetRange)
		}
	}
}

func TestRunStopsAtAutoPassBudget(t *testing.T) {
	calls := 0
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		calls++
		return &translator.Response{Spec: specMatchingAll(), ContinueHint: true}, nil
	})
	j := &job.SearchJob{ID: "j3", Query: "anything"}
	out, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Initial pass plus three automatic passes.
	if calls != 4 || out.Passes != 4 {
		t.Fatalf("expected 4 passes, got calls=%d passes=%d", calls, out.Passes)
	}
	if len(out.Ranked) != 60 {
		t.Fatalf("budget exhaustion should return the current set, got %d", len(out.Ranked))
	}
}

func TestRunRespectsContinueHint(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: specMatchingAll(), ContinueHint: false}, nil
	})
	j := &job.SearchJob{ID: "j4", Query: "anything"}
	out, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Passes != 1 {
		t.Fatalf("hint should stop after 1 pass, got %d", out.Passes)
	}
}

func TestRunZeroMatchesKeepsRefiningThenEndsEmpty(t *testing.T) {
	none := filterspec.Default()
	none.AlbumReleaseYearMin = 2090
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: none, ContinueHint: true}, nil
	})
	j := &job.SearchJob{ID: "j5", Query: "impossible"}
	out, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err != nil {
		t.Fatalf("empty result set must not error: %v", err)
	}
	if out.Passes != 4 {
		t.Fatalf("expected full budget spent, got %d passes", out.Passes)
	}
	if len(out.Ranked) != 0 {
		t.Fatalf("expected empty final set, got %d", len(out.Ranked))
	}
}

func TestRunRetriesInvalidResponses(t *testing.T) {
	calls := 0
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("%w: bad json", translator.ErrInvalidResponse)
		}
		return &translator.Response{Spec: specMatchingEnergyAbove(6), ContinueHint: true}, nil
	})
	j := &job.SearchJob{ID: "j6", Query: "retry me"}
	out, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 || out.Passes != 1 {
		t.Fatalf("expected success on third attempt, calls=%d passes=%d", calls, out.Passes)
	}
}

func TestRunFailsAfterRetryCeiling(t *testing.T) {
	calls := 0
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		calls++
		return nil, fmt.Errorf("%w: bad json", translator.ErrInvalidResponse)
	})
	j := &job.SearchJob{ID: "j7", Query: "always broken"}
	_, err := newTestController(tr).Run(context.Background(), j, "", Hooks{})
	if err == nil {
		t.Fatalf("expected error after retry ceiling")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, translator.ErrInvalidResponse) {
		t.Fatalf("error should wrap the translator failure: %v", err)
	}
}

func TestRunCanceledBetweenPasses(t *testing.T) {
	calls := 0
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		calls++
		return &translator.Response{Spec: specMatchingAll(), ContinueHint: true}, nil
	})
	canceled := false
	hooks := Hooks{
		RecordStep: func(context.Context, job.ConversationStep) error {
			canceled = true
			return nil
		},
		Canceled: func() bool { return canceled },
	}
	j := &job.SearchJob{ID: "j8", Query: "anything"}
	_, err := newTestController(tr).Run(context.Background(), j, "", hooks)
	if !errors.Is(err, job.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancellation should stop before the next pass, calls=%d", calls)
	}
}

func TestRunUserRefinementStep(t *testing.T) {
	tr := translator.Func(func(_ context.Context, req translator.Request) (*translator.Response, error) {
		if req.Query != "softer please" {
			t.Errorf("refinement message not passed through: %q", req.Query)
		}
		return &translator.Response{Spec: specMatchingEnergyAbove(6), ContinueHint: true}, nil
	})
	j := &job.SearchJob{ID: "j9", Query: "original query"}
	j.Steps = []job.ConversationStep{{StepNumber: 1, StepType: job.StepInitial, Query: "original query", Filters: specMatchingAll()}}
	out, err := newTestController(tr).Run(context.Background(), j, "softer please", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Passes != 1 {
		t.Fatalf("expected 1 pass, got %d", out.Passes)
	}
	last := j.Steps[len(j.Steps)-1]
	if last.StepType != job.StepUserRefine || last.StepNumber != 2 {
		t.Fatalf("unexpected refinement step: %+v", last)
	}
}

func TestRunRecordsStepsInOrder(t *testing.T) {
	tr := translator.Func(func(context.Context, translator.Request) (*translator.Response, error) {
		return &translator.Response{Spec: specMatchingAll(), ContinueHint: true}, nil
	})
	var recorded []int
	hooks := Hooks{RecordStep: func(_ context.Context, s job.ConversationStep) error {
		recorded = append(recorded, s.StepNumber)
		return nil
	}}
	j := &job.SearchJob{ID: "j10", Query: "anything"}
	if _, err := newTestController(tr).Run(context.Background(), j, "", hooks); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(recorded) != 4 {
		t.Fatalf("expected 4 recorded steps, got %v", recorded)
	}
	for i, n := range recorded {
		if n != i+1 {
			t.Fatalf("step numbers not dense: %v", recorded)
		}
	}
}
