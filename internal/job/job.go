// Package job defines the search job model shared by the orchestrator,
// the stores and the HTTP layer.
package job

import (
	"time"

	"github.com/slavierouse/sound-your-scene/internal/filterspec"
	"github.com/slavierouse/sound-your-scene/internal/scoring"
)

// Status is the lifecycle state of a search job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCanceled
}

// StepType distinguishes how a conversation step was triggered.
type StepType string

const (
	StepInitial    StepType = "initial"
	StepAutoRefine StepType = "auto_refine"
	StepUserRefine StepType = "user_refine"
)

// ConversationStep is one translate/score/evaluate pass. Steps accumulate in
// order and survive job completion so that refinements and clients can replay
// the full session history.
type ConversationStep struct {
	StepNumber  int                   `json:"step_number"`
	StepType    StepType              `json:"step_type"`
	Query       string                `json:"query"`
	// TargetRange is the [low, high] result-count band this pass aimed for.
	TargetRange [2]int                `json:"target_range"`
	Filters     filterspec.FilterSpec `json:"filters"`
	Summary     scoring.Summary       `json:"summary"`
	ResultCount int                   `json:"result_count"`
	UserMessage string                `json:"user_message,omitempty"`
	Reflection  string                `json:"reflection,omitempty"`
	Model       string                `json:"model,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// SearchJob is the persisted state of one search session.
type SearchJob struct {
	ID              string             `json:"id"`
	Status          Status             `json:"status"`
	Query           string             `json:"query"`
	ImageData       string             `json:"image_data,omitempty"`
	Steps           []ConversationStep `json:"steps"`
	UserRefinements int                `json:"user_refinements"`
	ResultCount     int                `json:"result_count"`
	ResultSummary   *scoring.Summary   `json:"result_summary,omitempty"`
	UserMessage     string             `json:"user_message,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	// StartedAt is set when the job first transitions to running; FinishedAt
	// is set exactly when the job reaches a terminal status and cleared if a
	// refinement reopens it.
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// LastSpec returns the filter document of the most recent step, if any.
func (j *SearchJob) LastSpec() (filterspec.FilterSpec, bool) {
	if len(j.Steps) == 0 {
		return filterspec.FilterSpec{}, false
	}
	return j.Steps[len(j.Steps)-1].Filters, true
}

// RankedResult is one row of a job's final ordered result set. Rank positions
// start at 1 and are dense.
type RankedResult struct {
	JobID          string  `json:"job_id"`
	RankPosition   int     `json:"rank_position"`
	TrackID        string  `json:"track_id"`
	RelevanceScore float64 `json:"relevance_score"`
}
