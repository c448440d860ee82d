// Package translator turns free-text mood queries into structured filter
// documents using a reasoning model. The orchestrator only sees the
// Translator interface; the OpenAI adapter and the test fake both satisfy it.
package translator

import (
	"context"
	"errors"

	"github.com/slavierouse/sound-your-scene/internal/filterspec"
	"github.com/slavierouse/sound-your-scene/internal/job"
)

// ErrInvalidResponse marks a model reply that could not be decoded into a
// valid filter document. It is recoverable: callers retry the translation.
var ErrInvalidResponse = errors.New("invalid translator response")

// Request carries everything the translator needs for one pass.
type Request struct {
	// Query is the user's current message: the original query on the first
	// pass, the refinement message on a user refinement.
	Query string
	// Seed is machine-generated steering appended to automatic passes,
	// e.g. the previous result count and the direction to move in.
	Seed string
	// Steps holds the prior passes of this job, oldest first.
	Steps []job.ConversationStep
	// ImageData is an optional data-URL encoded image accompanying the query.
	ImageData string
}

// Response is one translated filter document plus the model's commentary.
type Response struct {
	Spec filterspec.FilterSpec
	// Rationale is the model's private reasoning about the filter choices.
	Rationale string
	// UserMessage is the model's user-facing note about the result set.
	UserMessage string
	// ContinueHint is false when the model judges that further automatic
	// refinement would not improve the result set.
	ContinueHint bool
	// Model identifies which model produced this response.
	Model string
}

// Translator converts a query plus conversation history into a filter spec.
type Translator interface {
	Translate(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a plain function to the Translator interface, mainly for tests.
type Func func(ctx context.Context, req Request) (*Response, error)

func (f Func) Translate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
