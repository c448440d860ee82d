package job

import "errors"

var (
	// ErrInvalidState rejects an operation the job's current status forbids,
	// like refining a job that is still running.
	ErrInvalidState = errors.New("job is not in a valid state for this operation")

	// ErrLimitExceeded rejects a refinement past the per-job ceiling.
	ErrLimitExceeded = errors.New("refinement limit exceeded")

	// ErrCanceled marks work abandoned because the job was canceled.
	ErrCanceled = errors.New("job canceled")
)
