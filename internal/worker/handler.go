package worker

import (
	"context"
	"errors"
)

// JobHandler processes one job type from the queue.
type JobHandler interface {
	// Type returns the handler's job type. It matches the job_type
	// column in the jobs table.
	Type() string

	// Handle runs one job. The payload is the raw JSON stored at
	// enqueue time. A plain error puts the job back for retry; wrap
	// with NewPermanentError to fail it for good.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a job failure that retrying cannot fix, such as
// an unparseable payload. The worker fails the job immediately instead
// of rescheduling it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err so the worker will not retry the job.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in
// its chain.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
