package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidalbase/quadrat/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeClassifyImage = "classify_image"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// ClassifyImagePayload is the payload for image classification jobs.
// RunID identifies one classification attempt; a re-dispatched job for
// the same image carries a fresh RunID.
type ClassifyImagePayload struct {
	ImageID uuid.UUID `json:"image_id"`
	UserID  uuid.UUID `json:"user_id"`
	RunID   uuid.UUID `json:"run_id"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queries *repository.Queries,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	// Marshal the payload to JSON
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	// Default parameters
	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	// Apply options
	for _, opt := range opts {
		opt(&params)
	}

	// Enqueue the job
	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueClassifyImage enqueues a classification job for one image.
// This is called after an upload and whenever a reviewer retries a
// failed run; each call mints a fresh run id.
func EnqueueClassifyImage(
	ctx context.Context,
	queries *repository.Queries,
	imageID uuid.UUID,
	userID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, uuid.UUID, error) {
	runID := uuid.New()
	payload := ClassifyImagePayload{
		ImageID: imageID,
		UserID:  userID,
		RunID:   runID,
	}

	job, err := EnqueueJob(ctx, queries, JobTypeClassifyImage, payload, opts...)
	if err != nil {
		return repository.Job{}, uuid.Nil, err
	}
	return job, runID, nil
}
