package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Classification Status
// =============================================================================

// ClassificationState is one lifecycle state of an image's classification run.
type ClassificationState string

const (
	// ClassificationPending indicates the image is queued for classification.
	ClassificationPending ClassificationState = "pending"

	// ClassificationRunning indicates a classification job is in progress.
	ClassificationRunning ClassificationState = "running"

	// ClassificationCompleted indicates the run finished and results were written.
	ClassificationCompleted ClassificationState = "completed"

	// ClassificationFailed indicates the run failed; the message holds the cause.
	ClassificationFailed ClassificationState = "failed"
)

// String returns the string representation of the state.
func (s ClassificationState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized value.
func (s ClassificationState) IsValid() bool {
	switch s {
	case ClassificationPending, ClassificationRunning,
		ClassificationCompleted, ClassificationFailed:
		return true
	}
	return false
}

// IsTerminal returns true for states that end a run. A later upload or edit
// starts a fresh pending entry rather than reusing a terminal one.
func (s ClassificationState) IsTerminal() bool {
	return s == ClassificationCompleted || s == ClassificationFailed
}

// CanFollow reports whether s is a valid successor of prev in the
// append-only status log. The only valid sequence for one run is
// pending -> running -> (completed|failed); a terminal state may be
// followed by a new pending entry for a fresh run.
func (s ClassificationState) CanFollow(prev ClassificationState) bool {
	switch prev {
	case ClassificationPending:
		return s == ClassificationRunning
	case ClassificationRunning:
		return s == ClassificationCompleted || s == ClassificationFailed
	case ClassificationCompleted, ClassificationFailed:
		return s == ClassificationPending
	}
	return false
}

// ClassificationStatus is one append-only log entry recording a lifecycle
// transition for an image. The current status of an image is the most
// recently created entry; entries are never updated in place.
type ClassificationStatus struct {
	ID        uuid.UUID
	ImageID   uuid.UUID
	Status    ClassificationState
	Message   string         // Optional; failure text for failed entries
	Data      map[string]any // Optional; carries the run id among other details
	CreatedAt time.Time
}

// StatusDataRunID is the Data key holding the dispatch run id.
// Result writes are gated on it so a re-dispatched job never duplicates
// points or annotations from a prior completed run.
const StatusDataRunID = "run_id"
