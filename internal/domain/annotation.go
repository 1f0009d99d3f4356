package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Points and Annotations
// =============================================================================

const (
	// PointsPerQuadrat is the point count requested from the sampler for one
	// classification run.
	PointsPerQuadrat = 25

	// MaxMachineSuggestions is how many top-ranked labels become machine
	// annotations per point.
	MaxMachineSuggestions = 3

	// AutoConfirmThreshold is the probability at or above which the
	// top-ranked machine annotation is created pre-confirmed.
	AutoConfirmThreshold = 0.8
)

// Point is one sampled pixel coordinate within an image. Points are owned
// exclusively by their image and are deleted with it.
type Point struct {
	ID        uuid.UUID
	ImageID   uuid.UUID
	Row       int32
	Column    int32
	CreatedAt time.Time
	CreatedBy uuid.NullUUID // Acting user for machine runs triggered by an upload
}

// Annotation is one label assigned to a point, by the classifier or a
// reviewer. Machine annotations are immutable except for IsConfirmed.
type Annotation struct {
	ID                 uuid.UUID
	PointID            uuid.UUID
	ClassifierID       uuid.NullUUID // Null means human-made
	BenthicAttributeID uuid.UUID
	GrowthFormID       uuid.NullUUID
	Score              int32 // 0-100
	IsConfirmed        bool
	IsMachineCreated   bool
	CreatedAt          time.Time
}

// ValidateNewAnnotation enforces the per-point annotation invariants against
// the point's existing annotations:
//
//   - at most one human-made annotation per point
//   - at most one confirmed annotation per point, machine or human
//
// The same rules are backed by partial unique indexes, so a racing writer
// that slips past this check still fails at commit.
func ValidateNewAnnotation(existing []Annotation, candidate Annotation) error {
	const op = "annotation.create"

	if candidate.Score < 0 || candidate.Score > 100 {
		return Errorf(EINVALID, op, "score must be between 0 and 100, got %d", candidate.Score)
	}

	for _, a := range existing {
		if !candidate.IsMachineCreated && !a.IsMachineCreated {
			return Conflict(op, "point already has a human-made annotation")
		}
		if candidate.IsConfirmed && a.IsConfirmed {
			return Conflict(op, "point already has a confirmed annotation")
		}
	}
	return nil
}

// ValidateConfirm checks that marking target confirmed would not produce a
// second confirmed annotation on the same point.
func ValidateConfirm(existing []Annotation, targetID uuid.UUID) error {
	const op = "annotation.confirm"

	for _, a := range existing {
		if a.IsConfirmed && a.ID != targetID {
			return Conflict(op, "point already has a confirmed annotation")
		}
	}
	return nil
}
