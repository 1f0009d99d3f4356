package domain

import (
	"time"

	"github.com/google/uuid"
)

// Classifier is an immutable, versioned model descriptor. It names a model
// version and the point count the version expects; the weights themselves
// live in the blob store under the version's prefix.
type Classifier struct {
	ID        uuid.UUID
	Version   string
	NumPoints int32
	CreatedAt time.Time
}

// Label maps the classifier's internal label id to a benthic attribute and
// optional growth form. Read-only reference data.
type Label struct {
	ID                 uuid.UUID
	LabelID            int32 // Classifier-internal id
	BenthicAttributeID uuid.NullUUID
	GrowthFormID       uuid.NullUUID
}
