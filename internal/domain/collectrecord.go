package domain

import (
	"time"

	"github.com/google/uuid"
)

// CollectRecordStatus is the workflow state of a data-collection record.
type CollectRecordStatus string

const (
	// CollectRecordOpen means the record is being edited; images may be
	// uploaded and annotations reviewed.
	CollectRecordOpen CollectRecordStatus = "open"

	// CollectRecordSubmitted means the record was finalized; a durable
	// annotations export exists for it.
	CollectRecordSubmitted CollectRecordStatus = "submitted"
)

// CollectRecord is the in-progress data-collection record that owns uploaded
// images. Once it enters image classification mode the classifier version is
// pinned so every image in the record is judged by the same model, even if a
// newer classifier is published mid-collection.
type CollectRecord struct {
	ID                  uuid.UUID
	SiteID              uuid.UUID
	Name                string
	ImageClassification bool
	ClassifierID        uuid.NullUUID // Pinned when classification mode is enabled
	PointsPerQuadrat    int32         // Copied from the pinned classifier
	Status              CollectRecordStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsPinned reports whether a classifier version has been pinned.
func (c *CollectRecord) IsPinned() bool {
	return c.ClassifierID.Valid
}

// CanSubmit reports whether the record may be finalized.
func (c *CollectRecord) CanSubmit() bool {
	return c.Status == CollectRecordOpen
}

// CanReopen reports whether the record may be reopened for edits.
func (c *CollectRecord) CanReopen() bool {
	return c.Status == CollectRecordSubmitted
}
