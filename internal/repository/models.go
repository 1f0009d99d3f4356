package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Classifier struct {
	ID        uuid.UUID
	Version   string
	NumPoints int32
	CreatedAt time.Time
}

type Label struct {
	ID                 uuid.UUID
	LabelID            int32
	BenthicAttributeID uuid.NullUUID
	GrowthFormID       uuid.NullUUID
}

type CollectRecord struct {
	ID                  uuid.UUID
	SiteID              uuid.UUID
	Name                string
	ImageClassification bool
	ClassifierID        uuid.NullUUID
	PointsPerQuadrat    int32
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Image struct {
	ID              uuid.UUID
	CollectRecordID uuid.UUID
	SiteID          uuid.UUID
	StorageKey      string
	ThumbnailKey    sql.NullString
	OriginalName    string
	Checksum        sql.NullString
	ContentType     string
	SizeBytes       int64
	Width           sql.NullInt32
	Height          sql.NullInt32
	Data            pqtype.NullRawMessage
	Latitude        sql.NullFloat64
	Longitude       sql.NullFloat64
	PhotoTimestamp  sql.NullTime
	Bucket          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Point struct {
	ID          uuid.UUID
	ImageID     uuid.UUID
	RowIndex    int32
	ColumnIndex int32
	CreatedBy   uuid.NullUUID
	CreatedAt   time.Time
}

type Annotation struct {
	ID                 uuid.UUID
	PointID            uuid.UUID
	ClassifierID       uuid.NullUUID
	BenthicAttributeID uuid.UUID
	GrowthFormID       uuid.NullUUID
	Score              int32
	IsConfirmed        bool
	IsMachineCreated   bool
	CreatedAt          time.Time
}

type ClassificationStatus struct {
	ID        uuid.UUID
	ImageID   uuid.UUID
	Status    string
	Message   sql.NullString
	Data      pqtype.NullRawMessage
	CreatedAt time.Time
}

type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      json.RawMessage
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
	CreatedAt    time.Time
}
