package repository

import (
	"context"

	"github.com/google/uuid"
)

const collectRecordColumns = `id, site_id, name, image_classification,
classifier_id, points_per_quadrat, status, created_at, updated_at`

func scanCollectRecord(row interface{ Scan(...interface{}) error }) (CollectRecord, error) {
	var c CollectRecord
	err := row.Scan(
		&c.ID, &c.SiteID, &c.Name, &c.ImageClassification,
		&c.ClassifierID, &c.PointsPerQuadrat, &c.Status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

const createCollectRecord = `
INSERT INTO collect_records (site_id, name)
VALUES ($1, $2)
RETURNING ` + collectRecordColumns

type CreateCollectRecordParams struct {
	SiteID uuid.UUID
	Name   string
}

func (q *Queries) CreateCollectRecord(ctx context.Context, arg CreateCollectRecordParams) (CollectRecord, error) {
	row := q.db.QueryRowContext(ctx, createCollectRecord, arg.SiteID, arg.Name)
	return scanCollectRecord(row)
}

const getCollectRecordByID = `
SELECT ` + collectRecordColumns + `
FROM collect_records
WHERE id = $1
`

func (q *Queries) GetCollectRecordByID(ctx context.Context, id uuid.UUID) (CollectRecord, error) {
	return scanCollectRecord(q.db.QueryRowContext(ctx, getCollectRecordByID, id))
}

const pinCollectRecordClassifier = `
UPDATE collect_records
SET image_classification = TRUE,
    classifier_id = $2,
    points_per_quadrat = $3,
    updated_at = now()
WHERE id = $1 AND classifier_id IS NULL
RETURNING ` + collectRecordColumns

type PinCollectRecordClassifierParams struct {
	ID               uuid.UUID
	ClassifierID     uuid.UUID
	PointsPerQuadrat int32
}

// PinCollectRecordClassifier records the classifier version used for the
// record. The WHERE clause makes the pin first-write-wins: once set it is
// never overwritten, so every image in the record is judged by one model.
func (q *Queries) PinCollectRecordClassifier(ctx context.Context, arg PinCollectRecordClassifierParams) (CollectRecord, error) {
	row := q.db.QueryRowContext(ctx, pinCollectRecordClassifier,
		arg.ID, arg.ClassifierID, arg.PointsPerQuadrat)
	return scanCollectRecord(row)
}

const updateCollectRecordStatus = `
UPDATE collect_records
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + collectRecordColumns

type UpdateCollectRecordStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateCollectRecordStatus(ctx context.Context, arg UpdateCollectRecordStatusParams) (CollectRecord, error) {
	row := q.db.QueryRowContext(ctx, updateCollectRecordStatus, arg.ID, arg.Status)
	return scanCollectRecord(row)
}
