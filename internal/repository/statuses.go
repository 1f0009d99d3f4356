package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createClassificationStatus = `
INSERT INTO classification_statuses (image_id, status, message, data)
VALUES ($1, $2, $3, $4)
RETURNING id, image_id, status, message, data, created_at
`

type CreateClassificationStatusParams struct {
	ImageID uuid.UUID
	Status  string
	Message sql.NullString
	Data    pqtype.NullRawMessage
}

// CreateClassificationStatus appends one entry to an image's status log.
// Entries are never updated in place.
func (q *Queries) CreateClassificationStatus(ctx context.Context, arg CreateClassificationStatusParams) (ClassificationStatus, error) {
	row := q.db.QueryRowContext(ctx, createClassificationStatus,
		arg.ImageID, arg.Status, arg.Message, arg.Data)
	var s ClassificationStatus
	err := row.Scan(&s.ID, &s.ImageID, &s.Status, &s.Message, &s.Data, &s.CreatedAt)
	return s, err
}

const listStatusesByImageID = `
SELECT id, image_id, status, message, data, created_at
FROM classification_statuses
WHERE image_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListStatusesByImageID(ctx context.Context, imageID uuid.UUID) ([]ClassificationStatus, error) {
	rows, err := q.db.QueryContext(ctx, listStatusesByImageID, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ClassificationStatus
	for rows.Next() {
		var s ClassificationStatus
		if err := rows.Scan(&s.ID, &s.ImageID, &s.Status, &s.Message, &s.Data, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLatestStatusByImageID = `
SELECT id, image_id, status, message, data, created_at
FROM classification_statuses
WHERE image_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`

// GetLatestStatusByImageID returns the image's current status: the most
// recently created log entry.
func (q *Queries) GetLatestStatusByImageID(ctx context.Context, imageID uuid.UUID) (ClassificationStatus, error) {
	row := q.db.QueryRowContext(ctx, getLatestStatusByImageID, imageID)
	var s ClassificationStatus
	err := row.Scan(&s.ID, &s.ImageID, &s.Status, &s.Message, &s.Data, &s.CreatedAt)
	return s, err
}

const countCompletedStatusByRunID = `
SELECT count(*)
FROM classification_statuses
WHERE image_id = $1
  AND status = 'completed'
  AND data->>'run_id' = $2
`

type CountCompletedStatusByRunIDParams struct {
	ImageID uuid.UUID
	RunID   string
}

// CountCompletedStatusByRunID reports whether a run already wrote its
// results. Re-dispatched jobs check this before writing points.
func (q *Queries) CountCompletedStatusByRunID(ctx context.Context, arg CountCompletedStatusByRunIDParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countCompletedStatusByRunID, arg.ImageID, arg.RunID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
