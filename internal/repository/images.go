package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const imageColumns = `id, collect_record_id, site_id, storage_key, thumbnail_key,
original_name, checksum, content_type, size_bytes, width, height, data,
latitude, longitude, photo_timestamp, bucket, created_at, updated_at`

func scanImage(row interface{ Scan(...interface{}) error }) (Image, error) {
	var i Image
	err := row.Scan(
		&i.ID, &i.CollectRecordID, &i.SiteID, &i.StorageKey, &i.ThumbnailKey,
		&i.OriginalName, &i.Checksum, &i.ContentType, &i.SizeBytes,
		&i.Width, &i.Height, &i.Data,
		&i.Latitude, &i.Longitude, &i.PhotoTimestamp, &i.Bucket,
		&i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const createImage = `
INSERT INTO images (
    id, collect_record_id, site_id, storage_key, original_name, content_type,
    size_bytes, width, height, data, latitude, longitude, photo_timestamp, bucket
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + imageColumns

type CreateImageParams struct {
	ID              uuid.UUID
	CollectRecordID uuid.UUID
	SiteID          uuid.UUID
	StorageKey      string
	OriginalName    string
	ContentType     string
	SizeBytes       int64
	Width           sql.NullInt32
	Height          sql.NullInt32
	Data            pqtype.NullRawMessage
	Latitude        sql.NullFloat64
	Longitude       sql.NullFloat64
	PhotoTimestamp  sql.NullTime
	Bucket          string
}

func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) (Image, error) {
	row := q.db.QueryRowContext(ctx, createImage,
		arg.ID, arg.CollectRecordID, arg.SiteID, arg.StorageKey, arg.OriginalName,
		arg.ContentType, arg.SizeBytes, arg.Width, arg.Height, arg.Data,
		arg.Latitude, arg.Longitude, arg.PhotoTimestamp, arg.Bucket,
	)
	return scanImage(row)
}

const getImageByID = `
SELECT ` + imageColumns + `
FROM images
WHERE id = $1
`

func (q *Queries) GetImageByID(ctx context.Context, id uuid.UUID) (Image, error) {
	return scanImage(q.db.QueryRowContext(ctx, getImageByID, id))
}

const listImagesByCollectRecordID = `
SELECT ` + imageColumns + `
FROM images
WHERE collect_record_id = $1
ORDER BY created_at
`

func (q *Queries) ListImagesByCollectRecordID(ctx context.Context, collectRecordID uuid.UUID) ([]Image, error) {
	rows, err := q.db.QueryContext(ctx, listImagesByCollectRecordID, collectRecordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Image
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateImageThumbnail = `
UPDATE images
SET thumbnail_key = $2, checksum = $3, updated_at = now()
WHERE id = $1
`

type UpdateImageThumbnailParams struct {
	ID           uuid.UUID
	ThumbnailKey sql.NullString
	Checksum     sql.NullString
}

// UpdateImageThumbnail records a freshly generated thumbnail together with
// the checksum of the blob it was built from.
func (q *Queries) UpdateImageThumbnail(ctx context.Context, arg UpdateImageThumbnailParams) error {
	_, err := q.db.ExecContext(ctx, updateImageThumbnail, arg.ID, arg.ThumbnailKey, arg.Checksum)
	return err
}

const deleteImageByID = `
DELETE FROM images WHERE id = $1
`

func (q *Queries) DeleteImageByID(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteImageByID, id)
	return err
}
