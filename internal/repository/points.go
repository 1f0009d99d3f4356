package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const batchCreatePoints = `
INSERT INTO points (id, image_id, row_index, column_index, created_by)
SELECT unnest($2::uuid[]), $1, unnest($3::int[]), unnest($4::int[]), $5
`

type BatchCreatePointsParams struct {
	ImageID   uuid.UUID
	IDs       []uuid.UUID
	Rows      []int32
	Columns   []int32
	CreatedBy uuid.NullUUID
}

// BatchCreatePoints inserts one classification run's sampled points in a
// single round trip.
func (q *Queries) BatchCreatePoints(ctx context.Context, arg BatchCreatePointsParams) error {
	_, err := q.db.ExecContext(ctx, batchCreatePoints,
		arg.ImageID,
		pq.Array(arg.IDs),
		pq.Array(arg.Rows),
		pq.Array(arg.Columns),
		arg.CreatedBy,
	)
	return err
}

const batchCreateAnnotations = `
INSERT INTO annotations (
    id, point_id, classifier_id, benthic_attribute_id, growth_form_id,
    score, is_confirmed, is_machine_created
)
SELECT unnest($2::uuid[]), unnest($3::uuid[]), $1, unnest($4::uuid[]),
       unnest($5::uuid[]), unnest($6::int[]), unnest($7::bool[]), TRUE
`

type BatchCreateAnnotationsParams struct {
	ClassifierID        uuid.UUID
	IDs                 []uuid.UUID
	PointIDs            []uuid.UUID
	BenthicAttributeIDs []uuid.UUID
	GrowthFormIDs       []uuid.NullUUID
	Scores              []int32
	Confirmed           []bool
}

// BatchCreateAnnotations inserts one run's machine annotations in a single
// round trip. Callers run this in the same transaction as BatchCreatePoints.
func (q *Queries) BatchCreateAnnotations(ctx context.Context, arg BatchCreateAnnotationsParams) error {
	_, err := q.db.ExecContext(ctx, batchCreateAnnotations,
		arg.ClassifierID,
		pq.Array(arg.IDs),
		pq.Array(arg.PointIDs),
		pq.Array(arg.BenthicAttributeIDs),
		pq.Array(arg.GrowthFormIDs),
		pq.Array(arg.Scores),
		pq.Array(arg.Confirmed),
	)
	return err
}

const getPointByID = `
SELECT id, image_id, row_index, column_index, created_by, created_at
FROM points
WHERE id = $1
`

func (q *Queries) GetPointByID(ctx context.Context, id uuid.UUID) (Point, error) {
	row := q.db.QueryRowContext(ctx, getPointByID, id)
	var p Point
	err := row.Scan(&p.ID, &p.ImageID, &p.RowIndex, &p.ColumnIndex, &p.CreatedBy, &p.CreatedAt)
	return p, err
}

const countPointsByImageID = `
SELECT count(*) FROM points WHERE image_id = $1
`

func (q *Queries) CountPointsByImageID(ctx context.Context, imageID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countPointsByImageID, imageID).Scan(&count)
	return count, err
}

const annotationColumns = `id, point_id, classifier_id, benthic_attribute_id,
growth_form_id, score, is_confirmed, is_machine_created, created_at`

func scanAnnotation(row interface{ Scan(...interface{}) error }) (Annotation, error) {
	var a Annotation
	err := row.Scan(
		&a.ID, &a.PointID, &a.ClassifierID, &a.BenthicAttributeID,
		&a.GrowthFormID, &a.Score, &a.IsConfirmed, &a.IsMachineCreated,
		&a.CreatedAt,
	)
	return a, err
}

const createAnnotation = `
INSERT INTO annotations (
    id, point_id, classifier_id, benthic_attribute_id, growth_form_id,
    score, is_confirmed, is_machine_created
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + annotationColumns

type CreateAnnotationParams struct {
	ID                 uuid.UUID
	PointID            uuid.UUID
	ClassifierID       uuid.NullUUID
	BenthicAttributeID uuid.UUID
	GrowthFormID       uuid.NullUUID
	Score              int32
	IsConfirmed        bool
	IsMachineCreated   bool
}

func (q *Queries) CreateAnnotation(ctx context.Context, arg CreateAnnotationParams) (Annotation, error) {
	row := q.db.QueryRowContext(ctx, createAnnotation,
		arg.ID, arg.PointID, arg.ClassifierID, arg.BenthicAttributeID,
		arg.GrowthFormID, arg.Score, arg.IsConfirmed, arg.IsMachineCreated,
	)
	return scanAnnotation(row)
}

const getAnnotationByID = `
SELECT ` + annotationColumns + `
FROM annotations
WHERE id = $1
`

func (q *Queries) GetAnnotationByID(ctx context.Context, id uuid.UUID) (Annotation, error) {
	return scanAnnotation(q.db.QueryRowContext(ctx, getAnnotationByID, id))
}

const listAnnotationsByPointID = `
SELECT ` + annotationColumns + `
FROM annotations
WHERE point_id = $1
ORDER BY score DESC, created_at
`

func (q *Queries) ListAnnotationsByPointID(ctx context.Context, pointID uuid.UUID) ([]Annotation, error) {
	rows, err := q.db.QueryContext(ctx, listAnnotationsByPointID, pointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateAnnotationConfirmed = `
UPDATE annotations
SET is_confirmed = $2
WHERE id = $1
`

type UpdateAnnotationConfirmedParams struct {
	ID          uuid.UUID
	IsConfirmed bool
}

func (q *Queries) UpdateAnnotationConfirmed(ctx context.Context, arg UpdateAnnotationConfirmedParams) error {
	_, err := q.db.ExecContext(ctx, updateAnnotationConfirmed, arg.ID, arg.IsConfirmed)
	return err
}

// ImageAnnotationRow joins a point with one of its annotations; used to
// build the per-image annotations export on submission.
type ImageAnnotationRow struct {
	PointID            uuid.UUID
	RowIndex           int32
	ColumnIndex        int32
	AnnotationID       uuid.UUID
	ClassifierID       uuid.NullUUID
	BenthicAttributeID uuid.UUID
	GrowthFormID       uuid.NullUUID
	Score              int32
	IsConfirmed        bool
	IsMachineCreated   bool
}

const listAnnotationsByImageID = `
SELECT p.id, p.row_index, p.column_index,
       a.id, a.classifier_id, a.benthic_attribute_id, a.growth_form_id,
       a.score, a.is_confirmed, a.is_machine_created
FROM points p
JOIN annotations a ON a.point_id = p.id
WHERE p.image_id = $1
ORDER BY p.row_index, p.column_index, a.score DESC
`

func (q *Queries) ListAnnotationsByImageID(ctx context.Context, imageID uuid.UUID) ([]ImageAnnotationRow, error) {
	rows, err := q.db.QueryContext(ctx, listAnnotationsByImageID, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImageAnnotationRow
	for rows.Next() {
		var r ImageAnnotationRow
		if err := rows.Scan(
			&r.PointID, &r.RowIndex, &r.ColumnIndex,
			&r.AnnotationID, &r.ClassifierID, &r.BenthicAttributeID,
			&r.GrowthFormID, &r.Score, &r.IsConfirmed, &r.IsMachineCreated,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
