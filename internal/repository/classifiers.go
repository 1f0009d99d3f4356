package repository

import (
	"context"

	"github.com/google/uuid"
)

const getLatestClassifier = `
SELECT id, version, num_points, created_at
FROM classifiers
ORDER BY created_at DESC, id DESC
LIMIT 1
`

// GetLatestClassifier returns the most recently created classifier. This is
// always a fresh read so version pinning never sees a stale value.
func (q *Queries) GetLatestClassifier(ctx context.Context) (Classifier, error) {
	row := q.db.QueryRowContext(ctx, getLatestClassifier)
	var c Classifier
	err := row.Scan(&c.ID, &c.Version, &c.NumPoints, &c.CreatedAt)
	return c, err
}

const getClassifierByID = `
SELECT id, version, num_points, created_at
FROM classifiers
WHERE id = $1
`

func (q *Queries) GetClassifierByID(ctx context.Context, id uuid.UUID) (Classifier, error) {
	row := q.db.QueryRowContext(ctx, getClassifierByID, id)
	var c Classifier
	err := row.Scan(&c.ID, &c.Version, &c.NumPoints, &c.CreatedAt)
	return c, err
}

const createClassifier = `
INSERT INTO classifiers (version, num_points)
VALUES ($1, $2)
RETURNING id, version, num_points, created_at
`

type CreateClassifierParams struct {
	Version   string
	NumPoints int32
}

func (q *Queries) CreateClassifier(ctx context.Context, arg CreateClassifierParams) (Classifier, error) {
	row := q.db.QueryRowContext(ctx, createClassifier, arg.Version, arg.NumPoints)
	var c Classifier
	err := row.Scan(&c.ID, &c.Version, &c.NumPoints, &c.CreatedAt)
	return c, err
}

const listLabels = `
SELECT id, label_id, benthic_attribute_id, growth_form_id
FROM labels
ORDER BY label_id
`

// ListLabels returns the full classifier-label reference table.
func (q *Queries) ListLabels(ctx context.Context) ([]Label, error) {
	rows, err := q.db.QueryContext(ctx, listLabels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Label
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.LabelID, &l.BenthicAttributeID, &l.GrowthFormID); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
