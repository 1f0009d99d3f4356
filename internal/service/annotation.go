// This file implements annotation review: human annotations on sampled
// points and confirmation toggling, with the per-point invariants enforced.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/metrics"
	"github.com/tidalbase/quadrat/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CreateAnnotationParams are the reviewer-supplied fields for one human
// annotation.
type CreateAnnotationParams struct {
	PointID            uuid.UUID
	BenthicAttributeID uuid.UUID
	GrowthFormID       uuid.NullUUID
	Score              int32
	IsConfirmed        bool
}

// AnnotationService defines the interface for annotation review operations.
type AnnotationService interface {
	// Create adds a human-made annotation to a point.
	// Returns domain.ENOTFOUND if the point doesn't exist.
	// Returns domain.ECONFLICT if the point already has a human annotation,
	// or a confirmed one when IsConfirmed is set.
	Create(ctx context.Context, params CreateAnnotationParams) (*domain.Annotation, error)

	// Confirm marks an annotation confirmed.
	// Returns domain.ECONFLICT if another annotation on the same point is
	// already confirmed.
	Confirm(ctx context.Context, annotationID uuid.UUID) error

	// Unconfirm clears an annotation's confirmed flag.
	Unconfirm(ctx context.Context, annotationID uuid.UUID) error

	// ListByPoint returns a point's annotations, highest score first.
	ListByPoint(ctx context.Context, pointID uuid.UUID) ([]domain.Annotation, error)
}

// =============================================================================
// Implementation
// =============================================================================

type annotationService struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewAnnotationService creates a new AnnotationService.
func NewAnnotationService(queries *repository.Queries, logger *slog.Logger) AnnotationService {
	return &annotationService{
		queries: queries,
		logger:  logger,
	}
}

// Create adds a human-made annotation to a point.
func (s *annotationService) Create(ctx context.Context, params CreateAnnotationParams) (*domain.Annotation, error) {
	const op = "annotation.create"

	if _, err := s.queries.GetPointByID(ctx, params.PointID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "point", params.PointID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch point")
	}

	existing, err := s.listDomainByPoint(ctx, params.PointID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list annotations")
	}

	candidate := domain.Annotation{
		PointID:            params.PointID,
		BenthicAttributeID: params.BenthicAttributeID,
		GrowthFormID:       params.GrowthFormID,
		Score:              params.Score,
		IsConfirmed:        params.IsConfirmed,
		IsMachineCreated:   false,
	}
	if err := domain.ValidateNewAnnotation(existing, candidate); err != nil {
		return nil, err
	}

	row, err := s.queries.CreateAnnotation(ctx, repository.CreateAnnotationParams{
		ID:                 uuid.New(),
		PointID:            params.PointID,
		BenthicAttributeID: params.BenthicAttributeID,
		GrowthFormID:       params.GrowthFormID,
		Score:              params.Score,
		IsConfirmed:        params.IsConfirmed,
		IsMachineCreated:   false,
	})
	if err != nil {
		// A racing writer can slip past the validation; the partial unique
		// indexes are the backstop.
		if isUniqueViolation(err) {
			return nil, domain.Conflict(op, "point already has a conflicting annotation")
		}
		return nil, domain.Internal(err, op, "failed to create annotation")
	}

	metrics.AnnotationsCreated.WithLabelValues("human").Inc()
	result := toDomainAnnotation(row)
	return &result, nil
}

// Confirm marks an annotation confirmed.
func (s *annotationService) Confirm(ctx context.Context, annotationID uuid.UUID) error {
	const op = "annotation.confirm"

	annotation, err := s.queries.GetAnnotationByID(ctx, annotationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "annotation", annotationID.String())
		}
		return domain.Internal(err, op, "failed to fetch annotation")
	}
	if annotation.IsConfirmed {
		return nil
	}

	existing, err := s.listDomainByPoint(ctx, annotation.PointID)
	if err != nil {
		return domain.Internal(err, op, "failed to list annotations")
	}
	if err := domain.ValidateConfirm(existing, annotationID); err != nil {
		return err
	}

	if err := s.queries.UpdateAnnotationConfirmed(ctx, repository.UpdateAnnotationConfirmedParams{
		ID:          annotationID,
		IsConfirmed: true,
	}); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict(op, "point already has a confirmed annotation")
		}
		return domain.Internal(err, op, "failed to confirm annotation")
	}
	return nil
}

// Unconfirm clears an annotation's confirmed flag.
func (s *annotationService) Unconfirm(ctx context.Context, annotationID uuid.UUID) error {
	const op = "annotation.unconfirm"

	if _, err := s.queries.GetAnnotationByID(ctx, annotationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "annotation", annotationID.String())
		}
		return domain.Internal(err, op, "failed to fetch annotation")
	}

	if err := s.queries.UpdateAnnotationConfirmed(ctx, repository.UpdateAnnotationConfirmedParams{
		ID:          annotationID,
		IsConfirmed: false,
	}); err != nil {
		return domain.Internal(err, op, "failed to unconfirm annotation")
	}
	return nil
}

// ListByPoint returns a point's annotations, highest score first.
func (s *annotationService) ListByPoint(ctx context.Context, pointID uuid.UUID) ([]domain.Annotation, error) {
	const op = "annotation.list"

	if _, err := s.queries.GetPointByID(ctx, pointID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "point", pointID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch point")
	}

	annotations, err := s.listDomainByPoint(ctx, pointID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list annotations")
	}
	return annotations, nil
}

func (s *annotationService) listDomainByPoint(ctx context.Context, pointID uuid.UUID) ([]domain.Annotation, error) {
	rows, err := s.queries.ListAnnotationsByPointID(ctx, pointID)
	if err != nil {
		return nil, err
	}
	annotations := make([]domain.Annotation, 0, len(rows))
	for _, row := range rows {
		annotations = append(annotations, toDomainAnnotation(row))
	}
	return annotations, nil
}

func toDomainAnnotation(row repository.Annotation) domain.Annotation {
	return domain.Annotation{
		ID:                 row.ID,
		PointID:            row.PointID,
		ClassifierID:       row.ClassifierID,
		BenthicAttributeID: row.BenthicAttributeID,
		GrowthFormID:       row.GrowthFormID,
		Score:              row.Score,
		IsConfirmed:        row.IsConfirmed,
		IsMachineCreated:   row.IsMachineCreated,
		CreatedAt:          row.CreatedAt,
	}
}

// uniqueViolationCode is the SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

// isUniqueViolation detects a unique-constraint failure from either
// Postgres driver in use: pgx serves the connection pool, lib/pq backs
// the array helpers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
