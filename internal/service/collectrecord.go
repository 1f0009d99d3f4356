// This file implements the collect record workflow: classifier pinning,
// submission with a durable annotations export, and reopening.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/repository"
	"github.com/tidalbase/quadrat/internal/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CollectRecordService defines the interface for collect record operations.
type CollectRecordService interface {
	// Create opens a new collect record for a site.
	Create(ctx context.Context, siteID uuid.UUID, name string) (*domain.CollectRecord, error)

	// GetByID retrieves a collect record.
	// Returns domain.ENOTFOUND if it doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error)

	// EnableClassification puts the record into image classification mode,
	// pinning the latest classifier's id and point count onto it. The pin
	// is first-write-wins; calling again is a no-op.
	EnableClassification(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error)

	// Submit finalizes the record and materializes the per-image
	// annotations export in the blob store.
	// Returns domain.ECONFLICT if the record is not open.
	Submit(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error)

	// Reopen returns a submitted record to editing and deletes its stale
	// annotations export; the next submission rebuilds it.
	// Returns domain.ECONFLICT if the record is not submitted.
	Reopen(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error)
}

// =============================================================================
// Implementation
// =============================================================================

type collectRecordService struct {
	queries *repository.Queries
	storage storage.Storage
	logger  *slog.Logger
}

// NewCollectRecordService creates a new CollectRecordService.
func NewCollectRecordService(
	queries *repository.Queries,
	store storage.Storage,
	logger *slog.Logger,
) CollectRecordService {
	return &collectRecordService{
		queries: queries,
		storage: store,
		logger:  logger,
	}
}

// Create opens a new collect record for a site.
func (s *collectRecordService) Create(ctx context.Context, siteID uuid.UUID, name string) (*domain.CollectRecord, error) {
	const op = "collectrecord.create"

	if name == "" {
		return nil, domain.Invalid(op, "Collect record name is required")
	}
	if siteID == uuid.Nil {
		return nil, domain.Invalid(op, "Site id is required")
	}

	record, err := s.queries.CreateCollectRecord(ctx, repository.CreateCollectRecordParams{
		SiteID: siteID,
		Name:   name,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create collect record")
	}
	return toDomainCollectRecord(record), nil
}

// GetByID retrieves a collect record.
func (s *collectRecordService) GetByID(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error) {
	const op = "collectrecord.get"

	record, err := s.queries.GetCollectRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "collect record", id.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch collect record")
	}
	return toDomainCollectRecord(record), nil
}

// EnableClassification pins the latest classifier onto the record.
func (s *collectRecordService) EnableClassification(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error) {
	const op = "collectrecord.enable_classification"

	record, err := s.queries.GetCollectRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "collect record", id.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch collect record")
	}
	if record.ClassifierID.Valid {
		// Already pinned; later classifier releases never repin.
		return toDomainCollectRecord(record), nil
	}

	classifier, err := s.queries.GetLatestClassifier(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "classifier", "latest")
		}
		return nil, domain.Internal(err, op, "failed to fetch latest classifier")
	}

	numPoints := classifier.NumPoints
	if numPoints <= 0 {
		numPoints = domain.PointsPerQuadrat
	}

	pinned, err := s.queries.PinCollectRecordClassifier(ctx, repository.PinCollectRecordClassifierParams{
		ID:               id,
		ClassifierID:     classifier.ID,
		PointsPerQuadrat: numPoints,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent caller pinned first; their version stands.
			record, err = s.queries.GetCollectRecordByID(ctx, id)
			if err != nil {
				return nil, domain.Internal(err, op, "failed to refetch collect record")
			}
			return toDomainCollectRecord(record), nil
		}
		return nil, domain.Internal(err, op, "failed to pin classifier")
	}

	s.logger.Info("pinned classifier",
		"collect_record_id", id,
		"classifier_id", classifier.ID,
		"version", classifier.Version)
	return toDomainCollectRecord(pinned), nil
}

// Submit finalizes the record and materializes the annotations export.
func (s *collectRecordService) Submit(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error) {
	const op = "collectrecord.submit"

	record, err := s.queries.GetCollectRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "collect record", id.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch collect record")
	}
	if domain.CollectRecordStatus(record.Status) != domain.CollectRecordOpen {
		return nil, domain.Conflict(op, "Collect record is not open for submission")
	}

	export, err := s.buildAnnotationsExport(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to build annotations export")
	}

	exportKey := storage.AnnotationsExportKey(id)
	if err := s.storage.Put(ctx, exportKey, bytes.NewReader(export), storage.PutOptions{
		ContentType: "text/csv",
		Overwrite:   true,
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to store annotations export")
	}

	updated, err := s.queries.UpdateCollectRecordStatus(ctx, repository.UpdateCollectRecordStatusParams{
		ID:     id,
		Status: string(domain.CollectRecordSubmitted),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update record status")
	}

	s.logger.Info("submitted collect record", "collect_record_id", id, "export_key", exportKey)
	return toDomainCollectRecord(updated), nil
}

// Reopen returns a submitted record to editing.
func (s *collectRecordService) Reopen(ctx context.Context, id uuid.UUID) (*domain.CollectRecord, error) {
	const op = "collectrecord.reopen"

	record, err := s.queries.GetCollectRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "collect record", id.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch collect record")
	}
	if domain.CollectRecordStatus(record.Status) != domain.CollectRecordSubmitted {
		return nil, domain.Conflict(op, "Only submitted collect records can be reopened")
	}

	// The export is stale the moment editing resumes.
	exportKey := storage.AnnotationsExportKey(id)
	if err := s.storage.Delete(ctx, exportKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("failed to delete annotations export", "key", exportKey, "error", err)
	}

	updated, err := s.queries.UpdateCollectRecordStatus(ctx, repository.UpdateCollectRecordStatusParams{
		ID:     id,
		Status: string(domain.CollectRecordOpen),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update record status")
	}

	s.logger.Info("reopened collect record", "collect_record_id", id)
	return toDomainCollectRecord(updated), nil
}

// buildAnnotationsExport renders one CSV with every annotation across the
// record's images, points in grid order.
func (s *collectRecordService) buildAnnotationsExport(ctx context.Context, recordID uuid.UUID) ([]byte, error) {
	images, err := s.queries.ListImagesByCollectRecordID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"image_id", "image_name", "point_id", "row", "column",
		"benthic_attribute_id", "growth_form_id", "score",
		"is_confirmed", "is_machine_created", "classifier_id",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, img := range images {
		rows, err := s.queries.ListAnnotationsByImageID(ctx, img.ID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			record := []string{
				img.ID.String(),
				img.OriginalName,
				row.PointID.String(),
				strconv.Itoa(int(row.RowIndex)),
				strconv.Itoa(int(row.ColumnIndex)),
				row.BenthicAttributeID.String(),
				nullUUIDString(row.GrowthFormID),
				strconv.Itoa(int(row.Score)),
				strconv.FormatBool(row.IsConfirmed),
				strconv.FormatBool(row.IsMachineCreated),
				nullUUIDString(row.ClassifierID),
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toDomainCollectRecord(row repository.CollectRecord) *domain.CollectRecord {
	return &domain.CollectRecord{
		ID:                  row.ID,
		SiteID:              row.SiteID,
		Name:                row.Name,
		ImageClassification: row.ImageClassification,
		ClassifierID:        row.ClassifierID,
		PointsPerQuadrat:    row.PointsPerQuadrat,
		Status:              domain.CollectRecordStatus(row.Status),
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func nullUUIDString(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}
