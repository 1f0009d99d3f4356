// Package service contains business logic for the quadrat pipeline.
//
// This file implements the image service for managing uploaded
// photo-quadrats and their classification lifecycle.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/imageproc"
	"github.com/tidalbase/quadrat/internal/metrics"
	"github.com/tidalbase/quadrat/internal/repository"
	"github.com/tidalbase/quadrat/internal/storage"
	"github.com/tidalbase/quadrat/internal/worker"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ImageService defines the interface for image-related operations.
type ImageService interface {
	// Upload preprocesses and stores an uploaded image, creates its record,
	// appends the initial pending status and dispatches a classification job.
	// Returns domain.EINVALID for undecodable or unsupported files.
	// Returns domain.ENOTFOUND if the collect record doesn't exist.
	// Returns domain.EFORBIDDEN if the collect record is not open.
	Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, collectRecordID, userID uuid.UUID) (*domain.Image, error)

	// Delete removes an image record and every blob it owns: the original,
	// its thumbnail and any cached feature file.
	// Returns domain.ENOTFOUND if the image doesn't exist.
	Delete(ctx context.Context, imageID uuid.UUID) error

	// GetByID retrieves an image by ID.
	// Returns domain.ENOTFOUND if the image doesn't exist.
	GetByID(ctx context.Context, imageID uuid.UUID) (*domain.Image, error)

	// ListByCollectRecord retrieves all images for a collect record.
	// Returns domain.ENOTFOUND if the collect record doesn't exist.
	ListByCollectRecord(ctx context.Context, collectRecordID uuid.UUID) ([]domain.Image, error)

	// StatusHistory returns an image's ordered classification status log,
	// oldest first. The last entry is the current status.
	StatusHistory(ctx context.Context, imageID uuid.UUID) ([]domain.ClassificationStatus, error)

	// Retry re-dispatches classification for an image whose last run
	// finished. Returns domain.ECONFLICT while a run is still in flight.
	Retry(ctx context.Context, imageID, userID uuid.UUID) (*domain.ClassificationStatus, error)

	// RegenerateThumbnailIfStale rebuilds the thumbnail when the stored
	// blob's checksum no longer matches the one the thumbnail was built
	// from. Unchanged content is a no-op.
	RegenerateThumbnailIfStale(ctx context.Context, imageID uuid.UUID) error

	// GetThumbnailURL returns a presigned/public URL for the image thumbnail.
	GetThumbnailURL(ctx context.Context, imageID uuid.UUID) (string, error)

	// GetOriginalURL returns a presigned/public URL for the original image.
	GetOriginalURL(ctx context.Context, imageID uuid.UUID) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

// urlExpiry is how long presigned blob URLs remain valid.
const urlExpiry = 15 * time.Minute

// imageService implements the ImageService interface.
type imageService struct {
	queries *repository.Queries
	storage storage.Storage
	bucket  string
	logger  *slog.Logger
}

// NewImageService creates a new ImageService.
func NewImageService(
	queries *repository.Queries,
	store storage.Storage,
	bucket string,
	logger *slog.Logger,
) ImageService {
	return &imageService{
		queries: queries,
		storage: store,
		bucket:  bucket,
		logger:  logger,
	}
}

// =============================================================================
// Upload
// =============================================================================

// Upload preprocesses and stores an uploaded image.
func (s *imageService) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, collectRecordID, userID uuid.UUID) (*domain.Image, error) {
	const op = "image.upload"

	// Verify the collect record exists and is open for edits
	record, err := s.queries.GetCollectRecordByID(ctx, collectRecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "collect record", collectRecordID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch collect record")
	}
	if domain.CollectRecordStatus(record.Status) != domain.CollectRecordOpen {
		return nil, domain.Forbidden(op, "Cannot upload images to a submitted collect record")
	}

	// Validate file size
	if err := domain.ValidateImageSize(header.Size); err != nil {
		return nil, err
	}

	// Detect content type from file header (read first 512 bytes)
	headerBytes := make([]byte, 512)
	n, err := file.Read(headerBytes)
	if err != nil && err != io.EOF {
		return nil, domain.Internal(err, op, "failed to read file header")
	}
	contentType := http.DetectContentType(headerBytes[:n])

	// Validate content type
	if !domain.IsValidImageContentType(contentType) {
		return nil, domain.Invalid(op, fmt.Sprintf("Unsupported image type: %s. Only JPEG and PNG are supported.", contentType))
	}

	// Reset file pointer to beginning after reading header
	if seeker, ok := file.(io.Seeker); ok {
		if _, err := seeker.Seek(0, 0); err != nil {
			return nil, domain.Internal(err, op, "failed to reset file pointer")
		}
	}

	// Read entire file into memory for preprocessing
	fileData, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read file data")
	}

	// Preprocess: decode, correct orientation, pull EXIF metadata
	processed, err := imageproc.Preprocess(fileData)
	if err != nil {
		return nil, err
	}

	// Derive the obfuscated storage key
	imageID := uuid.New()
	storageKey := storage.ImageKey(collectRecordID,
		imageproc.UniqueName(record.SiteID, imageID, header.Filename))

	// Upload the corrected original to storage
	if err := s.storage.Put(ctx, storageKey, bytes.NewReader(processed.Blob), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     domain.MaxImageSize,
		Overwrite:   false,
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to upload image")
	}

	// Create database record
	dbImage, err := s.queries.CreateImage(ctx, repository.CreateImageParams{
		ID:              imageID,
		CollectRecordID: collectRecordID,
		SiteID:          record.SiteID,
		StorageKey:      storageKey,
		OriginalName:    header.Filename,
		ContentType:     contentType,
		SizeBytes:       int64(len(processed.Blob)),
		Width:           sql.NullInt32{Int32: int32(processed.Width), Valid: true},
		Height:          sql.NullInt32{Int32: int32(processed.Height), Valid: true},
		Data:            exifData(processed.EXIF),
		Latitude:        nullLatitude(processed.Location),
		Longitude:       nullLongitude(processed.Location),
		PhotoTimestamp:  nullTime(processed.Timestamp),
		Bucket:          s.bucket,
	})
	if err != nil {
		// Clean up storage on database error
		_ = s.storage.Delete(ctx, storageKey)
		return nil, domain.Internal(err, op, "failed to create image record")
	}

	// Thumbnail generation is checksum-gated; a fresh record never has one
	if err := s.regenerateThumbnail(ctx, dbImage, processed.Blob, processed.Checksum); err != nil {
		s.logger.Error("failed to generate thumbnail", "image_id", imageID, "error", err)
	}

	// Append the initial pending status and dispatch classification
	if _, err := s.queries.CreateClassificationStatus(ctx, repository.CreateClassificationStatusParams{
		ImageID: imageID,
		Status:  domain.ClassificationPending.String(),
	}); err != nil {
		s.logger.Error("failed to append pending status", "image_id", imageID, "error", err)
	}

	if _, runID, err := worker.EnqueueClassifyImage(ctx, s.queries, imageID, userID); err != nil {
		// The job queue retries dispatch; the image stays pending until then
		s.logger.Error("failed to dispatch classification job", "image_id", imageID, "error", err)
	} else {
		s.logger.Info("dispatched classification job", "image_id", imageID, "run_id", runID)
	}

	metrics.ImagesUploaded.Inc()

	// Re-read so the thumbnail fields are present
	fresh, err := s.queries.GetImageByID(ctx, imageID)
	if err != nil {
		return s.toDomain(dbImage), nil
	}
	return s.toDomain(fresh), nil
}

// =============================================================================
// Delete
// =============================================================================

// Delete removes an image and every blob it owns.
func (s *imageService) Delete(ctx context.Context, imageID uuid.UUID) error {
	const op = "image.delete"

	image, err := s.queries.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "image", imageID.String())
		}
		return domain.Internal(err, op, "failed to fetch image")
	}

	// Delete owned blobs first: original, thumbnail, cached features.
	// Continue even if a deletion fails - the DB record still goes.
	keys := []string{image.StorageKey, storage.FeatureKeyFor(image.StorageKey)}
	if image.ThumbnailKey.Valid {
		keys = append(keys, image.ThumbnailKey.String)
	}
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("failed to delete blob", "key", key, "error", err)
		}
	}

	if err := s.queries.DeleteImageByID(ctx, imageID); err != nil {
		return domain.Internal(err, op, "failed to delete image record")
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// GetByID retrieves an image by ID.
func (s *imageService) GetByID(ctx context.Context, imageID uuid.UUID) (*domain.Image, error) {
	const op = "image.get"

	image, err := s.queries.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "image", imageID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch image")
	}
	return s.toDomain(image), nil
}

// ListByCollectRecord retrieves all images for a collect record.
func (s *imageService) ListByCollectRecord(ctx context.Context, collectRecordID uuid.UUID) ([]domain.Image, error) {
	const op = "image.list"

	if _, err := s.queries.GetCollectRecordByID(ctx, collectRecordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "collect record", collectRecordID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch collect record")
	}

	rows, err := s.queries.ListImagesByCollectRecordID(ctx, collectRecordID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list images")
	}

	images := make([]domain.Image, 0, len(rows))
	for _, row := range rows {
		images = append(images, *s.toDomain(row))
	}
	return images, nil
}

// StatusHistory returns an image's ordered classification status log.
func (s *imageService) StatusHistory(ctx context.Context, imageID uuid.UUID) ([]domain.ClassificationStatus, error) {
	const op = "image.status_history"

	if _, err := s.queries.GetImageByID(ctx, imageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "image", imageID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch image")
	}

	rows, err := s.queries.ListStatusesByImageID(ctx, imageID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list statuses")
	}

	history := make([]domain.ClassificationStatus, 0, len(rows))
	for _, row := range rows {
		history = append(history, toDomainStatus(row))
	}
	return history, nil
}

// Retry re-dispatches classification for an image whose last run finished.
func (s *imageService) Retry(ctx context.Context, imageID, userID uuid.UUID) (*domain.ClassificationStatus, error) {
	const op = "image.retry"

	if _, err := s.queries.GetImageByID(ctx, imageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "image", imageID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch image")
	}

	latest, err := s.queries.GetLatestStatusByImageID(ctx, imageID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "failed to fetch current status")
	}
	if err == nil && !domain.ClassificationState(latest.Status).IsTerminal() {
		return nil, domain.Conflict(op, "A classification run is already in flight for this image")
	}

	status, err := s.queries.CreateClassificationStatus(ctx, repository.CreateClassificationStatusParams{
		ImageID: imageID,
		Status:  domain.ClassificationPending.String(),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to append pending status")
	}

	if _, runID, err := worker.EnqueueClassifyImage(ctx, s.queries, imageID, userID); err != nil {
		return nil, domain.Internal(err, op, "failed to dispatch classification job")
	} else {
		s.logger.Info("re-dispatched classification", "image_id", imageID, "run_id", runID)
	}

	result := toDomainStatus(status)
	return &result, nil
}

// =============================================================================
// Thumbnails
// =============================================================================

// RegenerateThumbnailIfStale rebuilds the thumbnail on content change.
func (s *imageService) RegenerateThumbnailIfStale(ctx context.Context, imageID uuid.UUID) error {
	const op = "image.regenerate_thumbnail"

	image, err := s.queries.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "image", imageID.String())
		}
		return domain.Internal(err, op, "failed to fetch image")
	}

	body, _, err := s.storage.Get(ctx, image.StorageKey)
	if err != nil {
		return domain.Internal(err, op, "failed to fetch image blob")
	}
	blob, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return domain.Internal(err, op, "failed to read image blob")
	}

	sum, err := imageproc.Checksum(bytes.NewReader(blob))
	if err != nil {
		return domain.Internal(err, op, "failed to hash image blob")
	}

	// Unchanged content with an existing thumbnail is a no-op
	if image.ThumbnailKey.Valid && image.Checksum.Valid && image.Checksum.String == sum {
		return nil
	}

	return s.regenerateThumbnail(ctx, image, blob, sum)
}

// regenerateThumbnail builds and stores the thumbnail for the given blob,
// then records the blob's checksum against the image.
func (s *imageService) regenerateThumbnail(ctx context.Context, image repository.Image, blob []byte, checksum string) error {
	const op = "image.regenerate_thumbnail"

	thumb, err := imageproc.GenerateThumbnail(blob)
	if err != nil {
		return err
	}

	thumbnailKey := storage.ThumbnailKeyFor(image.StorageKey)
	if err := s.storage.Put(ctx, thumbnailKey, bytes.NewReader(thumb), storage.PutOptions{
		ContentType: image.ContentType,
		Overwrite:   true,
	}); err != nil {
		return domain.Internal(err, op, "failed to upload thumbnail")
	}

	if err := s.queries.UpdateImageThumbnail(ctx, repository.UpdateImageThumbnailParams{
		ID:           image.ID,
		ThumbnailKey: sql.NullString{String: thumbnailKey, Valid: true},
		Checksum:     sql.NullString{String: checksum, Valid: true},
	}); err != nil {
		return domain.Internal(err, op, "failed to record thumbnail")
	}
	return nil
}

// =============================================================================
// URLs
// =============================================================================

// GetThumbnailURL returns a URL for the image thumbnail.
func (s *imageService) GetThumbnailURL(ctx context.Context, imageID uuid.UUID) (string, error) {
	const op = "image.thumbnail_url"

	image, err := s.queries.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFound(op, "image", imageID.String())
		}
		return "", domain.Internal(err, op, "failed to fetch image")
	}
	if !image.ThumbnailKey.Valid {
		return "", domain.NotFound(op, "thumbnail for image", imageID.String())
	}

	url, err := s.storage.URL(ctx, image.ThumbnailKey.String, urlExpiry)
	if err != nil {
		return "", domain.Internal(err, op, "failed to build thumbnail URL")
	}
	return url, nil
}

// GetOriginalURL returns a URL for the original image.
func (s *imageService) GetOriginalURL(ctx context.Context, imageID uuid.UUID) (string, error) {
	const op = "image.original_url"

	image, err := s.queries.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFound(op, "image", imageID.String())
		}
		return "", domain.Internal(err, op, "failed to fetch image")
	}

	url, err := s.storage.URL(ctx, image.StorageKey, urlExpiry)
	if err != nil {
		return "", domain.Internal(err, op, "failed to build image URL")
	}
	return url, nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

// toDomain converts a repository image to the domain type.
func (s *imageService) toDomain(img repository.Image) *domain.Image {
	result := &domain.Image{
		ID:              img.ID,
		CollectRecordID: img.CollectRecordID,
		SiteID:          img.SiteID,
		StorageKey:      img.StorageKey,
		ThumbnailKey:    img.ThumbnailKey.String,
		OriginalName:    img.OriginalName,
		Checksum:        img.Checksum.String,
		ContentType:     img.ContentType,
		SizeBytes:       img.SizeBytes,
		Width:           img.Width.Int32,
		Height:          img.Height.Int32,
		Bucket:          img.Bucket,
		CreatedAt:       img.CreatedAt,
		UpdatedAt:       img.UpdatedAt,
	}
	if img.Data.Valid {
		var data map[string]any
		if err := json.Unmarshal(img.Data.RawMessage, &data); err == nil {
			result.Data = data
		}
	}
	if img.Latitude.Valid && img.Longitude.Valid {
		result.Location = &domain.GeoPoint{
			Latitude:  img.Latitude.Float64,
			Longitude: img.Longitude.Float64,
		}
	}
	if img.PhotoTimestamp.Valid {
		ts := img.PhotoTimestamp.Time
		result.PhotoTimestamp = &ts
	}
	return result
}

func toDomainStatus(row repository.ClassificationStatus) domain.ClassificationStatus {
	result := domain.ClassificationStatus{
		ID:        row.ID,
		ImageID:   row.ImageID,
		Status:    domain.ClassificationState(row.Status),
		Message:   row.Message.String,
		CreatedAt: row.CreatedAt,
	}
	if row.Data.Valid {
		var data map[string]any
		if err := json.Unmarshal(row.Data.RawMessage, &data); err == nil {
			result.Data = data
		}
	}
	return result
}

func exifData(tags map[string]any) pqtype.NullRawMessage {
	if tags == nil {
		return pqtype.NullRawMessage{}
	}
	raw, err := json.Marshal(map[string]any{"exif": tags})
	if err != nil {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

func nullLatitude(p *domain.GeoPoint) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Latitude, Valid: true}
}

func nullLongitude(p *domain.GeoPoint) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Longitude, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
