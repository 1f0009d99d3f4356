package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sqlc-dev/pqtype"

	"github.com/tidalbase/quadrat/internal/artifacts"
	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/infer"
	"github.com/tidalbase/quadrat/internal/metrics"
	"github.com/tidalbase/quadrat/internal/repository"
	"github.com/tidalbase/quadrat/internal/sampler"
	"github.com/tidalbase/quadrat/internal/storage"
	"github.com/tidalbase/quadrat/internal/worker"
)

// Label reference data changes only on classifier deployments, so one
// cached copy serves many jobs.
const (
	labelCacheKey = "labels"
	labelCacheTTL = 10 * time.Minute
)

// errStaleTrigger marks a job whose image no longer exists. Nothing to
// classify and nothing to record against.
var errStaleTrigger = errors.New("image deleted before classification ran")

// ClassifyImageHandler processes jobs that classify one quadrat image.
// It samples points, runs the external inference service, and records
// the machine annotations together with the run's status trail.
type ClassifyImageHandler struct {
	db         *sql.DB
	queries    *repository.Queries
	inferSvc   infer.Service
	storage    storage.Storage
	artifacts  *artifacts.Cache
	labelCache *gocache.Cache
	logger     *slog.Logger
}

// NewClassifyImageHandler creates a new handler for classification jobs.
func NewClassifyImageHandler(
	db *sql.DB,
	queries *repository.Queries,
	inferSvc infer.Service,
	store storage.Storage,
	artifactCache *artifacts.Cache,
	logger *slog.Logger,
) *ClassifyImageHandler {
	return &ClassifyImageHandler{
		db:         db,
		queries:    queries,
		inferSvc:   inferSvc,
		storage:    store,
		artifacts:  artifactCache,
		labelCache: gocache.New(labelCacheTTL, 2*labelCacheTTL),
		logger:     logger,
	}
}

// Type returns the job type identifier.
func (h *ClassifyImageHandler) Type() string {
	return worker.JobTypeClassifyImage
}

// Handle executes one classification run.
//
// Failures inside the run are contained: the only externally visible
// effect is a failed status entry on the image. The job itself reports
// success so the queue does not retry a run that already logged its
// outcome; reviewers retry explicitly, with a fresh run id.
func (h *ClassifyImageHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.ClassifyImagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	if p.ImageID == uuid.Nil || p.RunID == uuid.Nil {
		return worker.NewPermanentError(fmt.Errorf("payload missing image or run id"))
	}

	logger := h.logger.With("image_id", p.ImageID, "run_id", p.RunID)
	logger.Info("Classifying image")

	// A completed entry for this run id means a previous delivery of the
	// same job already wrote its results. Errors here happen before any
	// status is appended, so returning them hands the job back to the
	// queue with the image's status trail untouched.
	count, err := h.queries.CountCompletedStatusByRunID(ctx, repository.CountCompletedStatusByRunIDParams{
		ImageID: p.ImageID,
		RunID:   p.RunID.String(),
	})
	if err != nil {
		return fmt.Errorf("check run id: %w", err)
	}
	if count > 0 {
		logger.Info("Run already completed, skipping")
		return nil
	}

	if err := h.run(ctx, p, logger); err != nil {
		if errors.Is(err, errStaleTrigger) {
			logger.Info("Skipping classification", "reason", err)
			return nil
		}

		logger.Error("Classification failed", "error", err)
		metrics.ClassificationsTotal.WithLabelValues(domain.ClassificationFailed.String()).Inc()
		h.appendStatus(ctx, p, domain.ClassificationFailed, err.Error())
		return nil
	}

	metrics.ClassificationsTotal.WithLabelValues(domain.ClassificationCompleted.String()).Inc()
	logger.Info("Classification completed")
	return nil
}

func (h *ClassifyImageHandler) run(ctx context.Context, p worker.ClassifyImagePayload, logger *slog.Logger) error {
	h.appendStatus(ctx, p, domain.ClassificationRunning, "")

	image, err := h.queries.GetImageByID(ctx, p.ImageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errStaleTrigger
		}
		return fmt.Errorf("fetch image: %w", err)
	}
	if !image.Width.Valid || !image.Height.Valid {
		return fmt.Errorf("image %s has no recorded dimensions", image.ID)
	}

	record, err := h.queries.GetCollectRecordByID(ctx, image.CollectRecordID)
	if err != nil {
		return fmt.Errorf("fetch collect record: %w", err)
	}

	classifier, err := h.resolveClassifier(ctx, record)
	if err != nil {
		return err
	}

	files, err := h.artifacts.GetArtifacts(ctx, classifier.Version)
	if err != nil {
		return fmt.Errorf("fetch artifacts for %s: %w", classifier.Version, err)
	}

	numPoints := int(record.PointsPerQuadrat)
	if numPoints <= 0 {
		numPoints = int(classifier.NumPoints)
	}
	if numPoints <= 0 {
		numPoints = domain.PointsPerQuadrat
	}

	points, err := sampler.GeneratePoints(
		int(image.Width.Int32), int(image.Height.Int32), numPoints, sampler.Margin{})
	if err != nil {
		return fmt.Errorf("sample points: %w", err)
	}

	imageData, err := h.readBlob(ctx, image.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch image blob: %w", err)
	}

	features, err := h.inferSvc.ExtractFeatures(ctx, infer.ExtractParams{
		ImageData:   imageData,
		Points:      points,
		WeightsPath: files.WeightsPath,
		ImageID:     image.ID,
	})
	if err != nil {
		return fmt.Errorf("extract features: %w", err)
	}

	// Cache the feature blob next to the image so a retry for the same
	// content can be served without re-extraction, and deletion of the
	// image sweeps it up.
	featureKey := storage.FeatureKeyFor(image.StorageKey)
	if err := h.storage.Put(ctx, featureKey, bytes.NewReader(features), storage.PutOptions{
		ContentType: "application/octet-stream",
		Overwrite:   true,
	}); err != nil {
		logger.Warn("Failed to cache feature blob", "key", featureKey, "error", err)
	}

	results, err := h.inferSvc.Classify(ctx, infer.ClassifyParams{
		Features:       features,
		ClassifierPath: files.ClassifierPath,
		NumPoints:      len(points),
		ImageID:        image.ID,
	})
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	labels, err := h.labelLookup(ctx)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}

	if err := h.writeResults(ctx, p, image, classifier, points, results, labels); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// resolveClassifier honors a collect record's pinned classifier and falls
// back to the latest published one.
func (h *ClassifyImageHandler) resolveClassifier(ctx context.Context, record repository.CollectRecord) (repository.Classifier, error) {
	if record.ClassifierID.Valid {
		classifier, err := h.queries.GetClassifierByID(ctx, record.ClassifierID.UUID)
		if err != nil {
			return repository.Classifier{}, fmt.Errorf("fetch pinned classifier: %w", err)
		}
		return classifier, nil
	}

	classifier, err := h.queries.GetLatestClassifier(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Classifier{}, fmt.Errorf("no classifier published")
		}
		return repository.Classifier{}, fmt.Errorf("fetch latest classifier: %w", err)
	}
	return classifier, nil
}

func (h *ClassifyImageHandler) readBlob(ctx context.Context, key string) ([]byte, error) {
	body, _, err := h.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// labelLookup returns the label-id mapping, served from an in-process
// cache between classifier deployments.
func (h *ClassifyImageHandler) labelLookup(ctx context.Context) (map[int64]repository.Label, error) {
	if cached, ok := h.labelCache.Get(labelCacheKey); ok {
		return cached.(map[int64]repository.Label), nil
	}

	rows, err := h.queries.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	labels := make(map[int64]repository.Label, len(rows))
	for _, l := range rows {
		labels[int64(l.LabelID)] = l
	}
	h.labelCache.Set(labelCacheKey, labels, gocache.DefaultExpiration)
	return labels, nil
}

// scoredLabel is one ranked machine suggestion for a point.
type scoredLabel struct {
	Label       repository.Label
	Probability float64
}

// rankLabels orders a point's candidates by score descending and keeps
// the top max whose label maps to a usable benthic attribute.
func rankLabels(ps infer.PointScores, labels map[int64]repository.Label, max int) []scoredLabel {
	order := make([]int, len(ps.Scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ps.Scores[order[a]] > ps.Scores[order[b]]
	})

	ranked := make([]scoredLabel, 0, max)
	for _, idx := range order {
		label, ok := labels[ps.LabelIDs[idx]]
		if !ok || !label.BenthicAttributeID.Valid {
			continue
		}
		ranked = append(ranked, scoredLabel{Label: label, Probability: ps.Scores[idx]})
		if len(ranked) == max {
			break
		}
	}
	return ranked
}

// writeResults persists the run's points and annotations and appends the
// completed status, all in one transaction.
func (h *ClassifyImageHandler) writeResults(
	ctx context.Context,
	p worker.ClassifyImagePayload,
	image repository.Image,
	classifier repository.Classifier,
	points []sampler.Coordinate,
	results []infer.PointScores,
	labels map[int64]repository.Label,
) error {
	if len(results) != len(points) {
		return fmt.Errorf("got %d results for %d points", len(results), len(points))
	}

	pointParams := repository.BatchCreatePointsParams{
		ImageID:   image.ID,
		IDs:       make([]uuid.UUID, 0, len(points)),
		Rows:      make([]int32, 0, len(points)),
		Columns:   make([]int32, 0, len(points)),
		CreatedBy: uuid.NullUUID{UUID: p.UserID, Valid: p.UserID != uuid.Nil},
	}
	annParams := repository.BatchCreateAnnotationsParams{
		ClassifierID: classifier.ID,
	}

	for i, pt := range points {
		pointID := uuid.New()
		pointParams.IDs = append(pointParams.IDs, pointID)
		pointParams.Rows = append(pointParams.Rows, int32(pt.Row))
		pointParams.Columns = append(pointParams.Columns, int32(pt.Column))

		for rank, candidate := range rankLabels(results[i], labels, domain.MaxMachineSuggestions) {
			annParams.IDs = append(annParams.IDs, uuid.New())
			annParams.PointIDs = append(annParams.PointIDs, pointID)
			annParams.BenthicAttributeIDs = append(annParams.BenthicAttributeIDs, candidate.Label.BenthicAttributeID.UUID)
			annParams.GrowthFormIDs = append(annParams.GrowthFormIDs, candidate.Label.GrowthFormID)
			annParams.Scores = append(annParams.Scores, int32(math.Round(candidate.Probability*100)))
			annParams.Confirmed = append(annParams.Confirmed,
				rank == 0 && candidate.Probability >= domain.AutoConfirmThreshold)
		}
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := h.queries.WithTx(tx)

	if err := qtx.BatchCreatePoints(ctx, pointParams); err != nil {
		return fmt.Errorf("insert points: %w", err)
	}
	if err := qtx.BatchCreateAnnotations(ctx, annParams); err != nil {
		return fmt.Errorf("insert annotations: %w", err)
	}
	if _, err := qtx.CreateClassificationStatus(ctx, repository.CreateClassificationStatusParams{
		ImageID: image.ID,
		Status:  domain.ClassificationCompleted.String(),
		Data:    runData(p.RunID),
	}); err != nil {
		return fmt.Errorf("append completed status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}

	metrics.PointsCreated.Add(float64(len(pointParams.IDs)))
	metrics.AnnotationsCreated.WithLabelValues("machine").Add(float64(len(annParams.IDs)))
	return nil
}

// appendStatus writes one status log entry. Status persistence failures
// are logged rather than propagated; there is nowhere better to record
// them than the log at that point.
func (h *ClassifyImageHandler) appendStatus(ctx context.Context, p worker.ClassifyImagePayload, state domain.ClassificationState, message string) {
	_, err := h.queries.CreateClassificationStatus(ctx, repository.CreateClassificationStatusParams{
		ImageID: p.ImageID,
		Status:  state.String(),
		Message: sql.NullString{String: message, Valid: message != ""},
		Data:    runData(p.RunID),
	})
	if err != nil {
		h.logger.Error("Failed to append classification status",
			"image_id", p.ImageID, "status", state, "error", err)
	}
}

func runData(runID uuid.UUID) pqtype.NullRawMessage {
	raw, _ := json.Marshal(map[string]string{domain.StatusDataRunID: runID.String()})
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
