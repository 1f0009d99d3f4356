// Package handler contains HTTP handlers for the Quadrat API.
//
// This file implements image upload, retrieval and classification status
// handlers for photo-quadrats.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/service"
)

// =============================================================================
// Response Types
// =============================================================================

// ImageResponse is the JSON representation of an image.
type ImageResponse struct {
	ID              uuid.UUID        `json:"id"`
	CollectRecordID uuid.UUID        `json:"collect_record_id"`
	OriginalName    string           `json:"original_name"`
	ContentType     string           `json:"content_type"`
	SizeBytes       int64            `json:"size_bytes"`
	Width           int32            `json:"width"`
	Height          int32            `json:"height"`
	Location        *domain.GeoPoint `json:"location,omitempty"`
	PhotoTimestamp  *time.Time       `json:"photo_timestamp,omitempty"`
	ThumbnailURL    string           `json:"thumbnail_url,omitempty"`
	OriginalURL     string           `json:"original_url,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// StatusResponse is the JSON representation of one classification status entry.
type StatusResponse struct {
	ID        uuid.UUID      `json:"id"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// StatusHistoryResponse wraps an image's ordered status history.
type StatusHistoryResponse struct {
	ImageID uuid.UUID        `json:"image_id"`
	Current StatusResponse   `json:"current"`
	History []StatusResponse `json:"history"`
}

// UploadResponse is returned after a successful image upload.
type UploadResponse struct {
	Image  ImageResponse  `json:"image"`
	Status StatusResponse `json:"status"`
}

func toImageResponse(img *domain.Image) ImageResponse {
	return ImageResponse{
		ID:              img.ID,
		CollectRecordID: img.CollectRecordID,
		OriginalName:    img.OriginalName,
		ContentType:     img.ContentType,
		SizeBytes:       img.SizeBytes,
		Width:           img.Width,
		Height:          img.Height,
		Location:        img.Location,
		PhotoTimestamp:  img.PhotoTimestamp,
		CreatedAt:       img.CreatedAt,
	}
}

func toStatusResponse(s *domain.ClassificationStatus) StatusResponse {
	return StatusResponse{
		ID:        s.ID,
		Status:    string(s.Status),
		Message:   s.Message,
		Data:      s.Data,
		CreatedAt: s.CreatedAt,
	}
}

// =============================================================================
// Handler Configuration
// =============================================================================

// ImageHandler handles image-related HTTP requests.
type ImageHandler struct {
	imageService service.ImageService
	logger       *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(imageService service.ImageService, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
		logger:       logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers all image routes with the provided mux.
//
// Routes:
// - POST   /api/images                          -> Upload
// - GET    /api/images/{id}                     -> Get
// - DELETE /api/images/{id}                     -> Delete
// - GET    /api/images/{id}/status              -> StatusHistory
// - POST   /api/images/{id}/retry               -> Retry
// - GET    /api/collect-records/{id}/images     -> ListByCollectRecord
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/images", h.Upload)
	mux.HandleFunc("GET /api/images/{id}", h.Get)
	mux.HandleFunc("DELETE /api/images/{id}", h.Delete)
	mux.HandleFunc("GET /api/images/{id}/status", h.StatusHistory)
	mux.HandleFunc("POST /api/images/{id}/retry", h.Retry)
	mux.HandleFunc("GET /api/collect-records/{id}/images", h.ListByCollectRecord)
}

// =============================================================================
// POST /api/images - Upload Image
// =============================================================================

// Upload handles a single photo-quadrat upload.
//
// Expects a multipart form with a "file" part and a "collect_record_id"
// field. An undecodable or oversized file is rejected synchronously; a
// valid one is persisted with a pending status before the response is
// written, so the returned id can immediately be polled for status.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (32MB memory limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.logger.Info("failed to parse multipart form", "error", err)
		InvalidResponse(w, r, h.logger, "Failed to parse multipart form")
		return
	}

	collectRecordID, err := uuid.Parse(r.FormValue("collect_record_id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid collect_record_id")
		return
	}

	// user_id is optional; uploads from unattended ingest pipelines omit it
	var userID uuid.UUID
	if v := r.FormValue("user_id"); v != "" {
		userID, err = uuid.Parse(v)
		if err != nil {
			InvalidResponse(w, r, h.logger, "Invalid user_id")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		InvalidResponse(w, r, h.logger, "Missing file upload")
		return
	}
	defer func() { _ = file.Close() }()

	img, err := h.imageService.Upload(r.Context(), file, header, collectRecordID, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	history, err := h.imageService.StatusHistory(r.Context(), img.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := UploadResponse{Image: toImageResponse(img)}
	if len(history) > 0 {
		resp.Status = toStatusResponse(&history[len(history)-1])
	}

	h.logger.Info("image uploaded",
		"image_id", img.ID,
		"collect_record_id", collectRecordID,
		"size_bytes", img.SizeBytes,
	)

	respondJSON(w, h.logger, http.StatusCreated, resp)
}

// =============================================================================
// GET /api/images/{id} - Get Image
// =============================================================================

// Get returns a single image with short-lived access URLs for its blobs.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	imageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid image ID")
		return
	}

	img, err := h.imageService.GetByID(r.Context(), imageID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := toImageResponse(img)

	if url, err := h.imageService.GetOriginalURL(r.Context(), imageID); err == nil {
		resp.OriginalURL = url
	} else {
		h.logger.Warn("failed to generate original URL", "error", err, "image_id", imageID)
	}
	if !img.HasThumbnail() {
		// A stale or missing thumbnail is rebuilt lazily on first access
		if err := h.imageService.RegenerateThumbnailIfStale(r.Context(), imageID); err != nil {
			h.logger.Warn("failed to regenerate thumbnail", "error", err, "image_id", imageID)
		}
	}
	if url, err := h.imageService.GetThumbnailURL(r.Context(), imageID); err == nil {
		resp.ThumbnailURL = url
	} else {
		h.logger.Warn("failed to generate thumbnail URL", "error", err, "image_id", imageID)
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}

// =============================================================================
// DELETE /api/images/{id} - Delete Image
// =============================================================================

// Delete removes an image and all of its stored blobs.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	imageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid image ID")
		return
	}

	if err := h.imageService.Delete(r.Context(), imageID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("image deleted", "image_id", imageID)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GET /api/images/{id}/status - Classification Status History
// =============================================================================

// StatusHistory returns the image's full append-only status history in
// chronological order, plus the current status for convenience.
func (h *ImageHandler) StatusHistory(w http.ResponseWriter, r *http.Request) {
	imageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid image ID")
		return
	}

	history, err := h.imageService.StatusHistory(r.Context(), imageID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := StatusHistoryResponse{
		ImageID: imageID,
		History: make([]StatusResponse, 0, len(history)),
	}
	for i := range history {
		resp.History = append(resp.History, toStatusResponse(&history[i]))
	}
	if len(resp.History) > 0 {
		resp.Current = resp.History[len(resp.History)-1]
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}

// =============================================================================
// POST /api/images/{id}/retry - Retry Classification
// =============================================================================

// retryRequest is the optional JSON body for Retry.
type retryRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// Retry re-dispatches classification for an image whose latest status is
// terminal. Returns 409 while a run is still pending or running.
func (h *ImageHandler) Retry(w http.ResponseWriter, r *http.Request) {
	imageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid image ID")
		return
	}

	var req retryRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			InvalidResponse(w, r, h.logger, "Invalid request body")
			return
		}
	}

	status, err := h.imageService.Retry(r.Context(), imageID, req.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("classification retry dispatched", "image_id", imageID)
	respondJSON(w, h.logger, http.StatusAccepted, toStatusResponse(status))
}

// =============================================================================
// GET /api/collect-records/{id}/images - List Images
// =============================================================================

// ListByCollectRecord returns all images attached to a collect record.
func (h *ImageHandler) ListByCollectRecord(w http.ResponseWriter, r *http.Request) {
	collectRecordID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid collect record ID")
		return
	}

	images, err := h.imageService.ListByCollectRecord(r.Context(), collectRecordID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]ImageResponse, 0, len(images))
	for i := range images {
		resp = append(resp, toImageResponse(&images[i]))
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}
