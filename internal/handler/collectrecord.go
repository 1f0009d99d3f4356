// Package handler contains HTTP handlers for the Quadrat API.
//
// This file implements collect record lifecycle handlers: creation,
// classification mode, submission and reopening.
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/service"
)

// =============================================================================
// Request / Response Types
// =============================================================================

// CreateCollectRecordRequest is the JSON body for creating a collect record.
type CreateCollectRecordRequest struct {
	SiteID uuid.UUID `json:"site_id"`
	Name   string    `json:"name"`
}

// CollectRecordResponse is the JSON representation of a collect record.
type CollectRecordResponse struct {
	ID                  uuid.UUID  `json:"id"`
	SiteID              uuid.UUID  `json:"site_id"`
	Name                string     `json:"name"`
	Status              string     `json:"status"`
	ImageClassification bool       `json:"image_classification"`
	ClassifierID        *uuid.UUID `json:"classifier_id,omitempty"`
	PointsPerQuadrat    int32      `json:"points_per_quadrat,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toCollectRecordResponse(record *domain.CollectRecord) CollectRecordResponse {
	resp := CollectRecordResponse{
		ID:                  record.ID,
		SiteID:              record.SiteID,
		Name:                record.Name,
		Status:              string(record.Status),
		ImageClassification: record.ImageClassification,
		PointsPerQuadrat:    record.PointsPerQuadrat,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
	if record.ClassifierID.Valid {
		id := record.ClassifierID.UUID
		resp.ClassifierID = &id
	}
	return resp
}

// =============================================================================
// Handler Configuration
// =============================================================================

// CollectRecordHandler handles collect record HTTP requests.
type CollectRecordHandler struct {
	recordService service.CollectRecordService
	logger        *slog.Logger
}

// NewCollectRecordHandler creates a new CollectRecordHandler.
func NewCollectRecordHandler(recordService service.CollectRecordService, logger *slog.Logger) *CollectRecordHandler {
	return &CollectRecordHandler{
		recordService: recordService,
		logger:        logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers all collect record routes with the provided mux.
//
// Routes:
// - POST /api/collect-records                       -> Create
// - GET  /api/collect-records/{id}                  -> Get
// - POST /api/collect-records/{id}/classification   -> EnableClassification
// - POST /api/collect-records/{id}/submit           -> Submit
// - POST /api/collect-records/{id}/reopen           -> Reopen
func (h *CollectRecordHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/collect-records", h.Create)
	mux.HandleFunc("GET /api/collect-records/{id}", h.Get)
	mux.HandleFunc("POST /api/collect-records/{id}/classification", h.EnableClassification)
	mux.HandleFunc("POST /api/collect-records/{id}/submit", h.Submit)
	mux.HandleFunc("POST /api/collect-records/{id}/reopen", h.Reopen)
}

// =============================================================================
// POST /api/collect-records - Create Collect Record
// =============================================================================

// Create opens a new collect record for a site.
func (h *CollectRecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		InvalidResponse(w, r, h.logger, "Invalid request body")
		return
	}
	if req.SiteID == uuid.Nil {
		InvalidResponse(w, r, h.logger, "site_id is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		InvalidResponse(w, r, h.logger, "name is required")
		return
	}

	record, err := h.recordService.Create(r.Context(), req.SiteID, strings.TrimSpace(req.Name))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("collect record created", "collect_record_id", record.ID, "site_id", req.SiteID)
	respondJSON(w, h.logger, http.StatusCreated, toCollectRecordResponse(record))
}

// =============================================================================
// GET /api/collect-records/{id} - Get Collect Record
// =============================================================================

// Get returns a single collect record.
func (h *CollectRecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid collect record ID")
		return
	}

	record, err := h.recordService.GetByID(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, toCollectRecordResponse(record))
}

// =============================================================================
// POST /api/collect-records/{id}/classification - Enable Classification
// =============================================================================

// EnableClassification switches the record into image classification mode.
// The current latest classifier is pinned onto the record; repeated calls
// keep the original pin.
func (h *CollectRecordHandler) EnableClassification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid collect record ID")
		return
	}

	record, err := h.recordService.EnableClassification(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("classification enabled",
		"collect_record_id", record.ID,
		"classifier_id", record.ClassifierID.UUID,
		"points_per_quadrat", record.PointsPerQuadrat,
	)

	respondJSON(w, h.logger, http.StatusOK, toCollectRecordResponse(record))
}

// =============================================================================
// POST /api/collect-records/{id}/submit - Submit Collect Record
// =============================================================================

// Submit finalizes the record and materializes its annotations export.
func (h *CollectRecordHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid collect record ID")
		return
	}

	record, err := h.recordService.Submit(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("collect record submitted", "collect_record_id", record.ID)
	respondJSON(w, h.logger, http.StatusOK, toCollectRecordResponse(record))
}

// =============================================================================
// POST /api/collect-records/{id}/reopen - Reopen Collect Record
// =============================================================================

// Reopen returns a submitted record to open and removes its export.
func (h *CollectRecordHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid collect record ID")
		return
	}

	record, err := h.recordService.Reopen(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("collect record reopened", "collect_record_id", record.ID)
	respondJSON(w, h.logger, http.StatusOK, toCollectRecordResponse(record))
}
