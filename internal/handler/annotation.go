// Package handler contains HTTP handlers for the Quadrat API.
//
// This file implements annotation review handlers: creating human
// annotations on sampled points and confirming or unconfirming suggestions.
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
// Request / Response Types
// =============================================================================

// CreateAnnotationRequest is the JSON body for creating a human annotation.
type CreateAnnotationRequest struct {
	BenthicAttributeID uuid.UUID  `json:"benthic_attribute_id"`
	GrowthFormID       *uuid.UUID `json:"growth_form_id,omitempty"`
	Score              int32      `json:"score"`
	IsConfirmed        bool       `json:"is_confirmed"`
}

// AnnotationResponse is the JSON representation of an annotation.
type AnnotationResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PointID            uuid.UUID  `json:"point_id"`
	ClassifierID       *uuid.UUID `json:"classifier_id,omitempty"`
	BenthicAttributeID uuid.UUID  `json:"benthic_attribute_id"`
	GrowthFormID       *uuid.UUID `json:"growth_form_id,omitempty"`
	Score              int32      `json:"score"`
	IsConfirmed        bool       `json:"is_confirmed"`
	IsMachineCreated   bool       `json:"is_machine_created"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toAnnotationResponse(a *domain.Annotation) AnnotationResponse {
	resp := AnnotationResponse{
		ID:                 a.ID,
		PointID:            a.PointID,
		BenthicAttributeID: a.BenthicAttributeID,
		Score:              a.Score,
		IsConfirmed:        a.IsConfirmed,
		IsMachineCreated:   a.IsMachineCreated,
		CreatedAt:          a.CreatedAt,
	}
	if a.ClassifierID.Valid {
		id := a.ClassifierID.UUID
		resp.ClassifierID = &id
	}
	if a.GrowthFormID.Valid {
		id := a.GrowthFormID.UUID
		resp.GrowthFormID = &id
	}
	return resp
}

// =============================================================================
// Handler Configuration
// =============================================================================

// AnnotationHandler handles annotation-related HTTP requests.
type AnnotationHandler struct {
	annotationService service.AnnotationService
	logger            *slog.Logger
}

// NewAnnotationHandler creates a new AnnotationHandler.
func NewAnnotationHandler(annotationService service.AnnotationService, logger *slog.Logger) *AnnotationHandler {
	return &AnnotationHandler{
		annotationService: annotationService,
		logger:            logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers all annotation routes with the provided mux.
//
// Routes:
// - POST   /api/points/{id}/annotations      -> Create
// - GET    /api/points/{id}/annotations      -> ListByPoint
// - POST   /api/annotations/{id}/confirm     -> Confirm
// - DELETE /api/annotations/{id}/confirm     -> Unconfirm
func (h *AnnotationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/points/{id}/annotations", h.Create)
	mux.HandleFunc("GET /api/points/{id}/annotations", h.ListByPoint)
	mux.HandleFunc("POST /api/annotations/{id}/confirm", h.Confirm)
	mux.HandleFunc("DELETE /api/annotations/{id}/confirm", h.Unconfirm)
}

// =============================================================================
// POST /api/points/{id}/annotations - Create Annotation
// =============================================================================

// Create adds a human annotation to a point. A point can carry at most one
// human annotation, so a second create returns 409.
func (h *AnnotationHandler) Create(w http.ResponseWriter, r *http.Request) {
	pointID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid point ID")
		return
	}

	var req CreateAnnotationRequest
	if err := decodeJSON(r, &req); err != nil {
		InvalidResponse(w, r, h.logger, "Invalid request body")
		return
	}
	if req.BenthicAttributeID == uuid.Nil {
		InvalidResponse(w, r, h.logger, "benthic_attribute_id is required")
		return
	}

	params := service.CreateAnnotationParams{
		PointID:            pointID,
		BenthicAttributeID: req.BenthicAttributeID,
		Score:              req.Score,
		IsConfirmed:        req.IsConfirmed,
	}
	if req.GrowthFormID != nil {
		params.GrowthFormID = uuid.NullUUID{UUID: *req.GrowthFormID, Valid: true}
	}

	annotation, err := h.annotationService.Create(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("annotation created",
		"annotation_id", annotation.ID,
		"point_id", pointID,
		"confirmed", annotation.IsConfirmed,
	)

	respondJSON(w, h.logger, http.StatusCreated, toAnnotationResponse(annotation))
}

// =============================================================================
// GET /api/points/{id}/annotations - List Annotations
// =============================================================================

// ListByPoint returns a point's annotations, highest score first.
func (h *AnnotationHandler) ListByPoint(w http.ResponseWriter, r *http.Request) {
	pointID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid point ID")
		return
	}

	annotations, err := h.annotationService.ListByPoint(r.Context(), pointID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]AnnotationResponse, 0, len(annotations))
	for i := range annotations {
		resp = append(resp, toAnnotationResponse(&annotations[i]))
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}

// =============================================================================
// POST /api/annotations/{id}/confirm - Confirm Annotation
// =============================================================================

// Confirm marks an annotation confirmed. Only one annotation per point may
// be confirmed, so confirming a second one returns 409.
func (h *AnnotationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	annotationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid annotation ID")
		return
	}

	if err := h.annotationService.Confirm(r.Context(), annotationID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("annotation confirmed", "annotation_id", annotationID)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DELETE /api/annotations/{id}/confirm - Unconfirm Annotation
// =============================================================================

// Unconfirm clears an annotation's confirmed flag.
func (h *AnnotationHandler) Unconfirm(w http.ResponseWriter, r *http.Request) {
	annotationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		InvalidResponse(w, r, h.logger, "Invalid annotation ID")
		return
	}

	if err := h.annotationService.Unconfirm(r.Context(), annotationID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("annotation unconfirmed", "annotation_id", annotationID)
	w.WriteHeader(http.StatusNoContent)
}
