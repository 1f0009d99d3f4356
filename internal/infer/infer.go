package infer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidalbase/quadrat/internal/sampler"
)

// Service defines the interface to the feature-extraction and
// classification backend. Implementations are expected to be stateless;
// all model files travel with the request.
type Service interface {
	// ExtractFeatures computes one feature vector per sampled point and
	// returns them as an opaque blob in the backend's own encoding.
	ExtractFeatures(ctx context.Context, params ExtractParams) ([]byte, error)

	// Classify scores a feature blob against a serialized classifier.
	// The result has one entry per input point, in submission order.
	Classify(ctx context.Context, params ClassifyParams) ([]PointScores, error)
}

// ExtractParams contains parameters for feature extraction
type ExtractParams struct {
	ImageData   []byte               // Orientation-corrected image bytes
	Points      []sampler.Coordinate // Pixel positions to sample
	WeightsPath string               // Local path to the extraction weights file
	ImageID     uuid.UUID            // Image ID for tracking
}

// ClassifyParams contains parameters for classification
type ClassifyParams struct {
	Features       []byte    // Feature blob from ExtractFeatures
	ClassifierPath string    // Local path to the serialized classifier
	NumPoints      int       // Expected number of scored points
	ImageID        uuid.UUID // Image ID for tracking
}

// PointScores holds the scored labels for one point. LabelIDs and Scores
// are parallel slices ordered however the backend emitted them; callers
// rank by score themselves.
type PointScores struct {
	LabelIDs []int64   `json:"label_ids"`
	Scores   []float64 `json:"scores"`
}

// ServiceConfig contains common configuration for inference providers
type ServiceConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for inference operations
var (
	// EInferInvalidInput indicates the backend rejected the request payload
	EInferInvalidInput = errors.New("inference input rejected")

	// EInferTimeout indicates the request timed out
	EInferTimeout = errors.New("inference request timed out")

	// EInferUnavailable indicates the backend is temporarily unavailable
	EInferUnavailable = errors.New("inference service temporarily unavailable")

	// EInferBadResponse indicates the backend returned an unusable result
	EInferBadResponse = errors.New("inference service returned a malformed response")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EInferTimeout) || errors.Is(err, EInferUnavailable)
}

// WrapError wraps an error with context about the inference operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("infer %s: %w", operation, err)
}
