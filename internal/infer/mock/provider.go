// Package mock provides a canned inference backend for testing and
// local development, where no real model service is running.
package mock

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidalbase/quadrat/internal/infer"
)

// Provider is a mock inference service for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	ExtractFeaturesResponse []byte
	ExtractFeaturesError    error
	ClassifyResponse        []infer.PointScores
	ClassifyError           error

	// Call tracking for testing
	ExtractFeaturesCalls int
	ClassifyCalls        int

	// Captured inputs from the most recent calls
	LastExtractParams  *infer.ExtractParams
	LastClassifyParams *infer.ClassifyParams
}

// New creates a new mock inference provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// ExtractFeatures returns a deterministic feature blob that encodes the
// submitted point count, so Classify can produce a matching result set.
func (p *Provider) ExtractFeatures(ctx context.Context, params infer.ExtractParams) ([]byte, error) {
	p.ExtractFeaturesCalls++
	p.LastExtractParams = &params

	if p.ExtractFeaturesError != nil {
		return nil, p.ExtractFeaturesError
	}
	if p.ExtractFeaturesResponse != nil {
		return p.ExtractFeaturesResponse, nil
	}

	blob, _ := json.Marshal(map[string]int{"num_points": len(params.Points)})
	return blob, nil
}

// Classify returns one canned score vector per point. The default
// response gives every point the same three candidate labels, with the
// top score above the auto-confirm threshold.
func (p *Provider) Classify(ctx context.Context, params infer.ClassifyParams) ([]infer.PointScores, error) {
	p.ClassifyCalls++
	p.LastClassifyParams = &params

	if p.ClassifyError != nil {
		return nil, p.ClassifyError
	}
	if p.ClassifyResponse != nil {
		return p.ClassifyResponse, nil
	}

	n := params.NumPoints
	if n == 0 {
		var blob struct {
			NumPoints int `json:"num_points"`
		}
		if err := json.Unmarshal(params.Features, &blob); err == nil {
			n = blob.NumPoints
		}
	}

	results := make([]infer.PointScores, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, infer.PointScores{
			LabelIDs: []int64{1, 2, 3},
			Scores:   []float64{0.85, 0.10, 0.05},
		})
	}
	return results, nil
}
