// Package httpinfer talks to the inference backend over its HTTP API.
// Model files are read from the local artifact cache and shipped inline
// with each request, so the backend itself stays stateless.
package httpinfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tidalbase/quadrat/internal/infer"
	"github.com/tidalbase/quadrat/internal/metrics"
)

// Config contains configuration for the HTTP inference provider
type Config struct {
	BaseURL       string
	ServiceConfig infer.ServiceConfig
}

// Provider implements the infer.Service interface against an HTTP backend
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new HTTP inference provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("inference base URL is required")
	}

	// Set defaults
	if config.ServiceConfig.MaxRetries == 0 {
		config.ServiceConfig.MaxRetries = 3
	}
	if config.ServiceConfig.RetryBaseDelay == 0 {
		config.ServiceConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ServiceConfig.RequestTimeout == 0 {
		config.ServiceConfig.RequestTimeout = 120 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ServiceConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

type extractRequest struct {
	Image   string   `json:"image"`
	Points  [][2]int `json:"points"`
	Weights string   `json:"weights"`
}

type extractResponse struct {
	Features string `json:"features"`
}

type classifyRequest struct {
	Features   string `json:"features"`
	Classifier string `json:"classifier"`
}

type classifyResponse struct {
	Results []infer.PointScores `json:"results"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

// ExtractFeatures submits the image and its sample points together with
// the extraction weights and returns the backend's feature blob.
func (p *Provider) ExtractFeatures(ctx context.Context, params infer.ExtractParams) ([]byte, error) {
	if len(params.ImageData) == 0 {
		return nil, infer.WrapError("extract features", infer.EInferInvalidInput)
	}
	if len(params.Points) == 0 {
		return nil, infer.WrapError("extract features", infer.EInferInvalidInput)
	}

	weights, err := os.ReadFile(params.WeightsPath)
	if err != nil {
		return nil, infer.WrapError("read weights", err)
	}

	reqBody := extractRequest{
		Image:   base64.StdEncoding.EncodeToString(params.ImageData),
		Weights: base64.StdEncoding.EncodeToString(weights),
		Points:  make([][2]int, 0, len(params.Points)),
	}
	for _, pt := range params.Points {
		reqBody.Points = append(reqBody.Points, [2]int{pt.Row, pt.Column})
	}

	var resp extractResponse
	if err := p.post(ctx, "/extract", reqBody, &resp); err != nil {
		metrics.InferRequestsTotal.WithLabelValues("extract", "error").Inc()
		return nil, infer.WrapError("extract features", err)
	}
	metrics.InferRequestsTotal.WithLabelValues("extract", "ok").Inc()

	features, err := base64.StdEncoding.DecodeString(resp.Features)
	if err != nil {
		return nil, infer.WrapError("extract features", infer.EInferBadResponse)
	}
	if len(features) == 0 {
		return nil, infer.WrapError("extract features", infer.EInferBadResponse)
	}
	return features, nil
}

// Classify scores a feature blob and returns one entry per point.
func (p *Provider) Classify(ctx context.Context, params infer.ClassifyParams) ([]infer.PointScores, error) {
	if len(params.Features) == 0 {
		return nil, infer.WrapError("classify", infer.EInferInvalidInput)
	}

	classifier, err := os.ReadFile(params.ClassifierPath)
	if err != nil {
		return nil, infer.WrapError("read classifier", err)
	}

	reqBody := classifyRequest{
		Features:   base64.StdEncoding.EncodeToString(params.Features),
		Classifier: base64.StdEncoding.EncodeToString(classifier),
	}

	var resp classifyResponse
	if err := p.post(ctx, "/classify", reqBody, &resp); err != nil {
		metrics.InferRequestsTotal.WithLabelValues("classify", "error").Inc()
		return nil, infer.WrapError("classify", err)
	}
	metrics.InferRequestsTotal.WithLabelValues("classify", "ok").Inc()

	if params.NumPoints > 0 && len(resp.Results) != params.NumPoints {
		p.logger.Error("classification result count mismatch",
			slog.Int("expected", params.NumPoints),
			slog.Int("got", len(resp.Results)))
		return nil, infer.WrapError("classify", infer.EInferBadResponse)
	}
	for _, r := range resp.Results {
		if len(r.LabelIDs) != len(r.Scores) {
			return nil, infer.WrapError("classify", infer.EInferBadResponse)
		}
	}
	return resp.Results, nil
}

// post executes one JSON round trip with exponential backoff retry on
// transient failures.
func (p *Provider) post(ctx context.Context, path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.config.ServiceConfig.MaxRetries; attempt++ {
		err := p.doOnce(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !infer.IsRetryable(err) {
			return err
		}
		if attempt >= p.config.ServiceConfig.MaxRetries {
			break
		}

		delay := p.config.ServiceConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying inference request",
			"path", path, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (p *Provider) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Network errors are typically retryable
		return infer.EInferUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return p.mapHTTPError(resp.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return infer.EInferBadResponse
	}
	return nil
}

// mapHTTPError maps HTTP status codes to inference errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", infer.EInferInvalidInput, errResp.Error)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return infer.EInferTimeout
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
		return infer.EInferUnavailable
	default:
		return fmt.Errorf("inference API error (status %d): %s", statusCode, errResp.Error)
	}
}
