package httpinfer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalbase/quadrat/internal/infer"
	"github.com/tidalbase/quadrat/internal/sampler"
)

const baseURL = "http://infer.local"

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{
		BaseURL: baseURL,
		ServiceConfig: infer.ServiceConfig{
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
			RequestTimeout: time.Second,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	httpmock.ActivateNonDefault(p.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return p
}

func writeTempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExtractFeatures(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p := newTestProvider(t)
		weightsPath := writeTempFile(t, "weights.bin", "model weights")

		httpmock.RegisterResponder("POST", baseURL+"/extract",
			func(req *http.Request) (*http.Response, error) {
				var body extractRequest
				require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

				img, err := base64.StdEncoding.DecodeString(body.Image)
				require.NoError(t, err)
				assert.Equal(t, []byte("fake image"), img)

				weights, err := base64.StdEncoding.DecodeString(body.Weights)
				require.NoError(t, err)
				assert.Equal(t, []byte("model weights"), weights)

				assert.Equal(t, [][2]int{{10, 20}, {30, 40}}, body.Points)

				return httpmock.NewJsonResponse(http.StatusOK, extractResponse{
					Features: base64.StdEncoding.EncodeToString([]byte("feature blob")),
				})
			})

		features, err := p.ExtractFeatures(context.Background(), infer.ExtractParams{
			ImageData:   []byte("fake image"),
			Points:      []sampler.Coordinate{{Row: 10, Column: 20}, {Row: 30, Column: 40}},
			WeightsPath: weightsPath,
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("feature blob"), features)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		p := newTestProvider(t)
		weightsPath := writeTempFile(t, "weights.bin", "w")

		calls := 0
		httpmock.RegisterResponder("POST", baseURL+"/extract",
			func(req *http.Request) (*http.Response, error) {
				calls++
				if calls < 3 {
					return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
				}
				return httpmock.NewJsonResponse(http.StatusOK, extractResponse{
					Features: base64.StdEncoding.EncodeToString([]byte("f")),
				})
			})

		_, err := p.ExtractFeatures(context.Background(), infer.ExtractParams{
			ImageData:   []byte("img"),
			Points:      []sampler.Coordinate{{Row: 1, Column: 1}},
			WeightsPath: weightsPath,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		p := newTestProvider(t)
		weightsPath := writeTempFile(t, "weights.bin", "w")

		httpmock.RegisterResponder("POST", baseURL+"/extract",
			httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

		_, err := p.ExtractFeatures(context.Background(), infer.ExtractParams{
			ImageData:   []byte("img"),
			Points:      []sampler.Coordinate{{Row: 1, Column: 1}},
			WeightsPath: weightsPath,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, infer.EInferUnavailable)
		assert.Equal(t, 3, httpmock.GetTotalCallCount())
	})

	t.Run("does not retry invalid input", func(t *testing.T) {
		p := newTestProvider(t)
		weightsPath := writeTempFile(t, "weights.bin", "w")

		httpmock.RegisterResponder("POST", baseURL+"/extract",
			httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"unreadable image"}`))

		_, err := p.ExtractFeatures(context.Background(), infer.ExtractParams{
			ImageData:   []byte("img"),
			Points:      []sampler.Coordinate{{Row: 1, Column: 1}},
			WeightsPath: weightsPath,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, infer.EInferInvalidInput)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})

	t.Run("missing weights file", func(t *testing.T) {
		p := newTestProvider(t)

		_, err := p.ExtractFeatures(context.Background(), infer.ExtractParams{
			ImageData:   []byte("img"),
			Points:      []sampler.Coordinate{{Row: 1, Column: 1}},
			WeightsPath: "/nonexistent/weights.bin",
		})
		require.Error(t, err)
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})
}

func TestClassify(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p := newTestProvider(t)
		classifierPath := writeTempFile(t, "classifier.bin", "serialized classifier")

		want := []infer.PointScores{
			{LabelIDs: []int64{7, 2, 9}, Scores: []float64{0.9, 0.06, 0.04}},
			{LabelIDs: []int64{2, 7}, Scores: []float64{0.55, 0.45}},
		}
		httpmock.RegisterResponder("POST", baseURL+"/classify",
			func(req *http.Request) (*http.Response, error) {
				var body classifyRequest
				require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

				classifier, err := base64.StdEncoding.DecodeString(body.Classifier)
				require.NoError(t, err)
				assert.Equal(t, []byte("serialized classifier"), classifier)

				return httpmock.NewJsonResponse(http.StatusOK, classifyResponse{Results: want})
			})

		got, err := p.Classify(context.Background(), infer.ClassifyParams{
			Features:       []byte("feature blob"),
			ClassifierPath: classifierPath,
			NumPoints:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("result count mismatch", func(t *testing.T) {
		p := newTestProvider(t)
		classifierPath := writeTempFile(t, "classifier.bin", "c")

		httpmock.RegisterResponder("POST", baseURL+"/classify",
			func(req *http.Request) (*http.Response, error) {
				return httpmock.NewJsonResponse(http.StatusOK, classifyResponse{
					Results: []infer.PointScores{{LabelIDs: []int64{1}, Scores: []float64{1}}},
				})
			})

		_, err := p.Classify(context.Background(), infer.ClassifyParams{
			Features:       []byte("f"),
			ClassifierPath: classifierPath,
			NumPoints:      25,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, infer.EInferBadResponse)
	})

	t.Run("ragged label and score lists", func(t *testing.T) {
		p := newTestProvider(t)
		classifierPath := writeTempFile(t, "classifier.bin", "c")

		httpmock.RegisterResponder("POST", baseURL+"/classify",
			func(req *http.Request) (*http.Response, error) {
				return httpmock.NewJsonResponse(http.StatusOK, classifyResponse{
					Results: []infer.PointScores{{LabelIDs: []int64{1, 2}, Scores: []float64{1}}},
				})
			})

		_, err := p.Classify(context.Background(), infer.ClassifyParams{
			Features:       []byte("f"),
			ClassifierPath: classifierPath,
			NumPoints:      1,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, infer.EInferBadResponse)
	})
}
