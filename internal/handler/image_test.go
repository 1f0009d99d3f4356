package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/service"
)

// =============================================================================
// Test Doubles
// =============================================================================

type stubImageService struct {
	uploadResult *domain.Image
	uploadErr    error
	getResult    *domain.Image
	getErr       error
	deleteErr    error
	listResult   []domain.Image
	historyRows  []domain.ClassificationStatus
	historyErr   error
	retryResult  *domain.ClassificationStatus
	retryErr     error

	uploadCalls int
}

func (s *stubImageService) Upload(_ context.Context, _ multipart.File, _ *multipart.FileHeader, _, _ uuid.UUID) (*domain.Image, error) {
	s.uploadCalls++
	return s.uploadResult, s.uploadErr
}

func (s *stubImageService) Delete(_ context.Context, _ uuid.UUID) error {
	return s.deleteErr
}

func (s *stubImageService) GetByID(_ context.Context, _ uuid.UUID) (*domain.Image, error) {
	return s.getResult, s.getErr
}

func (s *stubImageService) ListByCollectRecord(_ context.Context, _ uuid.UUID) ([]domain.Image, error) {
	return s.listResult, nil
}

func (s *stubImageService) StatusHistory(_ context.Context, _ uuid.UUID) ([]domain.ClassificationStatus, error) {
	return s.historyRows, s.historyErr
}

func (s *stubImageService) Retry(_ context.Context, _, _ uuid.UUID) (*domain.ClassificationStatus, error) {
	return s.retryResult, s.retryErr
}

func (s *stubImageService) RegenerateThumbnailIfStale(_ context.Context, _ uuid.UUID) error {
	return nil
}

func (s *stubImageService) GetThumbnailURL(_ context.Context, _ uuid.UUID) (string, error) {
	return "http://localhost:8080/files/thumb.jpg", nil
}

func (s *stubImageService) GetOriginalURL(_ context.Context, _ uuid.UUID) (string, error) {
	return "http://localhost:8080/files/orig.jpg", nil
}

func newImageMux(svc service.ImageService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	mux := http.NewServeMux()
	NewImageHandler(svc, logger).RegisterRoutes(mux)
	return mux
}

// multipartUpload builds a multipart body with a file part and form fields.
func multipartUpload(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(fileData); err != nil {
			t.Fatalf("write file data: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestImageUpload(t *testing.T) {
	recordID := uuid.New()
	imageID := uuid.New()

	svc := &stubImageService{
		uploadResult: &domain.Image{
			ID:              imageID,
			CollectRecordID: recordID,
			OriginalName:    "quadrat.jpg",
			ContentType:     "image/jpeg",
			SizeBytes:       1024,
			Width:           1920,
			Height:          1080,
			CreatedAt:       time.Now(),
		},
		historyRows: []domain.ClassificationStatus{
			{ID: uuid.New(), ImageID: imageID, Status: domain.ClassificationPending, CreatedAt: time.Now()},
		},
	}
	mux := newImageMux(svc)

	body, contentType := multipartUpload(t,
		map[string]string{"collect_record_id": recordID.String()},
		"file", "quadrat.jpg", []byte("jpeg bytes"))

	req := httptest.NewRequest("POST", "/api/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Image.ID != imageID {
		t.Errorf("expected image id %s, got %s", imageID, resp.Image.ID)
	}
	if resp.Status.Status != string(domain.ClassificationPending) {
		t.Errorf("expected pending status, got %q", resp.Status.Status)
	}
}

func TestImageUpload_RejectsBadRequests(t *testing.T) {
	recordID := uuid.NewString()

	tests := []struct {
		name   string
		fields map[string]string
		file   bool
	}{
		{"missing collect_record_id", map[string]string{}, true},
		{"bad collect_record_id", map[string]string{"collect_record_id": "nope"}, true},
		{"bad user_id", map[string]string{"collect_record_id": recordID, "user_id": "nope"}, true},
		{"missing file", map[string]string{"collect_record_id": recordID}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubImageService{}
			mux := newImageMux(svc)

			fileField := ""
			if tt.file {
				fileField = "file"
			}
			body, contentType := multipartUpload(t, tt.fields, fileField, "q.jpg", []byte("data"))

			req := httptest.NewRequest("POST", "/api/images", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if svc.uploadCalls != 0 {
				t.Error("service should not be called for invalid input")
			}
		})
	}
}

func TestImageUpload_InvalidImageRejectedSynchronously(t *testing.T) {
	svc := &stubImageService{
		uploadErr: domain.Invalid("image.upload", "Image file could not be decoded"),
	}
	mux := newImageMux(svc)

	body, contentType := multipartUpload(t,
		map[string]string{"collect_record_id": uuid.NewString()},
		"file", "not-an-image.jpg", []byte("garbage"))

	req := httptest.NewRequest("POST", "/api/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error.Code != domain.EINVALID {
		t.Errorf("expected code %q, got %q", domain.EINVALID, resp.Error.Code)
	}
}

// =============================================================================
// Status History Tests
// =============================================================================

func TestImageStatusHistory(t *testing.T) {
	imageID := uuid.New()
	now := time.Now()

	svc := &stubImageService{
		historyRows: []domain.ClassificationStatus{
			{ID: uuid.New(), ImageID: imageID, Status: domain.ClassificationPending, CreatedAt: now.Add(-2 * time.Minute)},
			{ID: uuid.New(), ImageID: imageID, Status: domain.ClassificationRunning, CreatedAt: now.Add(-time.Minute)},
			{ID: uuid.New(), ImageID: imageID, Status: domain.ClassificationCompleted, CreatedAt: now, Data: map[string]any{"run_id": uuid.NewString()}},
		},
	}
	mux := newImageMux(svc)

	req := httptest.NewRequest("GET", "/api/images/"+imageID.String()+"/status", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp StatusHistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.History) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(resp.History))
	}
	if resp.Current.Status != string(domain.ClassificationCompleted) {
		t.Errorf("current should be the latest entry, got %q", resp.Current.Status)
	}
	if resp.History[0].Status != string(domain.ClassificationPending) {
		t.Errorf("history should be chronological, got %q first", resp.History[0].Status)
	}
}

func TestImageStatusHistory_UnknownImage(t *testing.T) {
	svc := &stubImageService{
		historyErr: domain.NotFound("image.status_history", "image", uuid.NewString()),
	}
	mux := newImageMux(svc)

	req := httptest.NewRequest("GET", "/api/images/"+uuid.NewString()+"/status", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// =============================================================================
// Retry Tests
// =============================================================================

func TestImageRetry(t *testing.T) {
	imageID := uuid.New()
	svc := &stubImageService{
		retryResult: &domain.ClassificationStatus{
			ID:      uuid.New(),
			ImageID: imageID,
			Status:  domain.ClassificationPending,
		},
	}
	mux := newImageMux(svc)

	req := httptest.NewRequest("POST", "/api/images/"+imageID.String()+"/retry", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestImageRetry_ConflictsWhileRunning(t *testing.T) {
	svc := &stubImageService{
		retryErr: domain.Conflict("image.retry", "Classification is still in progress"),
	}
	mux := newImageMux(svc)

	req := httptest.NewRequest("POST", "/api/images/"+uuid.NewString()+"/retry", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

// =============================================================================
// Delete Tests
// =============================================================================

func TestImageDelete(t *testing.T) {
	mux := newImageMux(&stubImageService{})

	req := httptest.NewRequest("DELETE", "/api/images/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
