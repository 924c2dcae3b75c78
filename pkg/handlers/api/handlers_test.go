package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tokgrab/pkg/appctx"
	"tokgrab/pkg/config"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/registry"
	"tokgrab/pkg/types"
)

// fakeExtractor returns a canned record or error for any URL.
type fakeExtractor struct {
	record *types.VideoRecord
	err    error
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) CanExtract(string) bool { return true }

func (f *fakeExtractor) Close() error { return nil }
func (f *fakeExtractor) Extract(ctx context.Context, url string) (*types.VideoRecord, error) {
	return f.record, f.err
}

func newTestHandlers(ext *fakeExtractor) *Handlers {
	log := logging.New("error", false, io.Discard)
	cfg := &config.Config{
		BaseURL:   "http://localhost:8000",
		UserAgent: config.DefaultUserAgent,
	}
	ctx := appctx.New(cfg, log)

	reg := registry.NewExtractorRegistry()
	if ext != nil {
		reg.Register(ext)
	}
	ctx.WithExtractors(reg)

	return NewHandlers(ctx)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandlers(nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	for _, path := range []string{"/api/health", "/api/v1/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON from %s: %v", path, err)
		}
		if body["status"] != "ok" {
			t.Errorf("status = %q, want ok", body["status"])
		}
	}
}

func TestHandleExtract_Success(t *testing.T) {
	h := newTestHandlers(&fakeExtractor{
		record: &types.VideoRecord{
			ID:       "7123456789012345678",
			MediaURL: "https://cdn.example/v.mp4",
			Author:   "someuser",
		},
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/extract?url=https://www.tiktok.com/@u/video/7123456789012345678", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var record types.VideoRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if record.ID != "7123456789012345678" || record.MediaURL != "https://cdn.example/v.mp4" {
		t.Errorf("record = %+v", record)
	}
}

func TestHandleExtract_MissingURL(t *testing.T) {
	h := newTestHandlers(nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/extract", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleExtract_ErrorMapping(t *testing.T) {
	tests := []struct {
		kind       types.ErrorKind
		wantStatus int
	}{
		{types.ErrMalformedURL, http.StatusBadRequest},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrAntiBot, http.StatusServiceUnavailable},
		{types.ErrDataNotFound, http.StatusUnprocessableEntity},
		{types.ErrRecordNotFound, http.StatusUnprocessableEntity},
		{types.ErrNoPlayableMedia, http.StatusUnprocessableEntity},
		{types.ErrFetchFailed, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newTestHandlers(&fakeExtractor{
				err: types.NewExtractError(tt.kind, "boom"),
			})
			mux := http.NewServeMux()
			h.RegisterRoutes(mux)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/extract?url=https://www.tiktok.com/@u/video/1", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status for %s = %d, want %d", tt.kind, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleMedia_Rejections(t *testing.T) {
	h := newTestHandlers(nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"missing url", "/api/v1/media", http.StatusBadRequest},
		{"non-tiktok host", "/api/v1/media?url=https://evil.example/v.mp4", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestStatusForError_Unclassified(t *testing.T) {
	if got := statusForError(io.EOF); got != http.StatusInternalServerError {
		t.Errorf("statusForError(io.EOF) = %d, want 500", got)
	}
}
