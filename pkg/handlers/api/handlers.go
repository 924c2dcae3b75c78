// Package api provides the HTTP handlers for the extractor service.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"tokgrab/pkg/appctx"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/types"
	"tokgrab/pkg/urlutil"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", h.handleIndex)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	mux.HandleFunc("GET /api/v1/extract", h.handleExtract)
	mux.HandleFunc("GET /api/v1/media", h.handleMedia)
}

// handleIndex describes the service.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "tokgrab",
		"endpoints": []string{
			"/api/v1/health",
			"/api/v1/extract?url=...",
			"/api/v1/media?url=...",
		},
	})
}

// handleHealth reports service liveness.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract runs an extraction and returns the normalized record.
func (h *Handlers) handleExtract(w http.ResponseWriter, r *http.Request) {
	urlStr := r.URL.Query().Get("url")
	if urlStr == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	extractor := h.ctx.Extractors.Get(urlStr)
	record, err := extractor.Extract(r.Context(), urlStr)
	if err != nil {
		h.log.WithError(err).Warn("extraction failed", "url", urlStr)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleMedia relays a media URL through the fingerprint client, replaying
// the session cookies the extraction collected. The CDN rejects bare
// requests, which is why clients cannot fetch the URL themselves.
func (h *Handlers) handleMedia(w http.ResponseWriter, r *http.Request) {
	urlStr := r.URL.Query().Get("url")
	if urlStr == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	if !urlutil.IsTikTokHost(urlStr) {
		writeError(w, http.StatusForbidden, "refusing to relay non-TikTok host")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, urlStr, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	req.Header.Set("User-Agent", h.ctx.Config.UserAgent)
	req.Header.Set("Referer", "https://www.tiktok.com/")
	if cookie := r.URL.Query().Get("cookie"); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := h.ctx.HTTPClient.Do(req)
	if err != nil {
		h.log.WithError(err).Warn("media relay failed", "url", urlStr)
		writeError(w, http.StatusBadGateway, "upstream fetch failed")
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		w.Header().Set("Content-Range", cr)
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Debug("media relay interrupted", "url", urlStr, "error", err)
	}
}

// statusForError maps an error classification to a client-facing status.
func statusForError(err error) int {
	switch types.KindOf(err) {
	case types.ErrMalformedURL:
		return http.StatusBadRequest
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrAntiBot:
		return http.StatusServiceUnavailable
	case types.ErrDataNotFound, types.ErrRecordNotFound, types.ErrNoPlayableMedia:
		return http.StatusUnprocessableEntity
	case types.ErrFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
