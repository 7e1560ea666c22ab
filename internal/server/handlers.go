package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
	"document-qa/internal/rag"
	"document-qa/internal/router"
	"document-qa/internal/store"
)

type handler struct {
	svc       Service
	maxUpload int64
}

type queryRequest struct {
	Query  string `json:"query"`
	Action string `json:"action"`
}

type urlRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Current   int    `json:"current,omitempty"`
	Attempted int    `json:"attempted,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type documentsResponse struct {
	Documents []string `json:"documents"`
	Count     int      `json:"count"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files in request"))
		return
	}

	uploads := make([]models.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("reading %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("reading %s: %w", fh.Filename, err))
			return
		}
		uploads = append(uploads, models.Upload{
			Filename:    filepath.Base(fh.Filename),
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	report, err := h.svc.Upload(r.Context(), uploads)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	switch req.Action {
	case "", "ask":
		ans, err := h.svc.Query(r.Context(), req.Query)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	case "summarize":
		writeJSON(w, http.StatusOK, h.svc.Summarize(r.Context()))
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (h *handler) ingestURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"url\": \"...\"}"))
		return
	}
	res, err := h.svc.IngestURL(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.svc.Documents()
	writeJSON(w, http.StatusOK, documentsResponse{Documents: docs, Count: len(docs)})
}

func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	filename, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.Delete(r.Context(), filename); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the service's sentinel and typed errors to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var capErr *store.CapacityError
	switch {
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     capErr.Error(),
			Current:   capErr.Current,
			Attempted: capErr.Attempted,
			Limit:     capErr.Limit,
		})
	case errors.Is(err, store.ErrUnknownFilename):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, router.ErrEmptyQuery), errors.Is(err, rag.ErrMissingFilename):
		writeError(w, http.StatusBadRequest, err)
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encoding response")
	}
}
