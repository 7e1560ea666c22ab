// Package server exposes the rag service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Service is what the handlers need from the rag service.
type Service interface {
	Upload(ctx context.Context, files []models.Upload) (models.IngestReport, error)
	IngestURL(ctx context.Context, url string) (models.FileResult, error)
	Query(ctx context.Context, query string) (models.Answer, error)
	Summarize(ctx context.Context) models.Answer
	Delete(ctx context.Context, filename string) error
	Documents() []string
}

type Server struct {
	httpServer *http.Server
}

// NewRouter wires all routes and middleware.
func NewRouter(cfg *config.ServerConfig, svc Service) http.Handler {
	h := &handler{svc: svc, maxUpload: cfg.MaxUploadMB << 20}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if cfg.TimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(cfg.TimeoutSecs) * time.Second))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", h.health)
	r.Post("/upload", h.upload)
	r.Post("/query", h.query)
	r.Post("/urls", h.ingestURL)
	r.Get("/documents", h.listDocuments)
	r.Delete("/documents/{filename}", h.deleteDocument)
	return r
}

func NewServer(cfg *config.ServerConfig, svc Service) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
