// Package api exposes the read-side HTTP interface for crawled content.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Server wires HTTP handlers to the content store.
type Server struct {
	router chi.Router
	store  pipeline.ContentStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store pipeline.ContentStore, logger *zap.Logger) *Server {
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/contents", func(r chi.Router) {
		r.Get("/", s.listContents)
		r.Get("/id/{id}", s.getContent)
		r.Get("/{symbol}", s.listContentsBySymbol)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A failing store means the service cannot usefully answer reads.
	if _, _, err := s.store.ListContents(r.Context(), 1, 1); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// pageEnvelope is the wire shape of every paginated listing.
type pageEnvelope struct {
	Total      int                      `json:"total"`
	Page       int                      `json:"page"`
	Size       int                      `json:"size"`
	TotalPages int                      `json:"total_pages"`
	HasNext    bool                     `json:"has_next"`
	HasPrev    bool                     `json:"has_prev"`
	Items      []pipeline.ContentRecord `json:"items"`
}

func (s *Server) listContents(w http.ResponseWriter, r *http.Request) {
	page, size, err := pagination(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, total, err := s.store.ListContents(r.Context(), page, size)
	if err != nil {
		s.logger.Error("list contents failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list contents")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope(records, total, page, size))
}

func (s *Server) listContentsBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	page, size, err := pagination(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, total, err := s.store.ListContentsBySymbol(r.Context(), symbol, page, size)
	if err != nil {
		s.logger.Error("list contents by symbol failed",
			zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list contents")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope(records, total, page, size))
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid content id")
		return
	}
	record, err := s.store.GetContent(r.Context(), id)
	if errors.Is(err, pipeline.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}
	if err != nil {
		s.logger.Error("get content failed", zap.Int64("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get content")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func envelope(records []pipeline.ContentRecord, total, page, size int) pageEnvelope {
	totalPages := (total + size - 1) / size
	if records == nil {
		records = []pipeline.ContentRecord{}
	}
	return pageEnvelope{
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1 && total > 0,
		Items:      records,
	}
}

// pagination parses 1-based page and size query parameters.
func pagination(r *http.Request) (page, size int, err error) {
	page, size = 1, defaultPageSize
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxPageSize {
			return 0, 0, errors.New("size must be between 1 and 100")
		}
	}
	return page, size, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
