// Package api exposes the HTTP interface for queue inspection.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
	"github.com/jacorycyjin/smart-library-crawler/internal/logging"
)

const defaultListLimit = 100

// Server wires HTTP handlers to the task and record stores.
type Server struct {
	router  chi.Router
	tasks   harvest.TaskStore
	records harvest.RecordStore
}

// NewServer constructs a Server with middleware and routes.
func NewServer(tasks harvest.TaskStore, records harvest.RecordStore) *Server {
	s := &Server{tasks: tasks, records: records}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tasks/books", s.listBookTasks)
		r.Get("/tasks/authors", s.listAuthorTasks)
		r.Get("/tasks/files", s.listFileTasks)
		r.Get("/categories", s.listCategories)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listBookTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListPendingBookTasks(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list book tasks")
		return
	}
	out := make([]bookTaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, bookTaskView{
			ID:           t.ID,
			CategoryID:   t.CategoryID,
			CategoryName: t.CategoryName,
			Progress:     t.Progress,
			Target:       t.Target,
			Status:       string(t.Status),
			ErrorMessage: t.ErrorMessage,
			Blocked:      t.Status == harvest.StatusPending && t.ErrorMessage != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) listAuthorTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListPendingAuthorTasks(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list author tasks")
		return
	}
	out := make([]authorTaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, authorTaskView{
			ID:           t.ID,
			AuthorID:     t.AuthorID,
			AuthorName:   t.AuthorName,
			AuthorURL:    t.AuthorURL,
			Status:       string(t.Status),
			ErrorMessage: t.ErrorMessage,
			Blocked:      t.Blocked(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) listFileTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListPendingFileTasks(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list file tasks")
		return
	}
	out := make([]fileTaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, fileTaskView{
			ID:           t.ID,
			ResourceID:   t.ResourceID,
			ISBN:         t.ISBN,
			Title:        t.Title,
			Status:       string(t.Status),
			ErrorMessage: t.ErrorMessage,
			PDF:          t.Formats.PDF,
			EPUB:         t.Formats.EPUB,
			MOBI:         t.Formats.MOBI,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.records.ListLeafCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{
			CategoryID: c.CategoryID,
			Name:       c.Name,
			ParentID:   c.ParentID,
			Level:      c.Level,
			SortOrder:  c.SortOrder,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type bookTaskView struct {
	ID           int64  `json:"id"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Progress     int    `json:"progress"`
	Target       int    `json:"target"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Blocked      bool   `json:"blocked"`
}

type authorTaskView struct {
	ID           int64  `json:"id"`
	AuthorID     string `json:"author_id"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Blocked      bool   `json:"blocked"`
}

type fileTaskView struct {
	ID           int64  `json:"id"`
	ResourceID   string `json:"resource_id"`
	ISBN         string `json:"isbn"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	PDF          bool   `json:"pdf_downloaded"`
	EPUB         bool   `json:"epub_downloaded"`
	MOBI         bool   `json:"mobi_downloaded"`
}

type categoryView struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	ParentID   string `json:"parent_id,omitempty"`
	Level      int    `json:"level"`
	SortOrder  int    `json:"sort_order"`
}

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logging.L.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.L.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
