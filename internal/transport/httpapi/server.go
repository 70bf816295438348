// Package httpapi is the collaborator-facing HTTP surface: upload, ask,
// reset, health and metrics. All pipeline errors are converted to
// structured JSON failures here; nothing is raised past this boundary.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bull/docchat/internal/metrics"
	"github.com/bull/docchat/internal/rag"
)

// Pipeline is what the HTTP layer needs from the RAG service.
type Pipeline interface {
	Ingest(ctx context.Context, files []rag.File) (int, error)
	Answer(ctx context.Context, question string) (*rag.Result, error)
	Reset(ctx context.Context) error
	Status(ctx context.Context) (*rag.Status, error)
}

// Config holds transport settings.
type Config struct {
	MaxUploadBytes int64
	APIKeys        []string
}

// Server handles the collaborator endpoints over a chi router.
type Server struct {
	pipeline Pipeline
	cfg      Config
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(pipeline Pipeline, cfg Config, logger *zap.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{pipeline: pipeline, cfg: cfg, logger: logger}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware())
	r.Use(metrics.Middleware())
	r.Use(bearerAuthMiddleware(s.cfg.APIKeys))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/upload_pdfs", s.handleUpload)
	r.Post("/ask", s.handleAsk)
	r.Post("/reset", s.handleReset)

	return r
}

// handleHealth reports readiness and collection size.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"ready":  st.Ready,
		"chunks": st.Chunks,
	})
}

// handleUpload ingests multipart files from the "files" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	files := make([]rag.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", header.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", header.Filename, err))
			return
		}
		files = append(files, rag.File{Name: header.Filename, Data: data})
	}

	s.logger.Info("received upload", zap.Int("files", len(files)))

	added, err := s.pipeline.Ingest(r.Context(), files)
	metrics.ObserveChunksIngested(added)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		writeJSON(w, statusForError(err), map[string]any{
			"error":        err.Error(),
			"chunks_added": added,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "files processed and collection updated",
		"chunks_added": added,
	})
}

// handleAsk answers a form-encoded question.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	question := r.PostFormValue("question")
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.pipeline.Answer(r.Context(), question)
	if err != nil {
		s.logger.Error("answer failed", zap.Error(err))
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleReset destroys and recreates the collection.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Reset(r.Context()); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "collection reset"})
}

// statusForError maps pipeline error categories to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rag.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, rag.ErrExtraction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
