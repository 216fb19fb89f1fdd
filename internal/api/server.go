package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/notegest/internal/config"
	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/dgallion1/notegest/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for notegest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	manifest     *manifest.Store
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. store may be nil.
func NewServer(orch *pipeline.Orchestrator, store *manifest.Store, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		manifest:     store,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.NotegestAPIKey, s.log))

		r.Post("/api/convert", s.handleConvert)
		r.Post("/api/convert/page", s.handleConvertPage)
		r.Get("/api/convert/{jobID}/status", s.handleConvertStatus)
		r.Get("/api/convert/{jobID}/output", s.handleConvertOutput)
		r.Get("/api/convert/{jobID}/images", s.handleConvertImages)
		r.Get("/api/convert/{jobID}/images/status", s.handleImageStatus)
		r.Get("/api/stats/convert", s.handleConvertStats)

		r.Get("/api/runs/last", s.handleLastRun)
		r.Get("/api/runs/{runID}/pages", s.handleRunPages)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
