package ui

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"synthctl/adapters/report"
	"synthctl/app"
	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/ports"
)

// Server exposes the estimation engine over HTTP
type Server struct {
	router   chi.Router
	service  *app.EstimationService
	renderer *report.Renderer
	store    ports.ResultStore // nil when no database is configured

	// completed runs kept for the report endpoint
	mu   sync.RWMutex
	runs map[core.RunID]*estimate.Result
}

// NewServer wires the routes around an estimation service
func NewServer(service *app.EstimationService, store ports.ResultStore) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		service:  service,
		renderer: report.NewRenderer(),
		store:    store,
		runs:     make(map[core.RunID]*estimate.Result),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))

	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/estimate", s.handleEstimate)
	s.router.Get("/api/runs/{runID}/report", s.handleReport)

	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server on the given port
func (s *Server) ListenAndServe(port string) error {
	log.Printf("[Server] listening on :%s", port)
	return http.ListenAndServe(":"+port, s.router)
}

func (s *Server) remember(result *estimate.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[result.RunID] = result
}

func (s *Server) lookup(runID core.RunID) (*estimate.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.runs[runID]
	return result, ok
}
