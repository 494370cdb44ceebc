package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"retroboard/internal/export"
	"retroboard/internal/session"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// Registry exposes the connection statistics reported by /health
type Registry interface {
	GetStats() map[string]int
}

// StatsProvider is any component that contributes to /health
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Server is the HTTP boundary: JSON endpoints for creating, reading,
// listing and exporting retros, plus the event stream upgrade.
type Server struct {
	sessionManager interfaces.SessionManager
	store          interfaces.SessionStore
	registry       Registry
	wsHandler      http.Handler
	corsOrigin     string
	extraStats     map[string]StatsProvider
	startedAt      time.Time
	router         *http.ServeMux
}

// Option configures optional Server collaborators
type Option func(*Server)

// WithWebSocketHandler mounts the event stream at /ws
func WithWebSocketHandler(h http.Handler) Option {
	return func(s *Server) { s.wsHandler = h }
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value
func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.corsOrigin = origin
		}
	}
}

// WithStats adds a named component to the /health report
func WithStats(name string, provider StatsProvider) Option {
	return func(s *Server) { s.extraStats[name] = provider }
}

// NewServer creates the HTTP server and its routes
func NewServer(sessionManager interfaces.SessionManager, store interfaces.SessionStore, registry Registry, opts ...Option) *Server {
	s := &Server{
		sessionManager: sessionManager,
		store:          store,
		registry:       registry,
		corsOrigin:     "*",
		extraStats:     make(map[string]StatsProvider),
		startedAt:      time.Now(),
		router:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(h))
	}

	s.router.Handle("POST /api/retro", api(s.createRetro))
	s.router.Handle("GET /api/retro/{id}", api(s.getRetro))
	s.router.Handle("GET /api/retro/{id}/export", s.corsMiddleware(http.HandlerFunc(s.exportRetro)))
	s.router.Handle("GET /api/retros", api(s.listRetros))
	s.router.Handle("OPTIONS /api/", s.corsMiddleware(http.NotFoundHandler()))
	s.router.Handle("GET /health", api(s.healthCheck))

	if s.wsHandler != nil {
		s.router.Handle("GET /ws", s.wsHandler)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateRetroRequest struct {
	SprintName    string `json:"sprintName"`
	TimerDuration int    `json:"timerDuration,omitempty"`
}

type ListRetrosResponse struct {
	Active     *types.PublicSession   `json:"active"`
	PastRetros []types.ArchiveSummary `json:"pastRetros"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Storage     string                 `json:"storage"`
	Connections map[string]int         `json:"connections"`
	Components  map[string]interface{} `json:"components"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// POST /api/retro
func (s *Server) createRetro(w http.ResponseWriter, r *http.Request) {
	var req CreateRetroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SprintName == "" {
		s.sendError(w, "sprintName is required", http.StatusBadRequest)
		return
	}

	creds, err := s.sessionManager.CreateSession(r.Context(), req.SprintName, req.TimerDuration)
	if err != nil {
		s.sendSessionError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, creds)
}

// GET /api/retro/{id}: the in-memory session first, then the store
func (s *Server) getRetro(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if snapshot, ok := s.sessionManager.Snapshot(id); ok {
		s.sendJSON(w, http.StatusOK, snapshot)
		return
	}

	stored, err := s.findStored(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stored.Public())
}

// GET /api/retro/{id}/export
func (s *Server) exportRetro(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var csv string
	var snapshot *types.PublicSession
	if live, ok := s.sessionManager.Snapshot(id); ok {
		rendered, err := s.sessionManager.ExportCSV()
		if err != nil {
			s.sendSessionError(w, err)
			return
		}
		csv, snapshot = rendered, live
	} else {
		stored, err := s.findStored(r.Context(), id)
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		snapshot = stored.Public()
		csv = export.RenderCSV(snapshot)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.DownloadName(snapshot)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(csv)); err != nil {
		log.Printf("Failed to write export for %s: %v", id, err)
	}
}

// GET /api/retros
func (s *Server) listRetros(w http.ResponseWriter, r *http.Request) {
	past, err := s.store.ListArchived(r.Context())
	if err != nil {
		log.Printf("Failed to list archived retros: %v", err)
		s.sendError(w, "Failed to list retros", http.StatusInternalServerError)
		return
	}
	if past == nil {
		past = []types.ArchiveSummary{}
	}

	s.sendJSON(w, http.StatusOK, ListRetrosResponse{
		Active:     s.sessionManager.ActiveSnapshot(),
		PastRetros: past,
	})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	components := map[string]interface{}{
		"session": s.sessionManager.GetStats(),
	}
	for name, provider := range s.extraStats {
		components[name] = provider.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Storage:     storeStatus,
		Connections: s.registry.GetStats(),
		Components:  components,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

// findStored looks id up in the store and maps a miss to the session taxonomy
func (s *Server) findStored(ctx context.Context, id string) (*types.Session, error) {
	stored, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stored.Normalize()
	return stored, nil
}

func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		s.sendError(w, "Retro not found", http.StatusNotFound)
		return
	}
	log.Printf("Store lookup failed: %v", err)
	s.sendError(w, "Failed to load retro", http.StatusInternalServerError)
}

// sendSessionError maps the session error kinds onto HTTP status codes
func (s *Server) sendSessionError(w http.ResponseWriter, err error) {
	s.sendError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch session.KindOf(err) {
	case session.KindNotFound:
		return http.StatusNotFound
	case session.KindPersistence:
		return http.StatusInternalServerError
	case session.KindConflict, session.KindState, session.KindAuth, session.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{Error: message})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
