// =============================================================================
// HTTP API SERVER - REST INTERFACE FOR GOREGISTRY
// =============================================================================
//
// WHAT IS THIS?
// The registry's REST surface, shaped after the de-facto schema-registry
// wire conventions so existing serializer clients feel at home:
//
//   SUBJECTS
//   GET    /subjects                              List subjects (?deleted=true)
//   POST   /subjects/{subject}/versions           Register a schema -> {"id": N}
//   GET    /subjects/{subject}/versions           List versions (?deleted=true)
//   GET    /subjects/{subject}/versions/{version} Get one version ("latest" ok)
//   DELETE /subjects/{subject}/versions/{version} Soft delete (?permanent=true)
//   DELETE /subjects/{subject}                    Soft delete (?permanent=true)
//
//   SCHEMAS
//   GET    /schemas/ids/{id}                      Get schema body by global ID
//
//   CONFIG
//   GET    /config                                Global compatibility level
//   PUT    /config                                Set global level
//   GET    /config/{subject}                      Subject level (falls back)
//   PUT    /config/{subject}                      Set subject override
//
//   ADMIN
//   GET    /health
//   GET    /stats
//   GET    /metrics
//
// READ GUARANTEES:
// Every read handler syncs the store against the log before answering, so a
// client that registered a schema through ANY node immediately sees it here.
// That is the whole point of running reads through the sequencer's catch-up
// path instead of straight off the in-memory store.
//
// =============================================================================

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"goregistry/internal/metrics"
	"goregistry/internal/registry"
)

// =============================================================================
// API SERVER
// =============================================================================

// Server is the HTTP API server for goregistry.
type Server struct {
	sequencer  *registry.Sequencer
	store      *registry.Store
	metrics    *metrics.Registry
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8081",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server.
func NewServer(seq *registry.Sequencer, store *registry.Store, m *metrics.Registry, config ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	s := &Server{
		sequencer: seq,
		store:     store,
		metrics:   m,
		router:    r,
		logger:    logger.With("component", "api"),
	}

	// Set up middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Register routes
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	// Health & Stats
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Subjects
	s.router.Route("/subjects", func(r chi.Router) {
		r.Get("/", s.listSubjects)

		r.Route("/{subject}", func(r chi.Router) {
			r.Delete("/", s.deleteSubject)

			r.Route("/versions", func(r chi.Router) {
				r.Post("/", s.registerSchema)
				r.Get("/", s.listVersions)

				r.Route("/{version}", func(r chi.Router) {
					r.Get("/", s.getVersion)
					r.Delete("/", s.deleteVersion)
				})
			})
		})
	})

	// Schemas by global ID
	s.router.Get("/schemas/ids/{id}", s.getSchemaByID)

	// Compatibility config
	s.router.Route("/config", func(r chi.Router) {
		r.Get("/", s.getGlobalConfig)
		r.Put("/", s.putGlobalConfig)
		r.Get("/{subject}", s.getSubjectConfig)
		r.Put("/{subject}", s.putSubjectConfig)
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	s.logger.Info("starting HTTP API server", "addr", s.httpServer.Addr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting HTTP API server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

// =============================================================================
// HEALTH & STATS HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if err := s.sequencer.ReadSync(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}
	stats := s.store.Snapshot()
	offset, err := s.sequencer.LoadedOffset(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"subjects":             stats.SubjectCount,
		"schemas":              stats.SchemaCount,
		"global_compatibility": stats.GlobalCompatibility,
		"loaded_offset":        offset,
	})
}

// =============================================================================
// SUBJECT HANDLERS
// =============================================================================

func (s *Server) listSubjects(w http.ResponseWriter, r *http.Request) {
	if err := s.sequencer.ReadSync(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}
	includeDeleted := r.URL.Query().Get("deleted") == "true"
	s.writeJSON(w, http.StatusOK, s.store.ListSubjects(includeDeleted))
}

type registerRequest struct {
	Schema     string `json:"schema"`
	SchemaType string `json:"schemaType"`
}

func (s *Server) registerSchema(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	typ := registry.SchemaType(req.SchemaType)
	if typ == "" {
		typ = registry.SchemaTypeJSON
	}

	id, err := s.sequencer.WriteSubjectVersion(r.Context(), subject, typ, req.Schema)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id})
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	if err := s.sequencer.ReadSync(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}
	subject := chi.URLParam(r, "subject")
	includeDeleted := r.URL.Query().Get("deleted") == "true"

	versions, err := s.store.GetVersions(subject, includeDeleted)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	if err := s.sequencer.ReadSync(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}
	subject := chi.URLParam(r, "subject")
	includeDeleted := r.URL.Query().Get("deleted") == "true"

	version, ok := parseVersion(chi.URLParam(r, "version"))
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "version must be a positive integer or \"latest\"")
		return
	}

	ss, err := s.store.GetSubjectSchema(subject, version, includeDeleted)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ss)
}

func (s *Server) deleteVersion(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	permanent := r.URL.Query().Get("permanent") == "true"

	version, ok := parseVersion(chi.URLParam(r, "version"))
	if !ok || version <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	if permanent {
		if _, err := s.sequencer.DeleteSubjectPermanent(r.Context(), subject, version); err != nil {
			s.handleError(w, err)
			return
		}
	} else {
		if err := s.sequencer.DeleteSubjectVersion(r.Context(), subject, version); err != nil {
			s.handleError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) deleteSubject(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	permanent := r.URL.Query().Get("permanent") == "true"

	var versions []int
	var err error
	if permanent {
		versions, err = s.sequencer.DeleteSubjectPermanent(r.Context(), subject, 0)
	} else {
		versions, err = s.sequencer.DeleteSubjectImpermanent(r.Context(), subject)
	}
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

// =============================================================================
// SCHEMA-BY-ID HANDLER
// =============================================================================

func (s *Server) getSchemaByID(w http.ResponseWriter, r *http.Request) {
	if err := s.sequencer.ReadSync(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "schema id must be a positive integer")
		return
	}

	typ, definition, err := s.store.GetSchemaByID(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"schemaType": typ,
		"schema":     definition,
	})
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

type configPayload struct {
	Compatibility string `json:"compatibility"`
}

func (s *Server) getGlobalConfig(w http.ResponseWriter, r *http.Request) {
	s.getConfig(w, r, "")
}

func (s *Server) getSubjectConfig(w http.ResponseWriter, r *http.Request) {
	s.getConfig(w, r, chi.URLParam(r, "subject"))
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request, subject string) {
	if err := s.sequencer.ReadSync(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}

	// A subject without its own override is a 404 unless the caller asks
	// for the fallback explicitly.
	if subject != "" && !s.store.HasSubjectCompatibility(subject) &&
		r.URL.Query().Get("defaultToGlobal") != "true" {
		s.errorResponse(w, http.StatusNotFound,
			fmt.Sprintf("subject %q has no compatibility override", subject))
		return
	}

	level := s.store.GetCompatibility(subject)
	s.writeJSON(w, http.StatusOK, configPayload{Compatibility: string(level)})
}

func (s *Server) putGlobalConfig(w http.ResponseWriter, r *http.Request) {
	s.putConfig(w, r, "")
}

func (s *Server) putSubjectConfig(w http.ResponseWriter, r *http.Request) {
	s.putConfig(w, r, chi.URLParam(r, "subject"))
}

func (s *Server) putConfig(w http.ResponseWriter, r *http.Request, subject string) {
	var req configPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	level, err := registry.ParseCompatibilityLevel(req.Compatibility)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if _, err := s.sequencer.WriteConfig(r.Context(), subject, level); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, configPayload{Compatibility: string(level)})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// parseVersion accepts a positive integer or the literal "latest" (0).
func parseVersion(raw string) (int, bool) {
	if raw == "latest" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// handleError maps domain errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrSubjectNotFound),
		errors.Is(err, registry.ErrVersionNotFound),
		errors.Is(err, registry.ErrSchemaNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrInvalidSchema),
		errors.Is(err, registry.ErrInvalidSubject),
		errors.Is(err, registry.ErrInvalidCompatibility):
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, registry.ErrIncompatibleSchema),
		errors.Is(err, registry.ErrVersionAlreadyDeleted),
		errors.Is(err, registry.ErrNotSoftDeleted):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrLogUnavailable),
		errors.Is(err, registry.ErrWriteConflictExhausted),
		errors.Is(err, registry.ErrSequencerStopped):
		s.errorResponse(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.errorResponse(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error("unhandled error", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
