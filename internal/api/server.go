// Package api exposes the HTTP boundary. Update triggers are asynchronous:
// the handlers enqueue a task and answer 202 with a correlation id, they
// never run the ingestion pipeline in-request.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// Store is the read surface the API needs from MySQL.
type Store interface {
	Health(ctx context.Context) error
	GetProviders(ctx context.Context) ([]*models.Provider, error)
	GetActiveInstruments(ctx context.Context) ([]*models.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	GetObservations(ctx context.Context, instrumentID string, since time.Time, limit int) ([]*models.PriceObservation, error)
	GetLatestObservation(ctx context.Context, instrumentID string) (*models.PriceObservation, error)
	GetUpdateRuns(ctx context.Context, filter database.RunFilter) ([]*models.UpdateRun, error)
	GetUpdateRunByID(ctx context.Context, id string) (*models.UpdateRun, error)
}

// LatestCache is the Redis fast path for latest-price reads.
type LatestCache interface {
	Health(ctx context.Context) error
	GetLatestObservation(ctx context.Context, symbol string) (*models.PriceObservation, error)
}

// TaskQueue enqueues update work.
type TaskQueue interface {
	IsConnected() bool
	EnqueueInstrumentUpdate(ctx context.Context, instrumentID string, opts provider.FetchOptions) (string, error)
	EnqueueAllUpdate(ctx context.Context, opts provider.FetchOptions) (string, error)
}

// Server represents the HTTP API server.
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	store Store
	cache LatestCache
	tasks TaskQueue
}

// NewServer creates the API server and wires its routes.
func NewServer(cfg *config.Config, store Store, cache LatestCache, tasks TaskQueue, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		cache:  cache,
		tasks:  tasks,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	if s.cfg.Security.CORSEnabled {
		s.router.Use(s.corsMiddleware)
	}

	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()

	apiV1.HandleFunc("/health", s.handleHealth).Methods("GET")

	apiV1.HandleFunc("/providers", s.handleGetProviders).Methods("GET")

	apiV1.HandleFunc("/instruments", s.handleGetInstruments).Methods("GET")
	apiV1.HandleFunc("/instruments/{symbol}", s.handleGetInstrument).Methods("GET")
	apiV1.HandleFunc("/instruments/{symbol}/prices", s.handleGetPrices).Methods("GET")
	apiV1.HandleFunc("/instruments/{symbol}/latest", s.handleGetLatest).Methods("GET")
	apiV1.HandleFunc("/instruments/{symbol}/update", s.handleTriggerUpdate).Methods("POST")

	apiV1.HandleFunc("/updates", s.handleTriggerUpdateAll).Methods("POST")

	apiV1.HandleFunc("/runs", s.handleGetRuns).Methods("GET")
	apiV1.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Security.CORSOrigins),
		handlers.AllowedMethods(s.cfg.Security.CORSMethods),
		handlers.AllowedHeaders(s.cfg.Security.CORSHeaders),
	)(next)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
