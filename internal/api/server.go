package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/auth"
	"github.com/device-services/dsc/internal/config"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	hub        TelemetryPort
	geoloc     GeolocPort
	registry   RegistryPort
	records    RecordPort
	sync       SyncPort
	authMW     *auth.Middleware
	geolocCfg  config.GeolocConfig
	serverCfg  config.ServerConfig
	logger     *zap.Logger
	startTime  time.Time
}

// Deps bundles the server's dependencies.
type Deps struct {
	Hub      TelemetryPort
	Geoloc   GeolocPort
	Registry RegistryPort
	Records  RecordPort
	Sync     SyncPort
	AuthMW   *auth.Middleware
}

// NewServer creates a new API server.
func NewServer(deps Deps, serverCfg config.ServerConfig, geolocCfg config.GeolocConfig, logger *zap.Logger) *Server {
	return &Server{
		hub:       deps.Hub,
		geoloc:    deps.Geoloc,
		registry:  deps.Registry,
		records:   deps.Records,
		sync:      deps.Sync,
		authMW:    deps.AuthMW,
		geolocCfg: geolocCfg,
		serverCfg: serverCfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router builds the configured router. Exposed for tests.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	s.registerRoutes(router)
	return router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.serverCfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.serverCfg.ReadTimeout,
		WriteTimeout: s.serverCfg.WriteTimeout,
		IdleTimeout:  s.serverCfg.IdleTimeout,
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.serverCfg.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
