// Package main implements the Device Services Container entry point.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/api"
	"github.com/device-services/dsc/internal/audit"
	"github.com/device-services/dsc/internal/auth"
	"github.com/device-services/dsc/internal/config"
	"github.com/device-services/dsc/internal/geoloc"
	"github.com/device-services/dsc/internal/logging"
	"github.com/device-services/dsc/internal/provider"
	"github.com/device-services/dsc/internal/provider/fake"
	"github.com/device-services/dsc/internal/provider/replay"
	"github.com/device-services/dsc/internal/record"
	"github.com/device-services/dsc/internal/sync"
	"github.com/device-services/dsc/internal/telemetry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting device services container", zap.String("version", version))

	hub := telemetry.NewHub(cfg.Telemetry)

	auditLogger, err := audit.NewLogger(cfg.Log.AuditDir)
	if err != nil {
		logger.Fatal("failed to initialize audit logger", zap.Error(err))
	}

	registry := provider.NewRegistry()
	if err := registerProviders(registry, logger); err != nil {
		logger.Fatal("failed to register location providers", zap.Error(err))
	}

	geolocSvc := geoloc.NewService(registry, hub, auditLogger, cfg.Geoloc, logger)

	store := record.NewStore(cfg.Sync.Sources...)

	var syncEngine *sync.Engine
	syncCtx, cancelSync := context.WithCancel(context.Background())
	if cfg.Sync.BaseURL != "" {
		client := sync.NewClient(cfg.Sync.BaseURL, cfg.Sync.HTTPTimeout)
		syncEngine = sync.NewEngine(store, client, hub, auditLogger, cfg.Sync, logger)
		go syncEngine.Run(syncCtx)
		logger.Info("periodic sync enabled",
			zap.String("baseUrl", cfg.Sync.BaseURL),
			zap.Duration("interval", cfg.Sync.Interval))
	} else {
		logger.Info("sync disabled: no base URL configured")
	}

	authMW, err := buildAuthMiddleware(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to configure authentication", zap.Error(err))
	}

	deps := api.Deps{
		Hub:      hub,
		Geoloc:   geolocSvc,
		Registry: registry,
		Records:  store,
		AuthMW:   authMW,
	}
	if syncEngine != nil {
		deps.Sync = syncEngine
	}
	server := api.NewServer(deps, cfg.Server, cfg.Geoloc, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cancelSync()
	geolocSvc.Stop()
	hub.Stop()

	if err := auditLogger.Close(); err != nil {
		logger.Warn("error closing audit logger", zap.Error(err))
	}

	if err := server.Stop(ctx); err != nil {
		logger.Warn("error stopping HTTP server", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// registerProviders wires the available location providers. A replay track
// in DSC_REPLAY_TRACK takes precedence; the simulated provider is always
// present as a fallback.
func registerProviders(registry *provider.Registry, logger *zap.Logger) error {
	if trackPath := os.Getenv("DSC_REPLAY_TRACK"); trackPath != "" {
		rp, err := replay.NewReplayProviderFromFile("replay", trackPath, true)
		if err != nil {
			return err
		}
		if err := registry.Register("replay", "replay", rp, 5*time.Second); err != nil {
			return err
		}
		logger.Info("replay provider registered", zap.String("track", trackPath))
	}

	if err := registry.Register("gps-sim", "simulated", fake.NewFakeProvider("gps-sim"), 5*time.Second); err != nil {
		return err
	}

	return nil
}

func buildAuthMiddleware(cfg config.AuthConfig) (*auth.Middleware, error) {
	if !cfg.Enabled {
		return auth.NewMiddleware(nil, false), nil
	}

	verifier, err := auth.NewVerifier(auth.NewVerifierConfig(cfg))
	if err != nil {
		return nil, err
	}
	return auth.NewMiddleware(verifier, true), nil
}
