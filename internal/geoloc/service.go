package geoloc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/audit"
	"github.com/device-services/dsc/internal/config"
	"github.com/device-services/dsc/internal/provider"
	"github.com/device-services/dsc/internal/telemetry"
)

// AuditLogger is the subset of the audit logger the service needs.
type AuditLogger interface {
	LogAction(ctx context.Context, action, subject, outcome string, latency time.Duration)
}

// Compile-time assertion that audit.Logger implements AuditLogger
var _ AuditLogger = (*audit.Logger)(nil)

// LastKnown is the most recent successful fix. Known is false until the
// first acquisition succeeds.
type LastKnown struct {
	Position provider.Position
	Known    bool
}

// Service routes position acquisitions to the active provider, maintains the
// last-known fix, runs watches and publishes position events.
type Service struct {
	registry *provider.Registry
	hub      *telemetry.Hub
	audit    AuditLogger
	cfg      config.GeolocConfig
	logger   *zap.Logger

	mu      sync.RWMutex
	last    LastKnown
	watches map[string]*watch
	stopped bool
}

// NewService creates a geolocation service.
func NewService(registry *provider.Registry, hub *telemetry.Hub, auditLogger AuditLogger, cfg config.GeolocConfig, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		hub:      hub,
		audit:    auditLogger,
		cfg:      cfg,
		logger:   logger,
		watches:  make(map[string]*watch),
	}
}

// Current performs a one-shot position acquisition. A cached fix no older
// than opts.MaximumAge satisfies the call without touching the provider.
// Errors carry one of the normalized codes from the provider package.
func (s *Service) Current(ctx context.Context, opts Options) (*provider.Position, error) {
	opts = opts.withDefaults(s.cfg)

	if opts.MaximumAge > 0 {
		s.mu.RLock()
		last := s.last
		s.mu.RUnlock()
		if last.Known && time.Since(last.Position.Timestamp) <= opts.MaximumAge {
			pos := last.Position
			return &pos, nil
		}
	}

	return s.acquire(ctx, opts, "")
}

// acquire performs a fresh acquisition against the active provider and
// publishes the resulting event. watchID tags events emitted by a watch.
func (s *Service) acquire(ctx context.Context, opts Options, watchID string) (*provider.Position, error) {
	start := time.Now()

	prov, providerID, err := s.registry.ActiveProvider()
	if err != nil {
		s.audit.LogAction(ctx, "getPosition", providerID, "POSITION_UNAVAILABLE", time.Since(start))
		return nil, fmt.Errorf("%w: no active provider", provider.ErrPositionUnavailable)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	pos, err := prov.CurrentPosition(acquireCtx, provider.AcquireOptions{
		HighAccuracy: opts.HighAccuracy,
		Timeout:      opts.Timeout,
	})
	latency := time.Since(start)

	if err != nil {
		normalized := provider.NormalizePlatformError(err, nil)
		s.audit.LogAction(ctx, "getPosition", providerID, auditCode(normalized), latency)
		s.logger.Warn("position acquisition failed",
			zap.String("provider", providerID),
			zap.String("watchId", watchID),
			zap.Error(normalized))
		s.publishError(providerID, watchID, normalized)
		return nil, normalized
	}

	s.mu.Lock()
	s.last = LastKnown{Position: *pos, Known: true}
	s.mu.Unlock()

	s.audit.LogAction(ctx, "getPosition", providerID, "SUCCESS", latency)
	s.publishPosition(providerID, watchID, pos)

	return pos, nil
}

// Last returns the most recent successful fix. It never fails; Known is
// false when no acquisition has succeeded yet.
func (s *Service) Last() LastKnown {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Stop stops all watches.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	watches := make([]*watch, 0, len(s.watches))
	for _, w := range s.watches {
		watches = append(watches, w)
	}
	s.watches = make(map[string]*watch)
	s.mu.Unlock()

	for _, w := range watches {
		w.stop()
	}
}

func (s *Service) publishPosition(providerID, watchID string, pos *provider.Position) {
	data := map[string]interface{}{
		"provider":  providerID,
		"latitude":  pos.Latitude,
		"longitude": pos.Longitude,
		"accuracy":  pos.Accuracy,
		"ts":        pos.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if pos.Altitude != 0 {
		data["altitude"] = pos.Altitude
	}
	if pos.Speed != 0 {
		data["speed"] = pos.Speed
	}
	if pos.Heading != 0 {
		data["heading"] = pos.Heading
	}
	if watchID != "" {
		data["watchId"] = watchID
	}

	if err := s.hub.PublishStream(telemetry.StreamGeoloc, telemetry.Event{
		Type: telemetry.EventPosition,
		Data: data,
	}); err != nil {
		s.logger.Warn("failed to publish position event", zap.Error(err))
	}
}

func (s *Service) publishError(providerID, watchID string, err error) {
	data := map[string]interface{}{
		"provider": providerID,
		"code":     auditCode(err),
		"message":  err.Error(),
	}
	if watchID != "" {
		data["watchId"] = watchID
	}

	if pubErr := s.hub.PublishStream(telemetry.StreamGeoloc, telemetry.Event{
		Type: telemetry.EventPositionError,
		Data: data,
	}); pubErr != nil {
		s.logger.Warn("failed to publish position error event", zap.Error(pubErr))
	}
}

// auditCode extracts the normalized code string from an error.
func auditCode(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	default:
		return provider.CodeOf(err)
	}
}
