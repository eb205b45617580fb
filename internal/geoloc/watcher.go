package geoloc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/provider"
	"github.com/device-services/dsc/internal/telemetry"
)

// WatchInfo describes a running watch.
type WatchInfo struct {
	ID           string        `json:"id"`
	HighAccuracy bool          `json:"highAccuracy"`
	PollInterval time.Duration `json:"pollInterval"`
	MinDistance  float64       `json:"minDistance"`
	StartedAt    time.Time     `json:"startedAt"`
	Updates      int64         `json:"updates"`
	Errors       int64         `json:"errors"`
}

// watch is a polling acquisition loop.
type watch struct {
	id      string
	opts    Options
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	lastFix  *provider.Position
	updates  int64
	errCount int64
}

func (w *watch) stop() {
	w.cancel()
	<-w.done
}

func (w *watch) info() WatchInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatchInfo{
		ID:           w.id,
		HighAccuracy: w.opts.HighAccuracy,
		PollInterval: w.opts.PollInterval,
		MinDistance:  w.opts.MinDistance,
		StartedAt:    w.started,
		Updates:      w.updates,
		Errors:       w.errCount,
	}
}

// StartWatch starts a polling watch and returns its ID. The watch polls the
// active provider every PollInterval; fixes that moved less than MinDistance
// meters from the last delivered fix are suppressed. Acquisition errors are
// published but never terminate the watch.
func (s *Service) StartWatch(ctx context.Context, opts Options) (string, error) {
	opts = opts.withDefaults(s.cfg)
	// A watch always acquires fresh fixes.
	opts.MaximumAge = 0

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &watch{
		id:      uuid.NewString(),
		opts:    opts,
		started: time.Now().UTC(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return "", fmt.Errorf("geolocation service stopped")
	}
	s.watches[w.id] = w
	s.mu.Unlock()

	s.audit.LogAction(ctx, "startWatch", w.id, "SUCCESS", 0)
	if err := s.hub.PublishStream(telemetry.StreamGeoloc, telemetry.Event{
		Type: telemetry.EventWatchStarted,
		Data: map[string]interface{}{
			"watchId":      w.id,
			"pollInterval": opts.PollInterval.String(),
			"minDistance":  opts.MinDistance,
		},
	}); err != nil {
		s.logger.Warn("failed to publish watch started event", zap.Error(err))
	}

	go s.runWatch(watchCtx, w)

	return w.id, nil
}

// StopWatch stops a watch. Stopping an unknown or already stopped watch is
// a no-op.
func (s *Service) StopWatch(ctx context.Context, watchID string) {
	s.mu.Lock()
	w, ok := s.watches[watchID]
	if ok {
		delete(s.watches, watchID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	w.stop()

	s.audit.LogAction(ctx, "stopWatch", watchID, "SUCCESS", 0)
	if err := s.hub.PublishStream(telemetry.StreamGeoloc, telemetry.Event{
		Type: telemetry.EventWatchStopped,
		Data: map[string]interface{}{"watchId": watchID},
	}); err != nil {
		s.logger.Warn("failed to publish watch stopped event", zap.Error(err))
	}
}

// Watches returns the running watches.
func (s *Service) Watches() []WatchInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]WatchInfo, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, w.info())
	}
	return out
}

// Watch returns a single watch by ID.
func (s *Service) Watch(watchID string) (WatchInfo, bool) {
	s.mu.RLock()
	w, ok := s.watches[watchID]
	s.mu.RUnlock()
	if !ok {
		return WatchInfo{}, false
	}
	return w.info(), true
}

// runWatch is the acquisition loop of a single watch.
func (s *Service) runWatch(ctx context.Context, w *watch) {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	// First acquisition immediately, then on the tick.
	s.watchTick(ctx, w)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.watchTick(ctx, w)
		}
	}
}

func (s *Service) watchTick(ctx context.Context, w *watch) {
	if ctx.Err() != nil {
		return
	}

	pos, err := s.acquireForWatch(ctx, w)
	if err != nil {
		w.mu.Lock()
		w.errCount++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if w.lastFix != nil && w.opts.MinDistance > 0 {
		if distanceMeters(*w.lastFix, *pos) < w.opts.MinDistance {
			w.mu.Unlock()
			return
		}
	}
	w.lastFix = pos
	w.updates++
	w.mu.Unlock()

	s.publishPosition(s.activeProviderID(), w.id, pos)
}

// acquireForWatch acquires a fix without publishing; the caller publishes
// after the distance filter passes.
func (s *Service) acquireForWatch(ctx context.Context, w *watch) (*provider.Position, error) {
	start := time.Now()

	prov, providerID, err := s.registry.ActiveProvider()
	if err != nil {
		s.publishError(providerID, w.id, provider.ErrPositionUnavailable)
		return nil, provider.ErrPositionUnavailable
	}

	acquireCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	pos, err := prov.CurrentPosition(acquireCtx, provider.AcquireOptions{
		HighAccuracy: w.opts.HighAccuracy,
		Timeout:      w.opts.Timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			// The watch was stopped mid-acquisition; not a provider fault.
			return nil, ctx.Err()
		}
		normalized := provider.NormalizePlatformError(err, nil)
		s.audit.LogAction(ctx, "watchPosition", providerID, auditCode(normalized), time.Since(start))
		s.publishError(providerID, w.id, normalized)
		return nil, normalized
	}

	s.mu.Lock()
	s.last = LastKnown{Position: *pos, Known: true}
	s.mu.Unlock()

	return pos, nil
}

func (s *Service) activeProviderID() string {
	_, id, err := s.registry.ActiveProvider()
	if err != nil {
		return ""
	}
	return id
}

// distanceMeters computes the haversine distance between two fixes.
func distanceMeters(a, b provider.Position) float64 {
	const earthRadiusM = 6371000.0

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}
