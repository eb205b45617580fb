package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/audit"
	"github.com/device-services/dsc/internal/config"
	"github.com/device-services/dsc/internal/record"
	"github.com/device-services/dsc/internal/telemetry"
)

// AuditLogger is the subset of the audit logger the engine needs.
type AuditLogger interface {
	LogDetailedAction(ctx context.Context, action, subject string, params map[string]interface{}, err error, latency time.Duration)
}

// Compile-time assertion that audit.Logger implements AuditLogger
var _ AuditLogger = (*audit.Logger)(nil)

// Stats summarizes one sync run of a single source.
type Stats struct {
	Source   string        `json:"source"`
	Pushed   int           `json:"pushed"`
	Pulled   int           `json:"pulled"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Engine synchronizes record collections with the backend: dirty records and
// tombstones are pushed first, then the server snapshot is pulled and merged
// without clobbering local edits.
type Engine struct {
	store  *record.Store
	client *Client
	hub    *telemetry.Hub
	audit  AuditLogger
	cfg    config.SyncConfig
	logger *zap.Logger
}

// NewEngine creates a sync engine over the given store.
func NewEngine(store *record.Store, client *Client, hub *telemetry.Hub, auditLogger AuditLogger, cfg config.SyncConfig, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		client: client,
		hub:    hub,
		audit:  auditLogger,
		cfg:    cfg,
		logger: logger,
	}
}

// SyncSource runs one full push-then-pull cycle for a source.
func (e *Engine) SyncSource(ctx context.Context, source string) (*Stats, error) {
	if !e.store.Has(source) {
		return nil, fmt.Errorf("unknown sync source %q", source)
	}

	start := time.Now()
	stats := &Stats{Source: source}

	e.publish(telemetry.EventSyncStarted, map[string]interface{}{"source": source})

	col := e.store.Source(source)

	pushed, err := e.push(ctx, col)
	if err != nil {
		return e.fail(ctx, source, stats, start, fmt.Errorf("push failed: %w", err))
	}
	stats.Pushed = pushed

	pulled, removed, err := e.pull(ctx, col)
	if err != nil {
		return e.fail(ctx, source, stats, start, fmt.Errorf("pull failed: %w", err))
	}
	stats.Pulled = pulled
	stats.Removed = removed
	stats.Duration = time.Since(start)

	e.audit.LogDetailedAction(ctx, "syncSource", source, map[string]interface{}{
		"pushed": stats.Pushed,
		"pulled": stats.Pulled,
	}, nil, stats.Duration)

	e.publish(telemetry.EventSyncCompleted, map[string]interface{}{
		"source":  source,
		"pushed":  stats.Pushed,
		"pulled":  stats.Pulled,
		"removed": stats.Removed,
	})

	e.logger.Info("source synchronized",
		zap.String("source", source),
		zap.Int("pushed", stats.Pushed),
		zap.Int("pulled", stats.Pulled),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// SyncAll syncs every configured source, continuing past per-source faults.
func (e *Engine) SyncAll(ctx context.Context) []*Stats {
	var out []*Stats
	for _, source := range e.cfg.Sources {
		stats, err := e.SyncSource(ctx, source)
		if err != nil {
			e.logger.Warn("sync failed", zap.String("source", source), zap.Error(err))
			continue
		}
		out = append(out, stats)
	}
	return out
}

// Run syncs all sources on the configured interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SyncAll(ctx)
		}
	}
}

func (e *Engine) fail(ctx context.Context, source string, stats *Stats, start time.Time, err error) (*Stats, error) {
	stats.Duration = time.Since(start)

	e.audit.LogDetailedAction(ctx, "syncSource", source, nil, err, stats.Duration)
	e.publish(telemetry.EventSyncFault, map[string]interface{}{
		"source":  source,
		"message": err.Error(),
	})

	return nil, err
}

// push uploads dirty records and tombstones, remaps server-assigned IDs and
// commits exactly the snapshot it uploaded. Records written or deleted while
// the push is in flight stay dirty for the next run.
func (e *Engine) push(ctx context.Context, col *record.Collection) (int, error) {
	req := PushRequest{Deleted: col.Tombstones()}

	dirty := col.Dirty()
	for _, rec := range dirty {
		wire := WireRecord{ID: rec.ID(), Fields: rec.Fields()}
		if rec.IsNew() {
			req.Created = append(req.Created, wire)
		} else {
			req.Updated = append(req.Updated, wire)
		}
	}

	total := len(req.Created) + len(req.Updated) + len(req.Deleted)
	if total == 0 {
		return 0, nil
	}

	resp, err := retry.DoWithData(
		func() (*PushResponse, error) { return e.client.Push(ctx, col.Name(), req) },
		retry.Context(ctx),
		retry.Attempts(e.cfg.Attempts),
		retry.RetryIf(Retryable),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, err
	}

	// Adopt server IDs for created records before committing.
	for localID, serverID := range resp.IDMap {
		if localID == serverID {
			continue
		}
		if err := col.Remap(localID, serverID); err != nil {
			e.logger.Warn("failed to remap record ID",
				zap.String("source", col.Name()),
				zap.String("localId", localID),
				zap.String("serverId", serverID),
				zap.Error(err))
		}
	}

	for _, rec := range dirty {
		rec.Commit()
	}
	for _, id := range req.Deleted {
		if err := col.Commit(id); err != nil {
			e.logger.Warn("failed to finalize pushed deletion",
				zap.String("source", col.Name()),
				zap.String("recordId", id),
				zap.Error(err))
		}
	}

	e.publishRecordChanges(col.Name(), dirty)

	return total, nil
}

// pull downloads the server snapshot and merges it into the collection.
func (e *Engine) pull(ctx context.Context, col *record.Collection) (int, int, error) {
	resp, err := retry.DoWithData(
		func() (*PullResponse, error) { return e.client.Pull(ctx, col.Name()) },
		retry.Context(ctx),
		retry.Attempts(e.cfg.Attempts),
		retry.RetryIf(Retryable),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, 0, err
	}

	pulled := 0
	for _, wire := range resp.Records {
		if rec := col.Upsert(wire.ID, wire.Fields); rec != nil {
			pulled++
		}
	}

	removed := 0
	for _, id := range resp.Deleted {
		if col.RemoveCommitted(id) {
			removed++
		}
	}

	return pulled, removed, nil
}

func (e *Engine) publish(eventType string, data map[string]interface{}) {
	if err := e.hub.PublishStream(telemetry.StreamSync, telemetry.Event{
		Type: eventType,
		Data: data,
	}); err != nil {
		e.logger.Warn("failed to publish sync event", zap.Error(err))
	}
}

func (e *Engine) publishRecordChanges(source string, pushed []*record.Record) {
	for _, rec := range pushed {
		if err := e.hub.PublishStream(telemetry.StreamData, telemetry.Event{
			Type: telemetry.EventRecordChanged,
			Data: map[string]interface{}{
				"source":   source,
				"recordId": rec.ID(),
				"kind":     "committed",
			},
		}); err != nil {
			e.logger.Warn("failed to publish record change event", zap.Error(err))
		}
	}
}
