// Ports (interfaces) for the API server's dependencies.
package api

import (
	"context"
	"net/http"

	"github.com/device-services/dsc/internal/geoloc"
	"github.com/device-services/dsc/internal/provider"
	"github.com/device-services/dsc/internal/record"
	"github.com/device-services/dsc/internal/sync"
	"github.com/device-services/dsc/internal/telemetry"
)

// GeolocPort defines the minimal interface the API needs from the
// geolocation service.
type GeolocPort interface {
	Current(ctx context.Context, opts geoloc.Options) (*provider.Position, error)
	Last() geoloc.LastKnown
	StartWatch(ctx context.Context, opts geoloc.Options) (string, error)
	StopWatch(ctx context.Context, watchID string)
	Watches() []geoloc.WatchInfo
	Watch(watchID string) (geoloc.WatchInfo, bool)
}

// TelemetryPort defines the minimal interface the API needs from the event
// hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// RegistryPort defines the minimal interface for provider read and selection
// operations.
type RegistryPort interface {
	List() *provider.SourceList
	GetSource(providerID string) (*provider.Source, error)
	SetActive(providerID string) error
}

// RecordPort defines the minimal interface the API needs from the record
// store.
type RecordPort interface {
	Source(name string) *record.Collection
	Has(name string) bool
	Sources() []string
}

// SyncPort defines the minimal interface the API needs from the sync engine.
type SyncPort interface {
	SyncSource(ctx context.Context, source string) (*sync.Stats, error)
}

// Compile-time assertions for port conformance
var _ GeolocPort = (*geoloc.Service)(nil)
var _ TelemetryPort = (*telemetry.Hub)(nil)
var _ RegistryPort = (*provider.Registry)(nil)
var _ RecordPort = (*record.Store)(nil)
var _ SyncPort = (*sync.Engine)(nil)
