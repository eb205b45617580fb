package geoloc

import (
	"time"

	"github.com/device-services/dsc/internal/config"
)

// Options control a position acquisition or a watch. Zero values inherit the
// configured defaults.
type Options struct {
	// HighAccuracy requests the best fix the provider can deliver at the
	// cost of acquisition time and power.
	HighAccuracy bool

	// Timeout bounds a single acquisition.
	Timeout time.Duration

	// MaximumAge allows a cached fix no older than this to satisfy a
	// one-shot acquisition without touching the provider.
	MaximumAge time.Duration

	// PollInterval is the acquisition cadence of a watch.
	PollInterval time.Duration

	// MinDistance suppresses watch updates that moved less than this many
	// meters from the last delivered fix. Zero inherits the configured
	// floor.
	MinDistance float64
}

// withDefaults fills zero fields from the geoloc configuration.
func (o Options) withDefaults(cfg config.GeolocConfig) Options {
	if o.Timeout <= 0 {
		o.Timeout = cfg.AcquireTimeout
	}
	if o.MaximumAge < 0 {
		o.MaximumAge = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = cfg.PollInterval
	}
	if o.MinDistance <= 0 {
		o.MinDistance = cfg.MinDistanceM
	}
	return o
}
