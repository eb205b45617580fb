package geoloc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/device-services/dsc/internal/config"
)

func TestOptionsWithDefaults(t *testing.T) {
	cfg := config.GeolocConfig{
		PollInterval:   15 * time.Second,
		AcquireTimeout: 10 * time.Second,
		MaximumAge:     30 * time.Second,
		MinDistanceM:   25,
	}

	t.Run("zero values inherit config", func(t *testing.T) {
		o := Options{}.withDefaults(cfg)

		assert.Equal(t, 10*time.Second, o.Timeout)
		assert.Equal(t, 15*time.Second, o.PollInterval)
		assert.Equal(t, 25.0, o.MinDistance)
		// MaximumAge is the exception: zero means a fresh fix, the
		// configured default is applied by the HTTP layer.
		assert.Equal(t, time.Duration(0), o.MaximumAge)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		o := Options{
			Timeout:      time.Second,
			PollInterval: 2 * time.Second,
			MinDistance:  5,
			MaximumAge:   time.Minute,
		}.withDefaults(cfg)

		assert.Equal(t, time.Second, o.Timeout)
		assert.Equal(t, 2*time.Second, o.PollInterval)
		assert.Equal(t, 5.0, o.MinDistance)
		assert.Equal(t, time.Minute, o.MaximumAge)
	})

	t.Run("negative maximum age clamped", func(t *testing.T) {
		o := Options{MaximumAge: -time.Second}.withDefaults(cfg)
		assert.Equal(t, time.Duration(0), o.MaximumAge)
	})
}
