package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlatformErrorTokenTables(t *testing.T) {
	tests := []struct {
		platform string
		message  string
		want     error
	}{
		{"android", "SecurityException: ACCESS_FINE_LOCATION not granted", ErrPermissionDenied},
		{"android", "provider_disabled: gps", ErrPositionUnavailable},
		{"android", "location_timeout after 30s", ErrTimeout},
		{"android", "DEADLINE_EXCEEDED", ErrTimeout},
		{"ios", "kCLErrorDenied", ErrPermissionDenied},
		{"ios", "kCLErrorLocationUnknown", ErrPositionUnavailable},
		{"ios", "request_timed_out", ErrTimeout},
		{"generic", "FORBIDDEN by policy", ErrPermissionDenied},
		{"generic", "no_fix available", ErrPositionUnavailable},
		{"generic", "context deadline exceeded", ErrTimeout},
		{"generic", "something exploded", ErrInternal},
		// Unknown platforms fall back to the generic table.
		{"windows", "TIMED_OUT", ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.platform+"/"+tt.message, func(t *testing.T) {
			raw := errors.New(tt.message)
			err := NormalizePlatformErrorWithPlatform(raw, nil, tt.platform)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)

			var pe *PlatformError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, raw, pe.Original)
		})
	}
}

func TestNormalizePlatformErrorNil(t *testing.T) {
	assert.NoError(t, NormalizePlatformError(nil, nil))
}

func TestNormalizePlatformErrorKeepsPayload(t *testing.T) {
	payload := map[string]interface{}{"raw": 42}
	err := NormalizePlatformError(errors.New("TIMEOUT"), payload)

	var pe *PlatformError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, payload, pe.Details)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "PERMISSION_DENIED", CodeOf(ErrPermissionDenied))
	assert.Equal(t, "POSITION_UNAVAILABLE", CodeOf(fmt.Errorf("wrapped: %w", ErrPositionUnavailable)))
	assert.Equal(t, "TIMEOUT", CodeOf(NormalizePlatformError(errors.New("TIMED_OUT"), nil)))
	assert.Equal(t, "INTERNAL", CodeOf(errors.New("anything else")))
}
