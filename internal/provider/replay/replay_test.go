package replay

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-services/dsc/internal/provider"
)

func testTrack() Track {
	return Track{
		Name: "berlin-walk",
		Fixes: []provider.Position{
			{Latitude: 52.5200, Longitude: 13.4050, Accuracy: 5},
			{Latitude: 52.5205, Longitude: 13.4060, Accuracy: 5},
			{Latitude: 52.5210, Longitude: 13.4070, Accuracy: 5},
		},
	}
}

func TestReplaySteppingOrder(t *testing.T) {
	rp := NewReplayProvider("replay", testTrack(), false)

	for i, want := range testTrack().Fixes {
		pos, err := rp.CurrentPosition(context.Background(), provider.AcquireOptions{})
		require.NoError(t, err, "fix %d", i)
		assert.Equal(t, want.Latitude, pos.Latitude)
		assert.Equal(t, want.Longitude, pos.Longitude)
		assert.True(t, pos.Known)
	}
}

func TestReplayExhaustion(t *testing.T) {
	rp := NewReplayProvider("replay", testTrack(), false)

	for range testTrack().Fixes {
		_, err := rp.CurrentPosition(context.Background(), provider.AcquireOptions{})
		require.NoError(t, err)
	}

	_, err := rp.CurrentPosition(context.Background(), provider.AcquireOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSITION_UNAVAILABLE")

	norm := provider.NormalizePlatformError(err, nil)
	assert.True(t, errors.Is(norm, provider.ErrPositionUnavailable))
}

func TestReplayLooping(t *testing.T) {
	rp := NewReplayProvider("replay", testTrack(), true)

	for i := 0; i < 2*len(testTrack().Fixes); i++ {
		want := testTrack().Fixes[i%len(testTrack().Fixes)]
		pos, err := rp.CurrentPosition(context.Background(), provider.AcquireOptions{})
		require.NoError(t, err)
		assert.Equal(t, want.Latitude, pos.Latitude, "fix %d", i)
	}
}

func TestReplayRewindAndRemaining(t *testing.T) {
	rp := NewReplayProvider("replay", testTrack(), false)
	assert.Equal(t, 3, rp.Remaining())

	_, err := rp.CurrentPosition(context.Background(), provider.AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, rp.Remaining())

	rp.Rewind()
	assert.Equal(t, 3, rp.Remaining())

	pos, err := rp.CurrentPosition(context.Background(), provider.AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, testTrack().Fixes[0].Latitude, pos.Latitude)
}

func TestReplayHonorsContext(t *testing.T) {
	rp := NewReplayProvider("replay", testTrack(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rp.CurrentPosition(ctx, provider.AcquireOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadTrackFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.json")
	data, err := json.Marshal(testTrack())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	track, err := LoadTrack(path)
	require.NoError(t, err)
	assert.Equal(t, "berlin-walk", track.Name)
	assert.Len(t, track.Fixes, 3)

	rp, err := NewReplayProviderFromFile("replay", path, false)
	require.NoError(t, err)
	assert.Equal(t, 3, rp.Remaining())
}

func TestLoadTrackErrors(t *testing.T) {
	_, err := LoadTrack(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"name":"x","fixes":[]}`), 0o644))
	_, err = LoadTrack(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fixes")
}
