// Package replay provides a location provider that replays a recorded track.
//
// A track is a JSON array of fixes. Replay is used for demos and integration
// tests where deterministic movement is required without platform hardware.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/device-services/dsc/internal/provider"
)

// Track is an ordered sequence of recorded fixes.
type Track struct {
	Name  string              `json:"name"`
	Fixes []provider.Position `json:"fixes"`
}

// ReplayProvider implements ILocationProvider by stepping through a track.
type ReplayProvider struct {
	provider.ProviderBase

	mu    sync.Mutex
	track Track
	next  int
	loop  bool
}

// NewReplayProvider creates a replay provider from an in-memory track.
func NewReplayProvider(providerID string, track Track, loop bool) *ReplayProvider {
	return &ReplayProvider{
		ProviderBase: provider.ProviderBase{
			ProviderID: providerID,
			Kind:       "replay",
			Status:     "online",
		},
		track: track,
		loop:  loop,
	}
}

// LoadTrack reads a track from a JSON file.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("failed to read track file: %w", err)
	}

	var track Track
	if err := json.Unmarshal(data, &track); err != nil {
		return Track{}, fmt.Errorf("failed to parse track file %s: %w", path, err)
	}
	if len(track.Fixes) == 0 {
		return Track{}, fmt.Errorf("track %s contains no fixes", path)
	}

	return track, nil
}

// NewReplayProviderFromFile creates a replay provider backed by a track file.
func NewReplayProviderFromFile(providerID, path string, loop bool) (*ReplayProvider, error) {
	track, err := LoadTrack(path)
	if err != nil {
		return nil, err
	}
	return NewReplayProvider(providerID, track, loop), nil
}

// CurrentPosition returns the next fix on the track. When the track is
// exhausted and looping is off, it reports POSITION_UNAVAILABLE.
func (r *ReplayProvider) CurrentPosition(ctx context.Context, opts provider.AcquireOptions) (*provider.Position, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.track.Fixes) {
		if !r.loop {
			return nil, fmt.Errorf("POSITION_UNAVAILABLE: track %s exhausted", r.track.Name)
		}
		r.next = 0
	}

	fix := r.track.Fixes[r.next]
	fix.Known = true
	r.next++

	return &fix, nil
}

// Capabilities returns what this provider can deliver.
func (r *ReplayProvider) Capabilities(ctx context.Context) (*provider.ProviderCapabilities, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &provider.ProviderCapabilities{
		SupportsHighAccuracy: true,
		SupportsHeading:      true,
		SupportsSpeed:        true,
		TypicalAccuracyM:     5.0,
	}, nil
}

// Rewind resets the replay position to the start of the track.
func (r *ReplayProvider) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
}

// Remaining returns how many fixes are left before the track is exhausted.
func (r *ReplayProvider) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.track.Fixes) - r.next
}
