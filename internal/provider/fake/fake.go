// Package fake provides a fake location provider implementation for testing.
//
// Any provider (including platform-backed ones) must pass the conformance
// suite in internal/providertest; the fake is the reference implementation.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/device-services/dsc/internal/provider"
)

// FakeProvider implements ILocationProvider for testing purposes.
type FakeProvider struct {
	provider.ProviderBase

	mu sync.Mutex

	// Current fix returned by CurrentPosition
	fix provider.Position

	// Acquisition latency simulation
	acquireDelay time.Duration

	// Error simulation
	simulateErrors bool
	errorType      string

	// Number of acquisitions performed
	acquisitions int
}

// NewFakeProvider creates a new fake provider for testing.
func NewFakeProvider(providerID string) *FakeProvider {
	return &FakeProvider{
		ProviderBase: provider.ProviderBase{
			ProviderID: providerID,
			Kind:       "fake",
			Status:     "online",
		},
		fix: provider.Position{
			Latitude:  52.5200,
			Longitude: 13.4050,
			Accuracy:  12.0,
			Timestamp: time.Now(),
			Known:     true,
		},
	}
}

// CurrentPosition acquires a single fix honoring the given options.
func (f *FakeProvider) CurrentPosition(ctx context.Context, opts provider.AcquireOptions) (*provider.Position, error) {
	f.mu.Lock()
	delay := f.acquireDelay
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.acquisitions++

	if f.simulateErrors {
		return nil, f.getSimulatedError()
	}

	fix := f.fix
	fix.Timestamp = time.Now()
	if opts.HighAccuracy {
		fix.Accuracy = fix.Accuracy / 2
	}
	return &fix, nil
}

// Capabilities returns what this provider can deliver.
func (f *FakeProvider) Capabilities(ctx context.Context) (*provider.ProviderCapabilities, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.simulateErrors {
		return nil, f.getSimulatedError()
	}

	return &provider.ProviderCapabilities{
		SupportsHighAccuracy: true,
		SupportsHeading:      true,
		SupportsSpeed:        true,
		TypicalAccuracyM:     12.0,
	}, nil
}

// Helper methods for testing

// SetFix sets the fix returned by subsequent acquisitions.
func (f *FakeProvider) SetFix(fix provider.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fix.Known = true
	f.fix = fix
}

// SetAcquireDelay simulates acquisition latency.
func (f *FakeProvider) SetAcquireDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireDelay = d
}

// SetErrorSimulation enables error simulation for testing.
func (f *FakeProvider) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
}

// DisableErrorSimulation disables error simulation.
func (f *FakeProvider) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
}

// Acquisitions returns how many acquisitions were performed.
func (f *FakeProvider) Acquisitions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquisitions
}

// getSimulatedError returns a simulated error based on the configured type.
func (f *FakeProvider) getSimulatedError() error {
	switch f.errorType {
	case "PERMISSION_DENIED":
		return fmt.Errorf("PERMISSION_DENIED: simulated permission error")
	case "POSITION_UNAVAILABLE":
		return fmt.Errorf("POSITION_UNAVAILABLE: simulated no-fix error")
	case "TIMEOUT":
		return fmt.Errorf("TIMEOUT: simulated acquisition timeout")
	case "INTERNAL":
		return fmt.Errorf("INTERNAL: simulated internal error")
	default:
		return fmt.Errorf("INTERNAL: unknown simulated error")
	}
}
