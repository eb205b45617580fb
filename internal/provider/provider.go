// Package provider defines the southbound contract between the container and
// platform location sources (GPS, network, fused providers).
package provider

import (
	"context"
	"time"
)

// Position represents a single location fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Known is false for the zero value, before any fix has been acquired.
	Known bool `json:"known"`
}

// AcquireOptions control a single acquisition attempt.
type AcquireOptions struct {
	// HighAccuracy requests the most precise source the platform offers,
	// at the cost of power and latency.
	HighAccuracy bool

	// Timeout bounds the acquisition. Zero means the provider default.
	Timeout time.Duration
}

// ProviderCapabilities describes what a location source can deliver.
type ProviderCapabilities struct {
	SupportsHighAccuracy bool    `json:"supportsHighAccuracy"`
	SupportsHeading      bool    `json:"supportsHeading"`
	SupportsSpeed        bool    `json:"supportsSpeed"`
	TypicalAccuracyM     float64 `json:"typicalAccuracyM"`
}

// ILocationProvider defines the stable southbound provider contract.
type ILocationProvider interface {
	// CurrentPosition acquires a single fix honoring the given options.
	CurrentPosition(ctx context.Context, opts AcquireOptions) (*Position, error)

	// Capabilities returns what this provider can deliver.
	Capabilities(ctx context.Context) (*ProviderCapabilities, error)
}

// ProviderBase provides common functionality for provider implementations.
type ProviderBase struct {
	// ProviderID identifies the location source
	ProviderID string

	// Kind identifies the source type (gps, network, fused, replay, fake)
	Kind string

	// Status indicates the current provider status
	Status string
}

// GetProviderID returns the provider identifier.
func (p *ProviderBase) GetProviderID() string {
	return p.ProviderID
}

// GetKind returns the provider kind.
func (p *ProviderBase) GetKind() string {
	return p.Kind
}

// GetStatus returns the provider status.
func (p *ProviderBase) GetStatus() string {
	return p.Status
}

// SetStatus updates the provider status.
func (p *ProviderBase) SetStatus(status string) {
	p.Status = status
}
