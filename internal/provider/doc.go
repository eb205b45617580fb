// Package provider defines the location provider interface for the Device
// Services Container.
//
// Providers implement platform-specific acquisition (GPS, network, fused) and
// expose a stable ILocationProvider contract. Raw platform errors are
// normalized to PERMISSION_DENIED, POSITION_UNAVAILABLE, TIMEOUT or INTERNAL
// via table-driven mapping, preserving the original diagnostics.
package provider
