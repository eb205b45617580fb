// Package telemetry implements the event fan-out layer for the Device
// Services Container.
//
// The Hub distributes position, record and sync events to SSE subscribers,
// keeps a bounded per-stream replay buffer keyed by monotonic event IDs, and
// emits heartbeats while at least one client is connected. Clients resume
// after a disconnect by sending the Last-Event-ID header.
package telemetry
