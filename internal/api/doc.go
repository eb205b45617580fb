// Package api implements the HTTP API for the Device Services Container.
//
// All endpoints live under /api/v1 and answer with a unified JSON envelope
// carrying a correlation ID. Position, provider, watch, record and sync
// operations require bearer authentication with the matching scope; the SSE
// event stream requires the events scope; /health is always open.
package api
