// Package sync implements source synchronization for the Device Services
// Container.
//
// The engine pushes dirty records and deletion tombstones to the backend,
// adopts server-assigned IDs for created records, commits what the server
// accepted, then pulls the server snapshot and merges it into the local
// collections without overwriting uncommitted edits. Transient failures are
// retried with exponential backoff; 4xx responses fail the run immediately.
package sync
