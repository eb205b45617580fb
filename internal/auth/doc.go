// Package auth implements JWT bearer authentication for the Device Services
// Container.
//
// Tokens are verified with HS256 or RS256 (static PEM key or a cached JWKS
// endpoint). Verified claims carry roles and scopes; the read scope covers
// position and record reads, control covers watches, record writes and sync
// triggers, and events covers the SSE stream. The health endpoint is always
// reachable without a token.
package auth
