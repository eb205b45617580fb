// Package geoloc implements the geolocation service for the Device Services
// Container.
//
// The service performs one-shot acquisitions against the active provider
// with a freshness cache, runs polling watches with a minimum-distance
// filter, and keeps the last-known fix. Acquisition results and errors are
// published on the geoloc event stream and written to the audit log.
package geoloc
