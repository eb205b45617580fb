// Package record implements dirty-tracked data records for the Device
// Services Container.
//
// A Record is a string-keyed field bag that remembers which fields changed
// since the last Commit; any uncommitted write makes the record dirty.
// Collections group the records of one sync source, keep tombstones for
// deleted committed records, and notify observers of changes. The sync
// engine pushes dirty records and tombstones, then merges server state back
// through Upsert without clobbering local edits.
package record
