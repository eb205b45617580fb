package record

import (
	"sort"
	"sync"
)

// ChangeKind classifies a record mutation reported to observers.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Record is a string-keyed field bag with change tracking. Every field write
// since the last Commit is remembered; a record with pending writes is dirty.
// Commit snapshots the current fields as the new baseline, Reject restores
// the last committed snapshot.
type Record struct {
	mu sync.RWMutex

	id        string
	fields    map[string]string
	committed map[string]string
	modified  map[string]struct{}
	dirty     bool
	isNew     bool // never committed
}

// newRecord builds a record from initial fields. It starts dirty with every
// field pending until the first Commit.
func newRecord(id string, fields map[string]string) *Record {
	r := &Record{
		id:        id,
		fields:    make(map[string]string, len(fields)),
		committed: make(map[string]string),
		modified:  make(map[string]struct{}, len(fields)),
		isNew:     true,
	}
	for k, v := range fields {
		r.fields[k] = v
		r.modified[k] = struct{}{}
	}
	r.dirty = true
	return r
}

// restoredRecord builds an already-committed record, used when loading
// server state during a sync pull.
func restoredRecord(id string, fields map[string]string) *Record {
	r := &Record{
		id:        id,
		fields:    make(map[string]string, len(fields)),
		committed: make(map[string]string, len(fields)),
		modified:  make(map[string]struct{}),
	}
	for k, v := range fields {
		r.fields[k] = v
		r.committed[k] = v
	}
	return r
}

// ID returns the record identifier.
func (r *Record) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// Get returns a field value and whether the field is present.
func (r *Record) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.fields[name]
	return v, ok
}

// Has reports whether a field is present.
func (r *Record) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fields[name]
	return ok
}

// Set writes a field value. A write that changes the stored value marks the
// field modified and the record dirty; rewriting the identical value is a
// no-op.
func (r *Record) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.fields[name]; ok && current == value {
		return
	}
	r.fields[name] = value
	r.modified[name] = struct{}{}
	r.dirty = true
}

// Unset removes a field. Removing a present field marks it modified and the
// record dirty; removing an absent field is a no-op.
func (r *Record) Unset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fields[name]; !ok {
		return
	}
	delete(r.fields, name)
	r.modified[name] = struct{}{}
	r.dirty = true
}

// Fields returns a copy of the current field bag.
func (r *Record) Fields() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Dirty reports whether the record has uncommitted writes.
func (r *Record) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// Modified returns the sorted names of fields written since the last Commit.
// A non-empty result implies Dirty.
func (r *Record) Modified() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modified))
	for name := range r.modified {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsModified reports whether a specific field has an uncommitted write.
func (r *Record) IsModified(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modified[name]
	return ok
}

// Changes returns the current values of modified fields. Fields removed by
// Unset appear in Modified but not here.
func (r *Record) Changes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.modified))
	for name := range r.modified {
		if v, ok := r.fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// IsNew reports whether the record has never been committed.
func (r *Record) IsNew() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isNew
}

// Commit snapshots the current fields as the committed baseline and clears
// the dirty flag and the modified set.
func (r *Record) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitLocked()
}

func (r *Record) commitLocked() {
	r.committed = make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		r.committed[k] = v
	}
	r.modified = make(map[string]struct{})
	r.dirty = false
	r.isNew = false
}

// Reject discards uncommitted writes and restores the committed snapshot,
// clearing the dirty flag and the modified set. Rejecting a record that was
// never committed leaves it with an empty field bag; the owning collection
// removes such records entirely.
func (r *Record) Reject() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectLocked()
}

func (r *Record) rejectLocked() {
	r.fields = make(map[string]string, len(r.committed))
	for k, v := range r.committed {
		r.fields[k] = v
	}
	r.modified = make(map[string]struct{})
	r.dirty = false
}

// setID is used by the owning collection to remap a locally generated ID to
// the server-assigned one after a sync push.
func (r *Record) setID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

// applyRemote merges server fields into a record during a sync pull. Fields
// with uncommitted local writes keep their local value; all other fields take
// the server value and enter the committed baseline.
func (r *Record) applyRemote(fields map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range fields {
		if _, locallyModified := r.modified[k]; locallyModified {
			continue
		}
		r.fields[k] = v
		r.committed[k] = v
	}
	// Committed fields the server dropped disappear unless locally modified.
	for k := range r.committed {
		if _, ok := fields[k]; ok {
			continue
		}
		if _, locallyModified := r.modified[k]; locallyModified {
			continue
		}
		delete(r.committed, k)
		delete(r.fields, k)
	}
	r.isNew = false
	r.dirty = len(r.modified) > 0
}
