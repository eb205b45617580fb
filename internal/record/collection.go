package record

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Observer receives change notifications from a collection.
type Observer interface {
	OnChange(source, recordID string, kind ChangeKind)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(source, recordID string, kind ChangeKind)

func (f ObserverFunc) OnChange(source, recordID string, kind ChangeKind) {
	f(source, recordID, kind)
}

// Collection holds the records of a single sync source. Deleted committed
// records are kept as tombstones until the deletion is committed, so a sync
// push can propagate them to the server.
type Collection struct {
	mu         sync.RWMutex
	name       string
	records    map[string]*Record
	tombstones map[string]*Record
	observers  []Observer
}

// NewCollection creates an empty collection for the named source.
func NewCollection(name string) *Collection {
	return &Collection{
		name:       name,
		records:    make(map[string]*Record),
		tombstones: make(map[string]*Record),
	}
}

// Name returns the source name the collection belongs to.
func (c *Collection) Name() string {
	return c.name
}

// AddObserver registers an observer for record change notifications.
func (c *Collection) AddObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

func (c *Collection) notify(recordID string, kind ChangeKind) {
	c.mu.RLock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.RUnlock()

	for _, obs := range observers {
		obs.OnChange(c.name, recordID, kind)
	}
}

// Create adds a new record with a generated ID. The record starts dirty with
// every initial field pending.
func (c *Collection) Create(fields map[string]string) *Record {
	id := uuid.NewString()
	rec := newRecord(id, fields)

	c.mu.Lock()
	c.records[id] = rec
	c.mu.Unlock()

	c.notify(id, ChangeCreated)
	return rec
}

// Get returns the record with the given ID.
func (c *Collection) Get(id string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// All returns the live records sorted by ID.
func (c *Collection) All() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of live records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Update applies field writes to an existing record.
func (c *Collection) Update(id string, fields map[string]string) (*Record, error) {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("record %s not found in %s", id, c.name)
	}

	changed := false
	for k, v := range fields {
		if current, ok := rec.Get(k); !ok || current != v {
			changed = true
		}
		rec.Set(k, v)
	}
	if changed {
		c.notify(id, ChangeUpdated)
	}
	return rec, nil
}

// Delete removes a record. A record that was committed at least once becomes
// a tombstone so the deletion survives until the next sync push; a record
// that was never committed vanishes.
func (c *Collection) Delete(id string) error {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("record %s not found in %s", id, c.name)
	}
	delete(c.records, id)
	if !rec.IsNew() {
		c.tombstones[id] = rec
	}
	c.mu.Unlock()

	c.notify(id, ChangeDeleted)
	return nil
}

// Dirty returns the live records with uncommitted writes, sorted by ID.
func (c *Collection) Dirty() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Record
	for _, rec := range c.records {
		if rec.Dirty() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Tombstones returns the IDs of deleted committed records awaiting a sync
// push, sorted.
func (c *Collection) Tombstones() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.tombstones))
	for id := range c.tombstones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CommitAll commits every dirty record and drops all tombstones.
func (c *Collection) CommitAll() {
	c.mu.Lock()
	for _, rec := range c.records {
		if rec.Dirty() {
			rec.Commit()
		}
	}
	c.tombstones = make(map[string]*Record)
	c.mu.Unlock()
}

// Commit commits a single record and, for a tombstone, finalizes the
// deletion.
func (c *Collection) Commit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[id]; ok {
		rec.Commit()
		return nil
	}
	if _, ok := c.tombstones[id]; ok {
		delete(c.tombstones, id)
		return nil
	}
	return fmt.Errorf("record %s not found in %s", id, c.name)
}

// RejectAll discards uncommitted writes on every record, removes records
// that were never committed, and restores tombstoned records.
func (c *Collection) RejectAll() {
	c.mu.Lock()
	var removed []string
	for id, rec := range c.records {
		if rec.IsNew() {
			delete(c.records, id)
			removed = append(removed, id)
			continue
		}
		rec.Reject()
	}
	var restored []string
	for id, rec := range c.tombstones {
		rec.Reject()
		c.records[id] = rec
		restored = append(restored, id)
	}
	c.tombstones = make(map[string]*Record)
	c.mu.Unlock()

	for _, id := range removed {
		c.notify(id, ChangeDeleted)
	}
	for _, id := range restored {
		c.notify(id, ChangeCreated)
	}
}

// Reject discards uncommitted writes on a single record. A never-committed
// record is removed; a tombstoned record is restored.
func (c *Collection) Reject(id string) error {
	c.mu.Lock()
	if rec, ok := c.records[id]; ok {
		if rec.IsNew() {
			delete(c.records, id)
			c.mu.Unlock()
			c.notify(id, ChangeDeleted)
			return nil
		}
		rec.Reject()
		c.mu.Unlock()
		return nil
	}
	if rec, ok := c.tombstones[id]; ok {
		rec.Reject()
		c.records[id] = rec
		delete(c.tombstones, id)
		c.mu.Unlock()
		c.notify(id, ChangeCreated)
		return nil
	}
	c.mu.Unlock()
	return fmt.Errorf("record %s not found in %s", id, c.name)
}

// Remap moves a record from a locally generated ID to the server-assigned
// one after a sync push.
func (c *Collection) Remap(oldID, newID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[oldID]
	if !ok {
		return fmt.Errorf("record %s not found in %s", oldID, c.name)
	}
	if _, taken := c.records[newID]; taken {
		return fmt.Errorf("record ID %s already present in %s", newID, c.name)
	}
	delete(c.records, oldID)
	rec.setID(newID)
	c.records[newID] = rec
	return nil
}

// Upsert merges server state during a sync pull. An unknown ID becomes a
// committed record; a known record keeps its locally modified fields and
// takes the server value for everything else. Tombstoned IDs are ignored so
// a local deletion is not resurrected by a pull.
func (c *Collection) Upsert(id string, fields map[string]string) *Record {
	c.mu.Lock()
	if _, deleted := c.tombstones[id]; deleted {
		c.mu.Unlock()
		return nil
	}
	rec, ok := c.records[id]
	if !ok {
		rec = restoredRecord(id, fields)
		c.records[id] = rec
		c.mu.Unlock()
		c.notify(id, ChangeCreated)
		return rec
	}
	c.mu.Unlock()

	rec.applyRemote(fields)
	c.notify(id, ChangeUpdated)
	return rec
}

// RemoveCommitted drops a record without tombstoning, used when a sync pull
// reports a server-side deletion.
func (c *Collection) RemoveCommitted(id string) bool {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok || rec.Dirty() {
		// A record with local writes is kept; the next push resolves it.
		c.mu.Unlock()
		return false
	}
	delete(c.records, id)
	c.mu.Unlock()

	c.notify(id, ChangeDeleted)
	return true
}
