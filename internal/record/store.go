package record

import "sync"

// Store holds the collections of all configured sync sources.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewStore creates a store, pre-creating a collection per source name.
func NewStore(sources ...string) *Store {
	s := &Store{collections: make(map[string]*Collection, len(sources))}
	for _, name := range sources {
		s.collections[name] = NewCollection(name)
	}
	return s
}

// Source returns the collection for a source name, creating it on first use.
func (s *Store) Source(name string) *Collection {
	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok = s.collections[name]; ok {
		return col
	}
	col = NewCollection(name)
	s.collections[name] = col
	return col
}

// Has reports whether a source collection exists.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

// Sources returns the configured source names.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	return names
}
