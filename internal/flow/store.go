package flow

import "sync"

// SharedStore is the mutable key/value state threaded through a flow run.
// Nodes share state by convention: each reads and writes only the keys it
// owns or is documented to share with its neighbours.
type SharedStore interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (any, bool)
	// GetOr returns the value for key, or def when absent.
	GetOr(key string, def any) any
	// Set writes key. Implementations may hook writes (e.g. to persist).
	Set(key string, value any)
	// Delete removes key if present.
	Delete(key string)
	// Len returns the number of stored keys.
	Len() int
	// Keys returns a copy of all stored keys, unordered.
	Keys() []string
	// Snapshot returns a shallow copy of the full contents.
	Snapshot() map[string]any
}

// MemoryStore is the plain in-memory SharedStore. The mutex guards map
// access when flows run concurrently against one store; value-level races
// between runs resolve last-write-wins, which callers accept because cache
// entries are idempotent recomputation rather than authoritative state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]any)}
}

func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStore) GetOr(key string, def any) any {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

func (s *MemoryStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
