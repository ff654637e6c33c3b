package cache

import (
	"sync"
	"time"
)

// Store is a TTL-bounded key/value store.
//
// The in-memory implementation below is the default; the interface exists so
// a shared backend (e.g. Redis) can be swapped in without touching callers.
// Writes may fail on a remote backend, so Set returns an error even though
// the memory implementation never produces one.
type Store interface {
	// Set stores a value under key, replacing any existing value.
	// The entry expires after ttl.
	Set(key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or false if absent or expired.
	Get(key string) ([]byte, bool)

	// Delete removes the entry for key. Removing a missing key is a no-op.
	Delete(key string)
}

// defaultSweepInterval is how often the janitor removes expired entries.
// Expiry is also checked lazily on Get, so the sweep only bounds memory.
const defaultSweepInterval = 30 * time.Second

// entry is a stored value with its expiry deadline.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process TTL key/value store.
//
// All methods are safe for concurrent use. Expired entries are invisible to
// Get immediately after their deadline passes; physical removal happens on
// the next Get for that key or on the periodic janitor sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore creates a memory store and starts its janitor goroutine.
// Call Close to stop the janitor when the store is no longer needed.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Set stores value under key with the given ttl.
// A non-positive ttl stores an already-expired entry, which is never visible.
func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	// Copy so the caller can reuse its buffer
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.entries[key] = entry{
		value:     v,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Get returns the value for key, or false if absent or expired.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		// Lazy removal; the janitor would get it eventually anyway
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of stored entries, including not-yet-swept expired ones.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor goroutine. The store remains usable afterwards,
// but expired entries are then only removed lazily on Get.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// janitor periodically removes expired entries to bound memory use.
func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
