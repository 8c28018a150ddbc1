// Package overrides holds explicitly injected resources that take precedence
// over the virtual filesystem and the network.
package overrides

import (
	"sort"
	"sync"
	"time"
)

// Blob is one stored override.
type Blob struct {
	Data  []byte    `json:"data"`
	Type  string    `json:"type"`
	Added time.Time `json:"added"`
}

// Store maps normalized URL keys to blobs. It lives for the life of the process.
type Store struct {
	mu    sync.RWMutex
	files map[string]Blob
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{files: make(map[string]Blob)}
}

// Put stores b under key, replacing any previous blob.
func (s *Store) Put(key string, b Blob) {
	if b.Added.IsZero() {
		b.Added = time.Now().UTC()
	}
	s.mu.Lock()
	s.files[key] = b
	s.mu.Unlock()
}

// Get returns the blob under key.
func (s *Store) Get(key string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.files[key]
	return b, ok
}

// Lookup returns only the data under key.
func (s *Store) Lookup(key string) ([]byte, bool) {
	b, ok := s.Get(key)
	return b.Data, ok
}

// Remove deletes key and reports whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[key]
	delete(s.files, key)
	return ok
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Clear removes everything and returns how many blobs were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.files)
	s.files = make(map[string]Blob)
	return n
}
