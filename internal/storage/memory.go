package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage keeps archives in process memory. Used when no storage
// account is configured and in tests. Archives do not survive restarts.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ StorageInterface = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

// Store saves a copy of data under filename, replacing any previous blob.
func (s *MemoryStorage) Store(filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[filename] = buf
	return nil
}

// Retrieve returns the blob stored under filename.
func (s *MemoryStorage) Retrieve(filename string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[filename]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", filename)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// List returns the names of blobs whose name starts with prefix, sorted.
func (s *MemoryStorage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the blob stored under filename.
func (s *MemoryStorage) Delete(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[filename]; !ok {
		return fmt.Errorf("blob %s not found", filename)
	}
	delete(s.blobs, filename)
	return nil
}
