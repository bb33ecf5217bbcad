package persistence

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory KeyValueStore and ImportLog for tests and for
// running without a database file.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	imports []ImportRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(value), nil
}

// Put stores a copy of value under key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = slices.Clone(value)
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

// List returns the keys with the given prefix in lexical order.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// RecordImport appends record to the history.
func (s *MemoryStore) RecordImport(_ context.Context, record ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.imports = append(s.imports, record)
	return nil
}

// ListImports returns matching records, newest first.
func (s *MemoryStore) ListImports(_ context.Context, eventID, scheduleID string, limit int) ([]ImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ImportRecord
	for i := len(s.imports) - 1; i >= 0; i-- {
		record := s.imports[i]
		if record.EventID != eventID || (scheduleID != "" && record.ScheduleID != scheduleID) {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ImportedAt.After(out[j].ImportedAt)
	})
	return out, nil
}
