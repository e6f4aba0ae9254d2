package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory implementation of a Store, used for tests and
// for chains that don't need to outlive the process.
type MemoryStore struct {
	mut sync.RWMutex
	mem map[string][]byte
}

// NewMemoryStore creates a new MemoryStore object.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mem: make(map[string][]byte),
	}
}

// Get implements the Store interface.
func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	if val, ok := s.mem[string(key)]; ok && val != nil {
		return val, nil
	}
	return nil, ErrKeyNotFound
}

// PutChangeSet implements the Store interface. Never returns an error.
func (s *MemoryStore) PutChangeSet(changes map[string][]byte) error {
	s.mut.Lock()
	for k, v := range changes {
		if v == nil {
			delete(s.mem, k)
			continue
		}
		s.mem[k] = v
	}
	s.mut.Unlock()
	return nil
}

// Seek implements the Store interface.
func (s *MemoryStore) Seek(prefix []byte, f func(k, v []byte) bool) {
	s.mut.RLock()
	kvs := collect(s.mem, string(prefix))
	s.mut.RUnlock()
	for _, kv := range kvs {
		if !f(kv.Key, kv.Value) {
			return
		}
	}
}

// Close implements Store interface and clears up memory. Never returns an
// error.
func (s *MemoryStore) Close() error {
	s.mut.Lock()
	s.mem = nil
	s.mut.Unlock()
	return nil
}

// KeyValue represents key-value pair.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// collect returns the sorted non-deleted pairs of m under prefix, it's
// supposed to be called with the mutex locked.
func collect(m map[string][]byte, prefix string) []KeyValue {
	var kvs []KeyValue
	for k, v := range m {
		if v != nil && strings.HasPrefix(k, prefix) {
			kvs = append(kvs, KeyValue{Key: []byte(k), Value: v})
		}
	}
	sort.Slice(kvs, func(i, j int) bool {
		return string(kvs[i].Key) < string(kvs[j].Key)
	})
	return kvs
}
