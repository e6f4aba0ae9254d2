package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemCachedStore is a wrapper around a lower Store that caches all changes
// being made for them to be later flushed in one batch or dropped.
type MemCachedStore struct {
	mut sync.RWMutex
	// mem holds pending changes, a nil value marks a deletion.
	mem map[string][]byte

	ps Store
}

// NewMemCachedStore creates a new MemCachedStore object.
func NewMemCachedStore(lower Store) *MemCachedStore {
	return &MemCachedStore{
		mem: make(map[string][]byte),
		ps:  lower,
	}
}

// Get implements the Store interface.
func (s *MemCachedStore) Get(key []byte) ([]byte, error) {
	s.mut.RLock()
	val, ok := s.mem[string(key)]
	s.mut.RUnlock()
	if ok {
		if val == nil {
			return nil, ErrKeyNotFound
		}
		return val, nil
	}
	return s.ps.Get(key)
}

// Put stores the value in the cache.
func (s *MemCachedStore) Put(key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	s.mut.Lock()
	s.mem[string(key)] = v
	s.mut.Unlock()
}

// Delete marks the key as deleted in the cache.
func (s *MemCachedStore) Delete(key []byte) {
	s.mut.Lock()
	s.mem[string(key)] = nil
	s.mut.Unlock()
}

// PutChangeSet implements the Store interface, changes are cached, not
// passed to the lower store.
func (s *MemCachedStore) PutChangeSet(changes map[string][]byte) error {
	s.mut.Lock()
	for k, v := range changes {
		s.mem[k] = v
	}
	s.mut.Unlock()
	return nil
}

// Seek implements the Store interface merging cached changes over the lower
// store contents.
func (s *MemCachedStore) Seek(prefix []byte, f func(k, v []byte) bool) {
	merged := make(map[string][]byte)
	s.ps.Seek(prefix, func(k, v []byte) bool {
		merged[string(k)] = v
		return true
	})
	s.mut.RLock()
	for k, v := range s.mem {
		if strings.HasPrefix(k, string(prefix)) {
			merged[k] = v
		}
	}
	s.mut.RUnlock()

	keys := make([]string, 0, len(merged))
	for k, v := range merged {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !f([]byte(k), merged[k]) {
			return
		}
	}
}

// Len returns the number of pending changes.
func (s *MemCachedStore) Len() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return len(s.mem)
}

// Persist flushes all pending changes to the lower store in one change set
// and resets the cache. It returns the number of keys flushed.
func (s *MemCachedStore) Persist() (int, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if len(s.mem) == 0 {
		return 0, nil
	}
	err := s.ps.PutChangeSet(s.mem)
	if err != nil {
		return 0, err
	}
	n := len(s.mem)
	s.mem = make(map[string][]byte)
	return n, nil
}

// Discard drops all pending changes.
func (s *MemCachedStore) Discard() {
	s.mut.Lock()
	s.mem = make(map[string][]byte)
	s.mut.Unlock()
}

// Close implements the Store interface, it drops the cache and closes the
// lower store.
func (s *MemCachedStore) Close() error {
	s.Discard()
	return s.ps.Close()
}
