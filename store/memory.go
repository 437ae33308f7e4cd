package store

import (
	"sort"
	"sync"

	"github.com/wehriam/observed-remove-level/idgen"
)

// Memory is an in-memory Store, safe for concurrent use. It holds no
// persistence across restarts and is intended for tests and for replicas
// that don't need to survive a restart.
//
// Modeled on the teacher's storage.MemoryStore: a single sync.RWMutex
// guarding plain Go maps, with every read returning a copy so callers can't
// mutate internal state through a returned value.
type Memory struct {
	mu sync.RWMutex

	live       map[string]LiveEntry // key -> entry
	tombstones map[string]string    // id -> key

	insertionSigs map[string][]byte // id -> signature
	deletionSigs  map[string][]byte // id -> signature
}

// NewMemory returns an empty Memory store ready for immediate use.
func NewMemory() *Memory {
	return &Memory{
		live:          make(map[string]LiveEntry),
		tombstones:    make(map[string]string),
		insertionSigs: make(map[string][]byte),
		deletionSigs:  make(map[string][]byte),
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (m *Memory) GetLive(key string) (LiveEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.live[key]
	if !ok {
		return LiveEntry{}, false, nil
	}
	e.Value = copyBytes(e.Value)
	return e, true, nil
}

func (m *Memory) PutLive(entry LiveEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Value = copyBytes(entry.Value)
	m.live[entry.Key] = entry
	return nil
}

func (m *Memory) DeleteLive(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, key)
	return nil
}

func (m *Memory) LiveCursor() (Cursor[LiveEntry], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.live))
	for k := range m.live {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]LiveEntry, 0, len(keys))
	for _, k := range keys {
		e := m.live[k]
		e.Value = copyBytes(e.Value)
		items = append(items, e)
	}
	return newSliceCursor(items), nil
}

func (m *Memory) LiveCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live), nil
}

func (m *Memory) PutTombstone(t Tombstone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tombstones[t.ID] = t.Key
	return nil
}

func (m *Memory) HasTombstone(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tombstones[id]
	return ok, nil
}

func (m *Memory) TombstoneCursor() (Cursor[Tombstone], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.tombstones))
	for id := range m.tombstones {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]Tombstone, 0, len(ids))
	for _, id := range ids {
		items = append(items, Tombstone{ID: id, Key: m.tombstones[id]})
	}
	return newSliceCursor(items), nil
}

func (m *Memory) TombstoneCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tombstones), nil
}

func (m *Memory) DeleteTombstonesOlderThan(cutoff string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id := range m.tombstones {
		if idgen.TimePrefix(id) < cutoff {
			delete(m.tombstones, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) PutInsertionSignature(id string, signature []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertionSigs[id] = copyBytes(signature)
	return nil
}

func (m *Memory) GetInsertionSignature(id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.insertionSigs[id]
	if !ok {
		return nil, false, nil
	}
	return copyBytes(sig), true, nil
}

func (m *Memory) DeleteInsertionSignature(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.insertionSigs, id)
	return nil
}

func (m *Memory) PutDeletionSignature(id string, signature []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletionSigs[id] = copyBytes(signature)
	return nil
}

func (m *Memory) GetDeletionSignature(id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.deletionSigs[id]
	if !ok {
		return nil, false, nil
	}
	return copyBytes(sig), true, nil
}

func (m *Memory) DeleteDeletionSignaturesOlderThan(cutoff string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id := range m.deletionSigs {
		if idgen.TimePrefix(id) < cutoff {
			delete(m.deletionSigs, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error {
	return nil
}
