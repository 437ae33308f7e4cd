// Package pebblekv implements store.Store atop github.com/cockroachdb/pebble,
// an ordered LSM key-value engine. It lays out four disjoint key ranges
// under a configured namespace, separated by ASCII punctuation whose
// natural order keeps each range contiguous and bounded by a single
// comparison:
//
//	live pairs  N '>' key   -> len(id) || id || value
//	tombstones  N '<' id    -> key
//	ins-sig     N '[' id    -> signature
//	del-sig     N ']' id    -> signature
//
// Range scans use pebble.IterOptions{LowerBound, UpperBound} the same way
// the reference pebble sources bound a memtable or sstable scan, and
// DeleteTombstonesOlderThan/DeleteDeletionSignaturesOlderThan remove their
// range with a single (*pebble.Batch).DeleteRange call rather than one
// delete per key. A bounded scan over the same range precedes it to count
// the keys being dropped, so that count can be returned.
package pebblekv

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/wehriam/observed-remove-level/store"
)

const (
	sepLive         byte = '>'
	sepTombstone    byte = '<'
	sepInsertionSig byte = '['
	sepDeletionSig  byte = ']'
)

// Store is a store.Store backed by a *pebble.DB. Multiple Store values may
// share one *pebble.DB as long as each uses a distinct Namespace; concurrent
// access to the same namespace from more than one Store is not supported.
type Store struct {
	db        *pebble.DB
	namespace string
}

// Open opens (creating if absent) a pebble database at dir and returns a
// Store scoped to namespace within it.
func Open(dir string, namespace string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblekv: open %s: %w", dir, err)
	}
	return New(db, namespace), nil
}

// New wraps an already-open *pebble.DB, scoping all operations to namespace.
// The caller owns db's lifetime unless the returned Store is later closed,
// at which point Store.Close closes db too.
func New(db *pebble.DB, namespace string) *Store {
	return &Store{db: db, namespace: namespace}
}

func (s *Store) prefixed(sep byte, suffix string) []byte {
	b := make([]byte, 0, len(s.namespace)+1+len(suffix))
	b = append(b, s.namespace...)
	b = append(b, sep)
	b = append(b, suffix...)
	return b
}

func (s *Store) bounds(sep byte) (lower, upper []byte) {
	lower = append([]byte(s.namespace), sep)
	upper = append([]byte(s.namespace), sep+1)
	return lower, upper
}

// encodeLiveValue packs (id, value) into a length-prefixed blob: one byte
// holding len(id), followed by the id, followed by the value verbatim.
// idgen IDs are a fixed idgen.Length bytes in production, but the encoding
// doesn't assume that so tests can use shorter synthetic ids directly.
func encodeLiveValue(id string, value []byte) []byte {
	out := make([]byte, 0, 1+len(id)+len(value))
	out = append(out, byte(len(id)))
	out = append(out, id...)
	out = append(out, value...)
	return out
}

func decodeLiveValue(blob []byte) (id string, value []byte) {
	if len(blob) < 1 {
		return "", nil
	}
	idLen := int(blob[0])
	if len(blob) < 1+idLen {
		return "", nil
	}
	id = string(blob[1 : 1+idLen])
	if len(blob) > 1+idLen {
		value = append([]byte(nil), blob[1+idLen:]...)
	}
	return id, value
}

func (s *Store) GetLive(key string) (store.LiveEntry, bool, error) {
	v, closer, err := s.db.Get(s.prefixed(sepLive, key))
	if err == pebble.ErrNotFound {
		return store.LiveEntry{}, false, nil
	}
	if err != nil {
		return store.LiveEntry{}, false, fmt.Errorf("pebblekv: get live %q: %w", key, err)
	}
	defer closer.Close()

	id, value := decodeLiveValue(v)
	return store.LiveEntry{Key: key, ID: id, Value: value}, true, nil
}

func (s *Store) PutLive(entry store.LiveEntry) error {
	blob := encodeLiveValue(entry.ID, entry.Value)
	if err := s.db.Set(s.prefixed(sepLive, entry.Key), blob, pebble.NoSync); err != nil {
		return fmt.Errorf("pebblekv: put live %q: %w", entry.Key, err)
	}
	return nil
}

func (s *Store) DeleteLive(key string) error {
	if err := s.db.Delete(s.prefixed(sepLive, key), pebble.NoSync); err != nil {
		return fmt.Errorf("pebblekv: delete live %q: %w", key, err)
	}
	return nil
}

func (s *Store) LiveCursor() (store.Cursor[store.LiveEntry], error) {
	lower, upper := s.bounds(sepLive)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("pebblekv: new live iterator: %w", err)
	}
	prefixLen := len(s.namespace) + 1
	return &liveCursor{iter: iter, prefixLen: prefixLen}, nil
}

func (s *Store) LiveCount() (int, error) {
	cur, err := s.LiveCursor()
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	n := 0
	for cur.Next() {
		n++
	}
	return n, cur.Err()
}

func (s *Store) PutTombstone(t store.Tombstone) error {
	if err := s.db.Set(s.prefixed(sepTombstone, t.ID), []byte(t.Key), pebble.NoSync); err != nil {
		return fmt.Errorf("pebblekv: put tombstone %q: %w", t.ID, err)
	}
	return nil
}

func (s *Store) HasTombstone(id string) (bool, error) {
	_, closer, err := s.db.Get(s.prefixed(sepTombstone, id))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebblekv: get tombstone %q: %w", id, err)
	}
	closer.Close()
	return true, nil
}

func (s *Store) TombstoneCursor() (store.Cursor[store.Tombstone], error) {
	lower, upper := s.bounds(sepTombstone)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("pebblekv: new tombstone iterator: %w", err)
	}
	prefixLen := len(s.namespace) + 1
	return &tombstoneCursor{iter: iter, prefixLen: prefixLen}, nil
}

func (s *Store) TombstoneCount() (int, error) {
	cur, err := s.TombstoneCursor()
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	n := 0
	for cur.Next() {
		n++
	}
	return n, cur.Err()
}

func (s *Store) DeleteTombstonesOlderThan(cutoff string) (int, error) {
	lower, _ := s.bounds(sepTombstone)
	upperCutoff := append(append([]byte(nil), lower...), cutoff...)
	return s.deleteRangeCounted(lower, upperCutoff)
}

func (s *Store) PutInsertionSignature(id string, signature []byte) error {
	if err := s.db.Set(s.prefixed(sepInsertionSig, id), signature, pebble.NoSync); err != nil {
		return fmt.Errorf("pebblekv: put insertion signature %q: %w", id, err)
	}
	return nil
}

func (s *Store) GetInsertionSignature(id string) ([]byte, bool, error) {
	return s.getSig(sepInsertionSig, id)
}

func (s *Store) DeleteInsertionSignature(id string) error {
	if err := s.db.Delete(s.prefixed(sepInsertionSig, id), pebble.NoSync); err != nil {
		return fmt.Errorf("pebblekv: delete insertion signature %q: %w", id, err)
	}
	return nil
}

func (s *Store) PutDeletionSignature(id string, signature []byte) error {
	if err := s.db.Set(s.prefixed(sepDeletionSig, id), signature, pebble.NoSync); err != nil {
		return fmt.Errorf("pebblekv: put deletion signature %q: %w", id, err)
	}
	return nil
}

func (s *Store) GetDeletionSignature(id string) ([]byte, bool, error) {
	return s.getSig(sepDeletionSig, id)
}

func (s *Store) DeleteDeletionSignaturesOlderThan(cutoff string) (int, error) {
	lower, _ := s.bounds(sepDeletionSig)
	upperCutoff := append(append([]byte(nil), lower...), cutoff...)
	return s.deleteRangeCounted(lower, upperCutoff)
}

func (s *Store) getSig(sep byte, id string) ([]byte, bool, error) {
	v, closer, err := s.db.Get(s.prefixed(sep, id))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebblekv: get signature %q: %w", id, err)
	}
	defer closer.Close()
	out := append([]byte(nil), v...)
	return out, true, nil
}

// deleteRangeCounted counts keys in [rangeLower, deleteUpper) by iterating
// over them, then removes them all with a single range-delete over that
// sub-range. The count is what flush returns; when it is zero no delete is
// issued.
func (s *Store) deleteRangeCounted(rangeLower, deleteUpper []byte) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: rangeLower, UpperBound: deleteUpper})
	if err != nil {
		return 0, fmt.Errorf("pebblekv: new range iterator: %w", err)
	}
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("pebblekv: close range iterator: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	if err := batch.DeleteRange(rangeLower, deleteUpper, nil); err != nil {
		return 0, fmt.Errorf("pebblekv: delete range: %w", err)
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return 0, fmt.Errorf("pebblekv: commit range delete: %w", err)
	}
	return n, nil
}

// Close closes the underlying *pebble.DB. Only call this if the Store owns
// the database (i.e. it was created with Open, or New was given sole
// ownership by the caller).
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("pebblekv: close: %w", err)
	}
	return nil
}

type liveCursor struct {
	iter      *pebble.Iterator
	prefixLen int
	started   bool
	err       error
}

func (c *liveCursor) Next() bool {
	if c.err != nil {
		return false
	}
	var ok bool
	if !c.started {
		c.started = true
		ok = c.iter.First()
	} else {
		ok = c.iter.Next()
	}
	return ok
}

func (c *liveCursor) Value() store.LiveEntry {
	key := string(c.iter.Key()[c.prefixLen:])
	id, value := decodeLiveValue(c.iter.Value())
	return store.LiveEntry{Key: key, ID: id, Value: value}
}

func (c *liveCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.iter.Error()
}

func (c *liveCursor) Close() error {
	return c.iter.Close()
}

type tombstoneCursor struct {
	iter      *pebble.Iterator
	prefixLen int
	started   bool
}

func (c *tombstoneCursor) Next() bool {
	var ok bool
	if !c.started {
		c.started = true
		ok = c.iter.First()
	} else {
		ok = c.iter.Next()
	}
	return ok
}

func (c *tombstoneCursor) Value() store.Tombstone {
	id := string(c.iter.Key()[c.prefixLen:])
	key := string(c.iter.Value())
	return store.Tombstone{ID: id, Key: key}
}

func (c *tombstoneCursor) Err() error {
	return c.iter.Error()
}

func (c *tombstoneCursor) Close() error {
	return c.iter.Close()
}
