// Package store defines the abstract state-store interface the OR-Map core
// replays local and remote operations against, plus two implementations: an
// in-memory store for single-process use and tests, and a persistent store
// backed by an ordered key-value engine for durable replicas.
//
// All implementations must guarantee:
//   - at most one live entry per key, the insertion currently installed for it
//   - Get/Range operations return independent copies, not internal state
//   - point lookups report absence with ok=false and a nil error, so callers
//     can distinguish "absent" from a real storage failure
//
// A store does not itself keep tombstones and live entries for the same id
// apart; the OR-Map core's Process maintains that invariant.
package store

import "errors"

// ErrNotFound names the "not there" condition. Neither Memory nor
// pebblekv.Store returns it: their point lookups report an absent key, id,
// or signature as ok=false with a nil error.
var ErrNotFound = errors.New("store: not found")

// LiveEntry is a live (key, id, value) triple: the current insertion
// installed for key.
type LiveEntry struct {
	Key   string
	ID    string
	Value []byte
}

// Tombstone records that the insertion tagged ID has been deleted. Key is
// retained so a later-arriving insertion with the same id, or a replay of
// the batch that produced it, can find the affected live entry without a
// second round trip.
type Tombstone struct {
	ID  string
	Key string
}

// Cursor streams values of type T from a store without requiring the whole
// range to be materialized in memory at once. Close must always be called,
// even after Next returns false, to release any backing resources (a pebble
// iterator, for example).
type Cursor[T any] interface {
	// Next advances the cursor and reports whether a value is available.
	Next() bool
	// Value returns the value at the cursor's current position. Valid only
	// after a call to Next that returned true.
	Value() T
	// Err returns the first error encountered during iteration, if any.
	Err() error
	// Close releases resources held by the cursor. Safe to call multiple
	// times.
	Close() error
}

// Store is the abstract state store the OR-Map core and its signed variant
// are built against.
type Store interface {
	// GetLive returns the live entry for key, if any.
	GetLive(key string) (entry LiveEntry, ok bool, err error)
	// PutLive installs entry as the live entry for its key, replacing any
	// previous entry for that key.
	PutLive(entry LiveEntry) error
	// DeleteLive removes the live entry for key. Idempotent: deleting an
	// absent key is not an error.
	DeleteLive(key string) error
	// LiveCursor streams every live entry in key-lexicographic order (both
	// the in-memory and the persistent store).
	LiveCursor() (Cursor[LiveEntry], error)
	// LiveCount returns the number of live entries.
	LiveCount() (int, error)

	// PutTombstone records that id has been deleted, for the purpose of
	// relocating key and of suppressing any later-arriving insertion
	// carrying the same id.
	PutTombstone(t Tombstone) error
	// HasTombstone reports whether id has a recorded tombstone.
	HasTombstone(id string) (bool, error)
	// TombstoneCursor streams every recorded tombstone.
	TombstoneCursor() (Cursor[Tombstone], error)
	// TombstoneCount returns the number of recorded tombstones.
	TombstoneCount() (int, error)
	// DeleteTombstonesOlderThan removes every tombstone whose id's time
	// prefix is lexicographically less than cutoff, and returns the count
	// removed.
	DeleteTombstonesOlderThan(cutoff string) (int, error)

	// PutInsertionSignature records the signature authorizing the
	// insertion tagged id.
	PutInsertionSignature(id string, signature []byte) error
	// GetInsertionSignature returns the signature recorded for id, if any.
	GetInsertionSignature(id string) (signature []byte, ok bool, err error)
	// DeleteInsertionSignature removes the signature recorded for id.
	// Idempotent.
	DeleteInsertionSignature(id string) error

	// PutDeletionSignature records the signature authorizing the deletion
	// tagged id.
	PutDeletionSignature(id string, signature []byte) error
	// GetDeletionSignature returns the signature recorded for id, if any.
	GetDeletionSignature(id string) (signature []byte, ok bool, err error)
	// DeleteDeletionSignaturesOlderThan removes every deletion signature
	// whose id's time prefix is lexicographically less than cutoff, and
	// returns the count removed.
	DeleteDeletionSignaturesOlderThan(cutoff string) (int, error)

	// Close releases any resources (file handles, connections) held by the
	// store. After Close, the store must not be used.
	Close() error
}

// sliceCursor adapts an in-memory slice to the Cursor interface. Used by the
// Memory store, whose ranges are always small enough to snapshot eagerly.
type sliceCursor[T any] struct {
	items []T
	pos   int
}

func newSliceCursor[T any](items []T) *sliceCursor[T] {
	return &sliceCursor[T]{items: items, pos: -1}
}

func (c *sliceCursor[T]) Next() bool {
	c.pos++
	return c.pos < len(c.items)
}

func (c *sliceCursor[T]) Value() T {
	return c.items[c.pos]
}

func (c *sliceCursor[T]) Err() error {
	return nil
}

func (c *sliceCursor[T]) Close() error {
	return nil
}
