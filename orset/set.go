// Package orset implements the value-hash-keyed variant of the OR-Map: a
// replicated set where membership is tracked per distinct value rather than
// per caller-supplied key. Two Adds of equal-hashed values collapse to one
// live entry under the larger id, exactly as two Sets of the same key would
// on an ormap.Map; the only thing this package adds is the key derivation
// (fingerprint.Hash128Hex) and a gzip-compressed wire encoding for Publish.
package orset

import (
	"context"
	"fmt"

	"github.com/wehriam/observed-remove-level/fingerprint"
	"github.com/wehriam/observed-remove-level/ormap"
	"github.com/wehriam/observed-remove-level/store"
)

// Set is a generic Observed-Remove Set over a store.Store, keyed internally
// by fingerprint.Hash128Hex(value). It delegates its entire convergence
// algorithm to an ormap.Map[V]; Set's own job is translating between
// "value" (what callers think in) and "key" (what the core thinks in), and
// between typed batches and the gzip-compressed wire encoding this package
// uses for Publish.
type Set[V any] struct {
	core *ormap.Map[V]
}

// New constructs a Set backed by st. It returns immediately; use Ready to
// wait for the store's live-pair count to be reconciled.
func New[V any](st store.Store, opts Options) *Set[V] {
	adapter := &observerAdapter[V]{inner: opts.observerOrNop()}
	core := ormap.New[V](st, opts.toCoreOptions(adapter))
	return &Set[V]{core: core}
}

// Ready closes once the store's live-pair count has been reconciled at
// startup, sending at most one error first if reconciliation failed.
func (s *Set[V]) Ready() <-chan error {
	return s.core.Ready()
}

// Add installs value under a freshly generated id, superseding any
// previous insertion of an equal-hashed value exactly as Map.Set supersedes
// a previous insertion for the same key.
func (s *Set[V]) Add(ctx context.Context, value V) (ormap.ID, error) {
	key, err := fingerprint.Hash128Hex(value)
	if err != nil {
		return "", fmt.Errorf("orset: add: hash value: %w", err)
	}
	return s.core.Set(ctx, key, value)
}

// Remove removes value from the set, if present.
func (s *Set[V]) Remove(ctx context.Context, value V) error {
	key, err := fingerprint.Hash128Hex(value)
	if err != nil {
		return fmt.Errorf("orset: remove: hash value: %w", err)
	}
	return s.core.Delete(ctx, key)
}

// Has reports whether value is currently a member of the set.
func (s *Set[V]) Has(value V) (bool, error) {
	key, err := fingerprint.Hash128Hex(value)
	if err != nil {
		return false, fmt.Errorf("orset: has: hash value: %w", err)
	}
	return s.core.Has(key)
}

// Size returns the number of distinct values currently in the set.
func (s *Set[V]) Size() (int, error) {
	return s.core.Size()
}

// Clear removes every member of the set.
func (s *Set[V]) Clear(ctx context.Context) error {
	return s.core.Clear(ctx)
}

// Values streams every member value in the order of their value-hash keys
// (Map.Entries yields key order), which bears no relation to the values
// themselves.
func (s *Set[V]) Values() (store.Cursor[V], error) {
	cur, err := s.core.Entries()
	if err != nil {
		return nil, fmt.Errorf("orset: values: %w", err)
	}
	return &valueCursor[V]{inner: cur}, nil
}

type valueCursor[V any] struct {
	inner store.Cursor[ormap.KV[V]]
}

func (c *valueCursor[V]) Next() bool { return c.inner.Next() }
func (c *valueCursor[V]) Value() V   { return c.inner.Value().Value }
func (c *valueCursor[V]) Err() error { return c.inner.Err() }
func (c *valueCursor[V]) Close() error {
	return c.inner.Close()
}

// Dump returns a full snapshot of live pairs and tombstones, used to bring
// up or reconcile a peer out of band from the normal gzip Publish path.
func (s *Set[V]) Dump() (ormap.Dump[V], error) {
	return s.core.Dump()
}

// Sync emits the set's full state as a publish event. The Observer
// receives it gzip-encoded like any other publish, via the same
// observerAdapter every Add/Remove goes through.
func (s *Set[V]) Sync(ctx context.Context) error {
	return s.core.Sync(ctx, nil)
}

// Process applies a gzip-compressed wire message received from a peer.
// Deletion keys absent from the wire format are reconstructed locally (see
// wire.go); insertion keys are recomputed from the decoded value.
func (s *Set[V]) Process(ctx context.Context, message []byte, skipFlush bool) error {
	batch, err := decodeBatch[V](message, s.resolveKeyForID)
	if err != nil {
		return fmt.Errorf("orset: process: %w", err)
	}
	return s.core.Process(ctx, batch, skipFlush)
}

// resolveKeyForID finds the value-hash key currently carrying id among live
// entries, by scanning a snapshot Dump. This is a deliberate simplicity
// trade-off over maintaining a shadow id->key index: an index would need to
// be kept consistent with the store across restarts and concurrent
// mutation, while a read of the authoritative live table can never drift
// from it.
func (s *Set[V]) resolveKeyForID(id string) (string, bool, error) {
	dump, err := s.core.Dump()
	if err != nil {
		return "", false, err
	}
	for _, ins := range dump.Live {
		if string(ins.ID) == id {
			return ins.Key, true, nil
		}
	}
	return "", false, nil
}

// Flush removes every tombstone older than Options.MaxAge, and reports how
// many were removed.
func (s *Set[V]) Flush() (int, error) {
	return s.core.Flush()
}

// Shutdown cancels any pending publish timer and waits for any in-flight
// Process call to finish.
func (s *Set[V]) Shutdown(ctx context.Context) error {
	return s.core.Shutdown(ctx)
}
