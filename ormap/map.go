// Package ormap implements a replicated Observed-Remove Map: a keyed CRDT
// that converges across peers exchanging opaque publish batches, with an
// in-memory or persistent backing store and an optional signed variant
// that authorizes every operation with a caller-supplied signature.
package ormap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wehriam/observed-remove-level/fingerprint"
	"github.com/wehriam/observed-remove-level/idgen"
	"github.com/wehriam/observed-remove-level/store"
)

// Map is a generic Observed-Remove Map over a store.Store. The zero value
// is not usable; construct one with New.
type Map[V any] struct {
	st   store.Store
	ids  *idgen.Generator
	opts Options
	log  *zap.Logger

	// mu serializes Process against itself and against the local mutators
	// (Set/Delete/Clear), so local and remote observation are equivalent
	// (spec §5): a second process cannot begin before the first has
	// finished and, when applicable, flushed.
	mu sync.Mutex
	sf singleflight.Group

	pubMu   sync.Mutex
	pending Batch[V]
	timer   *time.Timer

	shutdownOnce sync.Once
	done         chan struct{}

	ready chan error

	// afterFlush, when set, runs with the same age cutoff Flush used for
	// tombstones, and its count is added to Flush's return value. SignedMap
	// uses this to range-delete deletion signatures alongside tombstones
	// without Map needing to know signatures exist.
	afterFlush func(cutoff string) (int, error)
}

// New constructs a Map backed by st. It returns immediately; use Ready to
// wait for the store's live-pair count to be reconciled.
func New[V any](st store.Store, opts Options) *Map[V] {
	opts = opts.withDefaults()
	m := &Map[V]{
		st:    st,
		ids:   idgen.New(),
		opts:  opts,
		log:   opts.Logger,
		done:  make(chan struct{}),
		ready: make(chan error, 1),
	}
	m.seed()
	return m
}

func (m *Map[V]) seed() {
	go func() {
		if _, err := m.st.LiveCount(); err != nil {
			m.opts.Observer.OnError(err)
			m.ready <- err
		}
		close(m.ready)
	}()
}

// Ready closes once the store's live-pair count has been reconciled at
// startup, sending at most one error first if reconciliation failed.
func (m *Map[V]) Ready() <-chan error {
	return m.ready
}

func encodeValue[V any](v V) ([]byte, error) {
	b, err := fingerprint.Canonical(v)
	if err != nil {
		return nil, fmt.Errorf("ormap: encode value: %w", err)
	}
	return b, nil
}

func decodeValue[V any](b []byte) (V, error) {
	var v V
	if len(b) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("ormap: decode value: %w", err)
	}
	return v, nil
}

// Set installs value for key under a freshly generated id. If key already
// has a live pair, its previous insertion is superseded by a local
// deletion recorded in the same batch; this makes the local observation
// (via the Observer) identical to what a remote peer would see when the
// batch is replayed through Process.
func (m *Map[V]) Set(ctx context.Context, key string, value V) (ID, error) {
	id := ID(m.ids.Generate())

	m.mu.Lock()
	defer m.mu.Unlock()

	batch := Batch[V]{Insertions: []Insertion[V]{{Key: key, ID: id, Value: value}}}
	existing, ok, err := m.st.GetLive(key)
	if err != nil {
		return "", fmt.Errorf("ormap: set: get live %q: %w", key, err)
	}
	if ok {
		batch.Deletions = append(batch.Deletions, Deletion{ID: ID(existing.ID), Key: key})
	}

	if err := m.processLocked(batch, true); err != nil {
		return "", err
	}
	m.enqueue(batch)
	m.schedulePublish()
	return id, nil
}

// Delete removes the live pair for key, if any. Deleting an absent key is
// a no-op: no event fires and nothing is enqueued.
func (m *Map[V]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok, err := m.st.GetLive(key)
	if err != nil {
		return fmt.Errorf("ormap: delete: get live %q: %w", key, err)
	}
	if !ok {
		return nil
	}

	batch := Batch[V]{Deletions: []Deletion{{ID: ID(existing.ID), Key: key}}}
	if err := m.processLocked(batch, true); err != nil {
		return err
	}
	m.enqueue(batch)
	m.schedulePublish()
	return nil
}

// Get returns the live value for key, if any.
func (m *Map[V]) Get(key string) (V, bool, error) {
	var zero V
	entry, ok, err := m.st.GetLive(key)
	if err != nil {
		return zero, false, fmt.Errorf("ormap: get %q: %w", key, err)
	}
	if !ok {
		return zero, false, nil
	}
	v, err := decodeValue[V](entry.Value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Has reports whether key has a live pair.
func (m *Map[V]) Has(key string) (bool, error) {
	_, ok, err := m.st.GetLive(key)
	if err != nil {
		return false, fmt.Errorf("ormap: has %q: %w", key, err)
	}
	return ok, nil
}

// Size returns the number of live pairs.
func (m *Map[V]) Size() (int, error) {
	n, err := m.st.LiveCount()
	if err != nil {
		return 0, fmt.Errorf("ormap: size: %w", err)
	}
	return n, nil
}

// Clear deletes every live key. Equivalent to calling Delete on every key
// currently returned by Keys, but collects the whole key list up front so
// concurrent Set calls during Clear can't be skipped or double-deleted by
// a moving cursor.
func (m *Map[V]) Clear(ctx context.Context) error {
	cur, err := m.st.LiveCursor()
	if err != nil {
		return fmt.Errorf("ormap: clear: cursor: %w", err)
	}
	var keys []string
	for cur.Next() {
		keys = append(keys, cur.Value().Key)
	}
	cerr := cur.Err()
	_ = cur.Close()
	if cerr != nil {
		return fmt.Errorf("ormap: clear: cursor: %w", cerr)
	}

	for _, k := range keys {
		if err := m.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Keys streams every live key.
func (m *Map[V]) Keys() (store.Cursor[string], error) {
	cur, err := m.st.LiveCursor()
	if err != nil {
		return nil, fmt.Errorf("ormap: keys: %w", err)
	}
	return &keyCursor{inner: cur}, nil
}

type keyCursor struct {
	inner store.Cursor[store.LiveEntry]
}

func (c *keyCursor) Next() bool    { return c.inner.Next() }
func (c *keyCursor) Value() string { return c.inner.Value().Key }
func (c *keyCursor) Err() error    { return c.inner.Err() }
func (c *keyCursor) Close() error  { return c.inner.Close() }

// Entries streams every live (key, value) pair.
func (m *Map[V]) Entries() (store.Cursor[KV[V]], error) {
	cur, err := m.st.LiveCursor()
	if err != nil {
		return nil, fmt.Errorf("ormap: entries: %w", err)
	}
	return &entryCursor[V]{inner: cur}, nil
}

type entryCursor[V any] struct {
	inner store.Cursor[store.LiveEntry]
	err   error
}

func (c *entryCursor[V]) Next() bool { return c.inner.Next() }

func (c *entryCursor[V]) Value() KV[V] {
	e := c.inner.Value()
	v, err := decodeValue[V](e.Value)
	if err != nil {
		c.err = err
	}
	return KV[V]{Key: e.Key, Value: v}
}

func (c *entryCursor[V]) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.inner.Err()
}

func (c *entryCursor[V]) Close() error { return c.inner.Close() }

// Dump returns a full snapshot of live pairs and tombstones, used to bring
// up or reconcile a peer.
func (m *Map[V]) Dump() (Dump[V], error) {
	var out Dump[V]

	liveCur, err := m.st.LiveCursor()
	if err != nil {
		return out, fmt.Errorf("ormap: dump: live cursor: %w", err)
	}
	for liveCur.Next() {
		e := liveCur.Value()
		v, err := decodeValue[V](e.Value)
		if err != nil {
			_ = liveCur.Close()
			return out, err
		}
		out.Live = append(out.Live, Insertion[V]{Key: e.Key, ID: ID(e.ID), Value: v})
	}
	lerr := liveCur.Err()
	_ = liveCur.Close()
	if lerr != nil {
		return out, fmt.Errorf("ormap: dump: live cursor: %w", lerr)
	}

	tombCur, err := m.st.TombstoneCursor()
	if err != nil {
		return out, fmt.Errorf("ormap: dump: tombstone cursor: %w", err)
	}
	for tombCur.Next() {
		t := tombCur.Value()
		out.Tombstones = append(out.Tombstones, Deletion{ID: ID(t.ID), Key: t.Key})
	}
	terr := tombCur.Err()
	_ = tombCur.Close()
	if terr != nil {
		return out, fmt.Errorf("ormap: dump: tombstone cursor: %w", terr)
	}

	return out, nil
}

// Sync emits queue as a publish event, or the full Dump if queue is nil.
// It is the mechanism a newly-joined or reconciling peer uses to request
// state.
func (m *Map[V]) Sync(ctx context.Context, queue *Batch[V]) error {
	if queue != nil {
		m.opts.Observer.OnPublish(*queue)
		return nil
	}
	dump, err := m.Dump()
	if err != nil {
		return err
	}
	m.opts.Observer.OnPublish(dump)
	return nil
}
