package ormap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wehriam/observed-remove-level/fingerprint"
	"github.com/wehriam/observed-remove-level/signing"
	"github.com/wehriam/observed-remove-level/store"
)

// SignedMap layers signature verification and signature persistence atop
// a core Map. It composes core rather than embedding it: Set, Delete, and
// Clear are simply absent from SignedMap's method set, so calling them is
// a compile error rather than a runtime check.
type SignedMap[V any] struct {
	core     *Map[V]
	verifier *signing.Verifier

	pubMu   sync.Mutex
	pending SignedBatch[V]
	timer   *time.Timer
}

// NewSigned constructs a SignedMap backed by st. opts.Verifier must be
// set; every incoming signed operation is checked against it.
func NewSigned[V any](st store.Store, opts Options) (*SignedMap[V], error) {
	if opts.Verifier == nil {
		return nil, fmt.Errorf("ormap: NewSigned: Options.Verifier is required")
	}
	core := New[V](st, opts)

	sm := &SignedMap[V]{core: core, verifier: opts.Verifier}
	core.afterFlush = func(cutoff string) (int, error) {
		n, err := st.DeleteDeletionSignaturesOlderThan(cutoff)
		if err != nil {
			return 0, fmt.Errorf("ormap: flush: deletion signatures: %w", err)
		}
		return n, nil
	}
	return sm, nil
}

// Ready mirrors Map.Ready.
func (m *SignedMap[V]) Ready() <-chan error { return m.core.Ready() }

// Get mirrors Map.Get.
func (m *SignedMap[V]) Get(key string) (V, bool, error) { return m.core.Get(key) }

// Has mirrors Map.Has.
func (m *SignedMap[V]) Has(key string) (bool, error) { return m.core.Has(key) }

// Size mirrors Map.Size.
func (m *SignedMap[V]) Size() (int, error) { return m.core.Size() }

// Keys mirrors Map.Keys.
func (m *SignedMap[V]) Keys() (store.Cursor[string], error) { return m.core.Keys() }

// Entries mirrors Map.Entries.
func (m *SignedMap[V]) Entries() (store.Cursor[KV[V]], error) { return m.core.Entries() }

// Flush mirrors Map.Flush, additionally range-deleting deletion signatures
// aged out alongside their tombstones.
func (m *SignedMap[V]) Flush() (int, error) { return m.core.Flush() }

// Shutdown mirrors Map.Shutdown.
func (m *SignedMap[V]) Shutdown(ctx context.Context) error {
	m.pubMu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pubMu.Unlock()
	return m.core.Shutdown(ctx)
}

// SetSigned installs value for key under the caller-supplied id,
// authorized by signature. The caller is responsible for generating id
// and computing signature over the same canonical encoding this method
// verifies against.
func (m *SignedMap[V]) SetSigned(ctx context.Context, key string, value V, id ID, signature []byte) error {
	batch := SignedBatch[V]{Insertions: []SignedInsertion[V]{{
		Insertion: Insertion[V]{Key: key, ID: id, Value: value},
		Signature: signature,
	}}}
	if err := m.ProcessSigned(ctx, batch, true); err != nil {
		return err
	}
	m.enqueue(batch)
	m.schedulePublish()
	return nil
}

// DeleteSigned removes the live pair for key if it currently carries id,
// authorized by signature.
func (m *SignedMap[V]) DeleteSigned(ctx context.Context, key string, id ID, signature []byte) error {
	batch := SignedBatch[V]{Deletions: []SignedDeletion{{
		Deletion:  Deletion{ID: id, Key: key},
		Signature: signature,
	}}}
	if err := m.ProcessSigned(ctx, batch, true); err != nil {
		return err
	}
	m.enqueue(batch)
	m.schedulePublish()
	return nil
}

// ProcessSigned verifies every signature in queue, persists them, delegates
// to the core's Process, and then drops any insertion signature whose id
// has lost authoritativeness for its key. Verification fully precedes any
// write: a single bad signature leaves both the live pair and tombstone
// tables untouched.
func (m *SignedMap[V]) ProcessSigned(ctx context.Context, queue SignedBatch[V], skipFlush bool) error {
	for _, ins := range queue.Insertions {
		valueBytes, err := fingerprint.Canonical(ins.Value)
		if err != nil {
			return fmt.Errorf("ormap: processSigned: canonicalize %q: %w", ins.Key, err)
		}
		if err := m.verifier.Verify(ins.Key, valueBytes, true, string(ins.ID), ins.Signature); err != nil {
			return fmt.Errorf("%w: insertion %s: %v", ErrInvalidSignature, ins.ID, err)
		}
	}
	for _, del := range queue.Deletions {
		if err := m.verifier.Verify(del.Key, nil, false, string(del.ID), del.Signature); err != nil {
			return fmt.Errorf("%w: deletion %s: %v", ErrInvalidSignature, del.ID, err)
		}
	}

	m.core.mu.Lock()
	defer m.core.mu.Unlock()

	// previousIDs captures, for each insertion's key, whatever id was
	// authoritative before this batch lands. If this batch's insertion
	// wins the key, that previous id's signature is no longer attached to
	// anything live and is dropped alongside the usual "did this id itself
	// win" check below.
	previousIDs := make(map[string]string, len(queue.Insertions))
	for _, ins := range queue.Insertions {
		if entry, ok, err := m.core.st.GetLive(ins.Key); err == nil && ok {
			previousIDs[ins.Key] = entry.ID
		}
	}

	for _, ins := range queue.Insertions {
		if err := m.core.st.PutInsertionSignature(string(ins.ID), ins.Signature); err != nil {
			return fmt.Errorf("ormap: processSigned: put insertion signature %q: %w", ins.ID, err)
		}
	}
	for _, del := range queue.Deletions {
		if err := m.core.st.PutDeletionSignature(string(del.ID), del.Signature); err != nil {
			return fmt.Errorf("ormap: processSigned: put deletion signature %q: %w", del.ID, err)
		}
	}

	unsigned := Batch[V]{
		Insertions: make([]Insertion[V], len(queue.Insertions)),
		Deletions:  make([]Deletion, len(queue.Deletions)),
	}
	for i, ins := range queue.Insertions {
		unsigned.Insertions[i] = ins.Insertion
	}
	for i, del := range queue.Deletions {
		unsigned.Deletions[i] = del.Deletion
	}

	if err := m.core.processLocked(unsigned, skipFlush); err != nil {
		return err
	}

	for _, ins := range queue.Insertions {
		entry, ok, err := m.core.st.GetLive(ins.Key)
		if err != nil {
			return fmt.Errorf("ormap: processSigned: get live %q: %w", ins.Key, err)
		}
		won := ok && entry.ID == string(ins.ID)
		if !won {
			// Lost a race to a concurrently-arriving larger id: this
			// insertion never became authoritative, so its own signature
			// has nothing to attach to.
			if err := m.core.st.DeleteInsertionSignature(string(ins.ID)); err != nil {
				return fmt.Errorf("ormap: processSigned: delete insertion signature %q: %w", ins.ID, err)
			}
			continue
		}
		if prevID, existed := previousIDs[ins.Key]; existed && prevID != string(ins.ID) {
			if err := m.core.st.DeleteInsertionSignature(prevID); err != nil {
				return fmt.Errorf("ormap: processSigned: delete superseded insertion signature %q: %w", prevID, err)
			}
		}
	}

	return nil
}

// Dump returns a full snapshot with every live pair and recent tombstone
// re-wrapped with its stored signature.
func (m *SignedMap[V]) Dump() (SignedDump[V], error) {
	var out SignedDump[V]

	plain, err := m.core.Dump()
	if err != nil {
		return out, err
	}

	for _, ins := range plain.Live {
		sig, ok, err := m.core.st.GetInsertionSignature(string(ins.ID))
		if err != nil {
			return out, fmt.Errorf("ormap: dump: get insertion signature %q: %w", ins.ID, err)
		}
		if !ok {
			return out, fmt.Errorf("%w: live key %q id %s", ErrMissingSignature, ins.Key, ins.ID)
		}
		out.Live = append(out.Live, SignedInsertion[V]{Insertion: ins, Signature: sig})
	}

	for _, del := range plain.Tombstones {
		sig, ok, err := m.core.st.GetDeletionSignature(string(del.ID))
		if err != nil {
			return out, fmt.Errorf("ormap: dump: get deletion signature %q: %w", del.ID, err)
		}
		if !ok {
			return out, fmt.Errorf("%w: tombstone key %q id %s", ErrMissingSignature, del.Key, del.ID)
		}
		out.Tombstones = append(out.Tombstones, SignedDeletion{Deletion: del, Signature: sig})
	}

	return out, nil
}

// Sync emits queue as a publish event, or the full signed Dump if queue is
// nil.
func (m *SignedMap[V]) Sync(ctx context.Context, queue *SignedBatch[V]) error {
	if queue != nil {
		m.core.opts.Observer.OnPublish(*queue)
		return nil
	}
	dump, err := m.Dump()
	if err != nil {
		return err
	}
	m.core.opts.Observer.OnPublish(dump)
	return nil
}

func (m *SignedMap[V]) enqueue(batch SignedBatch[V]) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.pending.Insertions = append(m.pending.Insertions, batch.Insertions...)
	m.pending.Deletions = append(m.pending.Deletions, batch.Deletions...)
}

func (m *SignedMap[V]) schedulePublish() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	if m.timer != nil {
		return
	}
	if m.core.opts.BufferPublishing <= 0 {
		m.publishLocked()
		return
	}
	m.timer = time.AfterFunc(m.core.opts.BufferPublishing, m.firePublish)
}

func (m *SignedMap[V]) firePublish() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.publishLocked()
}

func (m *SignedMap[V]) publishLocked() {
	m.timer = nil
	if m.pending.empty() {
		return
	}
	batch := m.pending
	m.pending = SignedBatch[V]{}
	m.core.opts.Observer.OnPublish(batch)
}
