package ormap

import (
	"context"
	"fmt"

	"github.com/wehriam/observed-remove-level/fingerprint"
	"github.com/wehriam/observed-remove-level/store"
)

// Process applies a locally-assembled or remotely-received batch following
// the two-pass algorithm of §4.2: tombstones are recorded before
// insertions are evaluated, and live-pair removals happen in a second pass
// over the same deletion set, so the result is independent of the order
// operations happen to appear within the batch.
//
// Concurrent calls carrying byte-identical batches collapse into a single
// application via singleflight, a deliberate optimization, not a
// correctness requirement, since processing the same batch twice is
// already defined to be idempotent (property 2). Calls carrying different
// batches each run to completion in turn, ordered by Map's internal lock;
// no batch is ever skipped or merged into another's result.
func (m *Map[V]) Process(ctx context.Context, queue Batch[V], skipFlush bool) error {
	key, err := dedupeKey(queue, skipFlush)
	if err != nil {
		return err
	}

	_, err, _ = m.sf.Do(key, func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return nil, m.processLocked(queue, skipFlush)
	})
	return err
}

func dedupeKey[V any](queue Batch[V], skipFlush bool) (string, error) {
	h, err := fingerprint.Hash128Hex(struct {
		Batch     Batch[V]
		SkipFlush bool
	}{queue, skipFlush})
	if err != nil {
		return "", fmt.Errorf("ormap: process: hash batch: %w", err)
	}
	return h, nil
}

// processLocked implements the algorithm; callers must hold m.mu.
func (m *Map[V]) processLocked(queue Batch[V], skipFlush bool) error {
	// Pass 1: record every tombstone, even for ids with no current live
	// pair, so a later-arriving insertion with the same id is suppressed.
	for _, d := range queue.Deletions {
		if err := m.st.PutTombstone(store.Tombstone{ID: string(d.ID), Key: d.Key}); err != nil {
			return fmt.Errorf("ormap: process: put tombstone %q: %w", d.ID, err)
		}
	}

	// Pass 2: evaluate insertions against the live table and the
	// tombstones just recorded.
	for _, ins := range queue.Insertions {
		tombstoned, err := m.st.HasTombstone(string(ins.ID))
		if err != nil {
			return fmt.Errorf("ormap: process: has tombstone %q: %w", ins.ID, err)
		}
		if tombstoned {
			continue
		}

		existing, ok, err := m.st.GetLive(ins.Key)
		if err != nil {
			return fmt.Errorf("ormap: process: get live %q: %w", ins.Key, err)
		}

		valueBytes, err := encodeValue(ins.Value)
		if err != nil {
			return err
		}

		switch {
		case !ok:
			if err := m.st.PutLive(store.LiveEntry{Key: ins.Key, ID: string(ins.ID), Value: valueBytes}); err != nil {
				return fmt.Errorf("ormap: process: put live %q: %w", ins.Key, err)
			}
			m.opts.Observer.OnSet(ins.Key, ins.Value, nil, false)

		case existing.ID < string(ins.ID):
			previous, err := decodeValue[V](existing.Value)
			if err != nil {
				return err
			}
			if err := m.st.PutLive(store.LiveEntry{Key: ins.Key, ID: string(ins.ID), Value: valueBytes}); err != nil {
				return fmt.Errorf("ormap: process: put live %q: %w", ins.Key, err)
			}
			m.opts.Observer.OnSet(ins.Key, ins.Value, previous, true)

		case existing.ID == string(ins.ID):
			m.opts.Observer.OnAffirm(ins.Key, ins.Value)

		default:
			// existing.ID > ins.ID: a newer value is already installed.
		}
	}

	// Pass 3: remove live pairs whose installed id matches a deletion from
	// this same batch. Doing this after pass 2, rather than inline with
	// pass 1, is what makes batch application independent of the order
	// insertions and deletions happen to appear in.
	for _, d := range queue.Deletions {
		existing, ok, err := m.st.GetLive(d.Key)
		if err != nil {
			return fmt.Errorf("ormap: process: get live %q: %w", d.Key, err)
		}
		if !ok || existing.ID != string(d.ID) {
			continue
		}
		value, err := decodeValue[V](existing.Value)
		if err != nil {
			return err
		}
		if err := m.st.DeleteLive(d.Key); err != nil {
			return fmt.Errorf("ormap: process: delete live %q: %w", d.Key, err)
		}
		m.opts.Observer.OnDelete(d.Key, value)
	}

	if !skipFlush {
		if _, err := m.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map[V]) enqueue(batch Batch[V]) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.pending.Insertions = append(m.pending.Insertions, batch.Insertions...)
	m.pending.Deletions = append(m.pending.Deletions, batch.Deletions...)
}
