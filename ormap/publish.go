package ormap

import (
	"context"
	"time"
)

// schedulePublish ensures at most one pending publish is scheduled: if a
// timer is already running this is a no-op; otherwise it either fires publish
// immediately (BufferPublishing normalized to 0 by withDefaults, i.e. the
// caller asked for no coalescing) or arms a timer for later.
func (m *Map[V]) schedulePublish() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	if m.timer != nil {
		return
	}
	if m.opts.BufferPublishing <= 0 {
		m.publishLocked()
		return
	}
	m.timer = time.AfterFunc(m.opts.BufferPublishing, m.firePublish)
}

func (m *Map[V]) firePublish() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.publishLocked()
}

// publishLocked swaps the pending queue for an empty one and emits it,
// unless it's already empty (nothing accumulated since the last publish,
// or the same tick that armed the timer already drained it). Callers must
// hold m.pubMu.
func (m *Map[V]) publishLocked() {
	m.timer = nil
	if m.pending.empty() {
		return
	}
	batch := m.pending
	m.pending = Batch[V]{}
	m.opts.Observer.OnPublish(batch)
}

// Shutdown cancels any pending publish timer and waits for any in-flight
// Process call to finish. After Shutdown, further mutation is undefined.
func (m *Map[V]) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.pubMu.Lock()
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.pubMu.Unlock()
		close(m.done)
	})

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		m.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
