package ormap

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehriam/observed-remove-level/idgen"
)

// Flush removes every tombstone whose embedded timestamp is older than
// now - MaxAge, and reports how many were removed. It does not touch the
// live pair table.
func (m *Map[V]) Flush() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Map[V]) flushLocked() (int, error) {
	cutoff := idgen.OlderThanBound(time.Now(), m.opts.MaxAge)

	removed, err := m.st.DeleteTombstonesOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("ormap: flush: %w", err)
	}

	if m.afterFlush != nil {
		extra, err := m.afterFlush(cutoff)
		if err != nil {
			return removed, err
		}
		removed += extra
	}

	m.log.Debug("flush", zap.Int("removed", removed))
	return removed, nil
}
