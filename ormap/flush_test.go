package ormap

import (
	"context"
	"testing"
	"time"

	"github.com/wehriam/observed-remove-level/store"
)

// S4: flush respects age.
func TestScenarioFlushRespectsAge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := New[int](st, Options{MaxAge: 300 * time.Millisecond})
	if err := <-m.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	for _, k := range []string{"a", "b", "c"} {
		if _, err := m.Set(ctx, k, 1); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := m.Delete(ctx, k); err != nil {
			t.Fatalf("delete %s: %v", k, err)
		}
	}

	count, err := st.TombstoneCount()
	if err != nil || count != 3 {
		t.Fatalf("expected 3 tombstones, got %d (err %v)", count, err)
	}

	if _, err := m.Flush(); err != nil {
		t.Fatalf("immediate flush: %v", err)
	}
	count, _ = st.TombstoneCount()
	if count != 3 {
		t.Fatalf("expected tombstones to survive an immediate flush, got %d", count)
	}

	time.Sleep(400 * time.Millisecond)

	removed, err := m.Flush()
	if err != nil {
		t.Fatalf("aged flush: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	count, _ = st.TombstoneCount()
	if count != 0 {
		t.Fatalf("expected 0 tombstones after aged flush, got %d", count)
	}
}

func TestFlushLeavesLiveTableUnchanged(t *testing.T) {
	ctx := context.Background()
	m := New[int](store.NewMemory(), Options{MaxAge: time.Millisecond})
	if err := <-m.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	if _, err := m.Set(ctx, "a", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Set(ctx, "b", 2); err != nil {
		t.Fatalf("set: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := m.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if n, _ := m.Size(); n != 1 {
		t.Fatalf("expected live table untouched by flush, size=%d", n)
	}
	if v, ok, _ := m.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2 to survive flush, got v=%d ok=%v", v, ok)
	}
}
