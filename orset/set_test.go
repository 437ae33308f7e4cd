package orset

import (
	"context"
	"testing"

	"github.com/wehriam/observed-remove-level/ormap"
	"github.com/wehriam/observed-remove-level/store"
)

func newTestSet[V any](t *testing.T) *Set[V] {
	t.Helper()
	s := New[V](store.NewMemory(), Options{})
	if err := <-s.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}
	return s
}

func drainValues[V any](t *testing.T, cur store.Cursor[V]) []V {
	t.Helper()
	defer cur.Close()
	var out []V
	for cur.Next() {
		out = append(out, cur.Value())
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	return out
}

func TestAddRemoveHasSize(t *testing.T) {
	ctx := context.Background()
	s := newTestSet[string](t)

	if ok, _ := s.Has("a"); ok {
		t.Fatal("expected !has(a) before add")
	}
	if _, err := s.Add(ctx, "a"); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if n, _ := s.Size(); n != 1 {
		t.Fatalf("expected size 1, got %d", n)
	}
	if ok, _ := s.Has("a"); !ok {
		t.Fatal("expected has(a)")
	}

	if _, err := s.Add(ctx, "b"); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if n, _ := s.Size(); n != 2 {
		t.Fatalf("expected size 2, got %d", n)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if n, _ := s.Size(); n != 1 {
		t.Fatalf("expected size 1 after remove, got %d", n)
	}
	if ok, _ := s.Has("a"); ok {
		t.Fatal("expected !has(a) after remove")
	}
}

func TestAddingEqualValueTwiceCollapsesToOneMember(t *testing.T) {
	ctx := context.Background()
	s := newTestSet[string](t)

	if _, err := s.Add(ctx, "dup"); err != nil {
		t.Fatalf("add 1: %v", err)
	}
	if _, err := s.Add(ctx, "dup"); err != nil {
		t.Fatalf("add 2: %v", err)
	}
	if n, _ := s.Size(); n != 1 {
		t.Fatalf("expected two adds of an equal value to collapse to size 1, got %d", n)
	}
}

func TestValuesStreamsEveryMember(t *testing.T) {
	ctx := context.Background()
	s := newTestSet[int](t)

	for _, v := range []int{1, 2, 3} {
		if _, err := s.Add(ctx, v); err != nil {
			t.Fatalf("add %d: %v", v, err)
		}
	}

	cur, err := s.Values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	values := drainValues[int](t, cur)
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %v", values)
	}
}

func TestClearRemovesEveryMember(t *testing.T) {
	ctx := context.Background()
	s := newTestSet[string](t)

	for _, v := range []string{"x", "y", "z"} {
		if _, err := s.Add(ctx, v); err != nil {
			t.Fatalf("add %s: %v", v, err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := s.Size(); n != 0 {
		t.Fatalf("expected empty set after clear, got size %d", n)
	}
}

// Converges two sets by wire-encoding one's publish batches and feeding
// them through the other's Process, the way a transport would carry bytes
// between peers.
func TestConvergesThroughGzipWireProcess(t *testing.T) {
	ctx := context.Background()

	var captured [][]byte
	alice := New[string](store.NewMemory(), Options{
		BufferPublishing: -1,
		Observer:         capturingObserver{capture: func(b []byte) { captured = append(captured, b) }},
	})
	bob := New[string](store.NewMemory(), Options{})
	if err := <-alice.Ready(); err != nil {
		t.Fatalf("alice ready: %v", err)
	}
	if err := <-bob.Ready(); err != nil {
		t.Fatalf("bob ready: %v", err)
	}

	if _, err := alice.Add(ctx, "hello"); err != nil {
		t.Fatalf("add hello: %v", err)
	}
	if _, err := alice.Add(ctx, "world"); err != nil {
		t.Fatalf("add world: %v", err)
	}
	if err := alice.Remove(ctx, "hello"); err != nil {
		t.Fatalf("remove hello: %v", err)
	}

	if len(captured) == 0 {
		t.Fatal("expected at least one published wire message")
	}
	for _, msg := range captured {
		if err := bob.Process(ctx, msg, true); err != nil {
			t.Fatalf("bob process: %v", err)
		}
	}

	if ok, _ := bob.Has("hello"); ok {
		t.Fatal("expected bob to not have hello (added then removed)")
	}
	if ok, _ := bob.Has("world"); !ok {
		t.Fatal("expected bob to have world")
	}
	if n, _ := bob.Size(); n != 1 {
		t.Fatalf("expected bob size 1, got %d", n)
	}
}

// A remote deletion for a value this replica never observed locally should
// record its tombstone without error and without finding anything to
// remove.
func TestProcessDeletionForUnknownValueIsHarmless(t *testing.T) {
	ctx := context.Background()
	source := newTestSet[string](t)
	target := newTestSet[string](t)

	if _, err := source.Add(ctx, "only-on-source"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := source.Remove(ctx, "only-on-source"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	dump, err := source.Dump()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(dump.Tombstones) != 1 {
		t.Fatalf("expected 1 tombstone on source, got %d", len(dump.Tombstones))
	}

	batch := ormap.Batch[string]{Deletions: dump.Tombstones}
	encoded, err := encodeBatch(batch)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := target.Process(ctx, encoded, true); err != nil {
		t.Fatalf("target process: %v", err)
	}
	if n, _ := target.Size(); n != 0 {
		t.Fatalf("expected target to remain empty, got size %d", n)
	}
}

func TestEncodeDecodeBatchRoundTrip(t *testing.T) {
	batch := ormap.Batch[string]{
		Insertions: []ormap.Insertion[string]{{Key: "k1", ID: "id1", Value: "v1"}},
		Deletions:  []ormap.Deletion{{ID: "id2", Key: "k2"}},
	}
	encoded, err := encodeBatch(batch)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	resolved := map[string]string{"id2": "k2"}
	decoded, err := decodeBatch[string](encoded, func(id string) (string, bool, error) {
		key, ok := resolved[id]
		return key, ok, nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(decoded.Insertions) != 1 || decoded.Insertions[0].Value != "v1" || decoded.Insertions[0].ID != "id1" {
		t.Fatalf("unexpected decoded insertions: %+v", decoded.Insertions)
	}
	if len(decoded.Deletions) != 1 || decoded.Deletions[0].ID != "id2" || decoded.Deletions[0].Key != "k2" {
		t.Fatalf("unexpected decoded deletions: %+v", decoded.Deletions)
	}
}

type capturingObserver struct {
	capture func([]byte)
}

func (o capturingObserver) OnPublish(batch any) {
	if b, ok := batch.([]byte); ok {
		o.capture(b)
	}
}
func (o capturingObserver) OnSet(string, any, any, bool) {}
func (o capturingObserver) OnDelete(string, any)         {}
func (o capturingObserver) OnAffirm(string, any)         {}
func (o capturingObserver) OnError(error)                {}

var _ ormap.Observer = capturingObserver{}
