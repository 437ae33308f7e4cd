package pebblekv

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/wehriam/observed-remove-level/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		t.Fatalf("open in-memory pebble: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, "ns")
}

func TestPutGetLive(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutLive(store.LiveEntry{Key: "a", ID: "000000001aaaa", Value: []byte("v1")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.GetLive("a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ID != "000000001aaaa" || string(got.Value) != "v1" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if _, ok, _ := s.GetLive("missing"); ok {
		t.Fatal("expected missing key to not be found")
	}
}

func TestDeleteLiveIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteLive("absent"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if err := s.PutLive(store.LiveEntry{Key: "a", ID: "000000001aaaa"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.DeleteLive("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteLive("a"); err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if _, ok, _ := s.GetLive("a"); ok {
		t.Fatal("expected key gone")
	}
}

func TestLiveCursorOrderedByKeyAndScopedToNamespace(t *testing.T) {
	s := newTestStore(t)
	other := New(s.db, "other")

	for _, k := range []string{"c", "a", "b"} {
		if err := s.PutLive(store.LiveEntry{Key: k, ID: "id-" + k}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := other.PutLive(store.LiveEntry{Key: "zzz", ID: "000000009zzzz"}); err != nil {
		t.Fatalf("put other ns: %v", err)
	}

	cur, err := s.LiveCursor()
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	defer cur.Close()

	var keys []string
	for cur.Next() {
		keys = append(keys, cur.Value().Key)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor err: %v", err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("expected [a b c] scoped to namespace, got %v", keys)
	}
}

func TestTombstoneLifecycleAndFlush(t *testing.T) {
	s := newTestStore(t)

	if ok, _ := s.HasTombstone("000000001aaaa"); ok {
		t.Fatal("expected no tombstone initially")
	}
	if err := s.PutTombstone(store.Tombstone{ID: "000000001aaaa", Key: "old"}); err != nil {
		t.Fatalf("put tombstone: %v", err)
	}
	if err := s.PutTombstone(store.Tombstone{ID: "000000005bbbb", Key: "new"}); err != nil {
		t.Fatalf("put tombstone: %v", err)
	}

	count, err := s.TombstoneCount()
	if err != nil || count != 2 {
		t.Fatalf("expected 2 tombstones, got %d (err %v)", count, err)
	}

	removed, err := s.DeleteTombstonesOlderThan("000000003")
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if ok, _ := s.HasTombstone("000000001aaaa"); ok {
		t.Fatal("expected old tombstone flushed")
	}
	if ok, _ := s.HasTombstone("000000005bbbb"); !ok {
		t.Fatal("expected newer tombstone to survive flush")
	}
}

func TestSignatureLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutInsertionSignature("id1", []byte("sig1")); err != nil {
		t.Fatalf("put insertion sig: %v", err)
	}
	sig, ok, err := s.GetInsertionSignature("id1")
	if err != nil || !ok || string(sig) != "sig1" {
		t.Fatalf("unexpected insertion sig: sig=%q ok=%v err=%v", sig, ok, err)
	}
	if err := s.DeleteInsertionSignature("id1"); err != nil {
		t.Fatalf("delete insertion sig: %v", err)
	}
	if _, ok, _ := s.GetInsertionSignature("id1"); ok {
		t.Fatal("expected insertion signature gone")
	}

	if err := s.PutDeletionSignature("000000001aaaa", []byte("dsig-old")); err != nil {
		t.Fatalf("put deletion sig: %v", err)
	}
	if err := s.PutDeletionSignature("000000005bbbb", []byte("dsig-new")); err != nil {
		t.Fatalf("put deletion sig: %v", err)
	}
	removed, err := s.DeleteDeletionSignaturesOlderThan("000000003")
	if err != nil {
		t.Fatalf("flush deletion sigs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok, _ := s.GetDeletionSignature("000000005bbbb"); !ok {
		t.Fatal("expected newer deletion signature to survive flush")
	}
}

func TestLiveCountAndLiveValueRoundTripsEmptyValue(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutLive(store.LiveEntry{Key: "a", ID: "000000001aaaa"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	count, err := s.LiveCount()
	if err != nil || count != 1 {
		t.Fatalf("expected count 1, got %d (err %v)", count, err)
	}
	got, ok, err := s.GetLive("a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got.Value) != 0 {
		t.Fatalf("expected empty value, got %q", got.Value)
	}
}
