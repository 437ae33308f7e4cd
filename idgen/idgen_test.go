package idgen

import (
	"testing"
	"time"
)

func TestGenerateLength(t *testing.T) {
	g := New()
	id := g.Generate()
	if len(id) != Length {
		t.Fatalf("expected length %d, got %d (%q)", Length, len(id), id)
	}
}

func TestGenerateMonotonicSameGenerator(t *testing.T) {
	g := New()
	prev := g.Generate()
	for i := 0; i < 1000; i++ {
		next := g.Generate()
		if next <= prev {
			t.Fatalf("expected strictly increasing ids, got %q then %q", prev, next)
		}
		prev = next
	}
}

func TestGenerateUnique(t *testing.T) {
	g := New()
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestTimePrefixOrdersWithWallClock(t *testing.T) {
	early := encode(time.UnixMilli(1000), 1)
	late := encode(time.UnixMilli(2000), 1)
	if !(TimePrefix(early) < TimePrefix(late)) {
		t.Fatalf("expected earlier timestamp to sort first: %q vs %q", early, late)
	}
}

func TestOlderThanBoundComparison(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	maxAge := 300 * time.Millisecond

	staleID := encode(now.Add(-400*time.Millisecond), 1)
	freshID := encode(now.Add(-100*time.Millisecond), 1)

	bound := OlderThanBound(now, maxAge)

	if !(TimePrefix(staleID) < bound) {
		t.Fatalf("expected stale id %q to be older than bound %q", staleID, bound)
	}
	if TimePrefix(freshID) < bound {
		t.Fatalf("expected fresh id %q to not be older than bound %q", freshID, bound)
	}
}

func TestOlderThanBoundNegativeCutoffClampsToZero(t *testing.T) {
	now := time.UnixMilli(100)
	bound := OlderThanBound(now, time.Hour*999999)
	if bound != "000000000" {
		t.Fatalf("expected clamped bound of all zeros, got %q", bound)
	}
}

func TestPadTruncatesFromTheLeft(t *testing.T) {
	if got := pad("abcdef", 3); got != "def" {
		t.Fatalf("expected truncation to keep the low-order digits, got %q", got)
	}
}
