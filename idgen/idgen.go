// Package idgen produces the identifiers the OR-Map core tags every
// insertion and deletion with: monotonic per Generator, lexicographically
// sortable, and globally unique to within the entropy of a random suffix.
package idgen

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	timeChars    = 9
	counterChars = 4
	randomChars  = 5

	// Length is the fixed total size of every generated ID.
	Length = timeChars + counterChars + randomChars

	base = 36
)

// Generator produces IDs. The zero value is not usable; construct one with
// New. A Generator is safe for concurrent use.
type Generator struct {
	counter atomic.Uint32
}

// New returns a ready-to-use Generator.
func New() *Generator {
	return &Generator{}
}

// Generate returns a new ID built from the current wall clock, a
// per-Generator counter, and a random suffix. IDs produced by repeated calls on the same
// Generator are strictly increasing even when the clock does not advance
// between calls, because the counter always does.
func (g *Generator) Generate() string {
	now := time.Now()
	counter := g.counter.Add(1)
	return encode(now, counter)
}

func encode(now time.Time, counter uint32) string {
	var b strings.Builder
	b.Grow(Length)

	b.WriteString(pad(base36(uint64(now.UnixMilli())), timeChars))
	b.WriteString(pad(base36(uint64(counter)), counterChars))
	b.WriteString(pad(randomBase36(randomChars), randomChars))

	return b.String()
}

// OlderThanBound returns the lexicographic bound that a raw ID's leading
// time-prefix must be less than in order to be considered older than maxAge
// (relative to now). Comparing `id[:9] < bound` is equivalent to "the
// operation tagged by id happened more than maxAge ago," which is what lets
// flush reduce to a single range comparison instead of parsing every ID.
func OlderThanBound(now time.Time, maxAge time.Duration) string {
	cutoff := now.Add(-maxAge)
	if cutoff.UnixMilli() < 0 {
		return pad("0", timeChars)
	}
	return pad(base36(uint64(cutoff.UnixMilli())), timeChars)
}

// TimePrefix extracts the leading time-encoded portion of an ID, the part
// that is compared against an OlderThanBound cutoff.
func TimePrefix(id string) string {
	if len(id) < timeChars {
		return id
	}
	return id[:timeChars]
}

func randomBase36(n int) string {
	u := uuid.New()
	// The first 8 bytes of the UUID, read as a single uint64, are plenty of
	// entropy for a suffix whose only job is breaking millisecond ties.
	hi := uint64(0)
	for _, by := range u[:8] {
		hi = hi<<8 | uint64(by)
	}
	s := base36(hi)
	if len(s) >= n {
		return s[len(s)-n:]
	}
	return s
}

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

func base36(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [64]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%base]
		v /= base
	}
	return string(buf[i:])
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}
