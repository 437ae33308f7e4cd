// Package fingerprint provides deterministic JSON canonicalization and a
// 128-bit non-cryptographic hash over arbitrary structured values. The OR-Set
// variant keys its live entries by this hash instead of a caller-supplied
// key, and the signed OR-Map signs over this same canonical encoding so
// signer and verifier agree byte-for-byte.
package fingerprint

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Canonical returns a deterministic JSON encoding of v.
//
// Go's encoding/json already serializes map[string]any keys in sorted
// order, and it refuses to encode NaN/±Inf floats (Marshal returns an
// *UnsupportedValueError for them). That is the whole of what a canonical
// JSON form needs here, so no separate canonicalization library is used.
func Canonical(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	return b, nil
}

// Hash128 returns the 128-bit murmur3 fingerprint of v's canonical JSON
// encoding, split into high/low 64-bit halves.
func Hash128(v any) (hi uint64, lo uint64, err error) {
	b, err := Canonical(v)
	if err != nil {
		return 0, 0, err
	}
	hi, lo = murmur3.Sum128(b)
	return hi, lo, nil
}

// Hash128Hex returns Hash128 rendered as a fixed-width hex key, suitable for
// use as a map key or store key (the OR-Set variant's live-pair key).
func Hash128Hex(v any) (string, error) {
	hi, lo, err := Hash128(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x%016x", hi, lo), nil
}
