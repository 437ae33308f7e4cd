package orset

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"

	"github.com/wehriam/observed-remove-level/fingerprint"
	"github.com/wehriam/observed-remove-level/ormap"
)

// encodeBatch renders batch as the wire format: a JSON array whose elements
// are either a bare id string (a deletion) or a two-element
// [id, canonicalValue] array (an insertion), gzip-compressed. Order within
// the array carries no meaning; a decoder must handle either shape at every
// position.
func encodeBatch[V any](batch ormap.Batch[V]) ([]byte, error) {
	items := make([]any, 0, len(batch.Insertions)+len(batch.Deletions))
	for _, ins := range batch.Insertions {
		items = append(items, [2]any{string(ins.ID), ins.Value})
	}
	for _, d := range batch.Deletions {
		items = append(items, string(d.ID))
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("orset: encode batch: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("orset: encode batch: gzip: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("orset: encode batch: gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// keyResolver maps a deletion's bare id to the value-hash key the local
// replica filed its live entry under, if it has one. Returning ok=false is
// not an error: it means this replica never observed the matching
// insertion, so the decoded deletion carries an empty key and simply has
// no live entry to remove (the tombstone is still recorded, which is all
// that's needed to suppress a same-id insertion arriving later).
type keyResolver func(id string) (key string, ok bool, err error)

// decodeBatch parses the wire format produced by encodeBatch back into a
// Batch[V]. Deletion keys are reconstructed via resolve rather than
// transmitted, since the wire format carries only the bare id for a
// deletion (spec-mandated shape); insertion keys are recomputed locally
// from the decoded value, since hash(value) is deterministic and doesn't
// need to ride along on the wire either.
func decodeBatch[V any](message []byte, resolve keyResolver) (ormap.Batch[V], error) {
	var out ormap.Batch[V]

	gz, err := gzip.NewReader(bytes.NewReader(message))
	if err != nil {
		return out, fmt.Errorf("orset: decode batch: gzip: %w", err)
	}
	defer gz.Close()

	var items []json.RawMessage
	if err := json.NewDecoder(gz).Decode(&items); err != nil {
		return out, fmt.Errorf("orset: decode batch: %w", err)
	}

	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			key, _, err := resolve(id)
			if err != nil {
				return out, fmt.Errorf("orset: decode batch: resolve key for %s: %w", id, err)
			}
			out.Deletions = append(out.Deletions, ormap.Deletion{ID: ormap.ID(id), Key: key})
			continue
		}

		var pair [2]json.RawMessage
		if err := json.Unmarshal(item, &pair); err != nil {
			return out, fmt.Errorf("orset: decode batch: unrecognized element %s: %w", item, err)
		}
		var pid string
		if err := json.Unmarshal(pair[0], &pid); err != nil {
			return out, fmt.Errorf("orset: decode batch: insertion id: %w", err)
		}
		var value V
		if err := json.Unmarshal(pair[1], &value); err != nil {
			return out, fmt.Errorf("orset: decode batch: insertion value: %w", err)
		}
		key, err := fingerprint.Hash128Hex(value)
		if err != nil {
			return out, fmt.Errorf("orset: decode batch: hash value: %w", err)
		}
		out.Insertions = append(out.Insertions, ormap.Insertion[V]{Key: key, ID: ormap.ID(pid), Value: value})
	}

	return out, nil
}
