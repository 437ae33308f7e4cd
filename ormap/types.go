package ormap

// ID is an operation identifier produced by idgen.Generator.Generate: a
// fixed-length, lexicographically-sortable string whose first 9 characters
// are a base-36 millisecond timestamp.
type ID string

// KV is a live (key, value) pair as yielded by Map.Entries.
type KV[V any] struct {
	Key   string
	Value V
}

// Insertion records that, at ID, Key was assigned Value.
type Insertion[V any] struct {
	Key   string `json:"key"`
	ID    ID     `json:"id"`
	Value V      `json:"value"`
}

// Deletion records that the insertion tagged ID, for Key, has been
// removed. Key is kept so a replay can locate the affected live pair
// without a second lookup.
type Deletion struct {
	ID  ID     `json:"id"`
	Key string `json:"key"`
}

// Batch is the unit Process applies and the unit Publish emits: a set of
// insertions and a set of deletions, order-independent within each side.
type Batch[V any] struct {
	Insertions []Insertion[V] `json:"insertions"`
	Deletions  []Deletion     `json:"deletions"`
}

func (b Batch[V]) empty() bool {
	return len(b.Insertions) == 0 && len(b.Deletions) == 0
}

// Dump is a full snapshot of a Map's live pairs and tombstones, as
// returned by Dump and published by Sync to bring up or reconcile a peer.
type Dump[V any] struct {
	Live       []Insertion[V] `json:"live"`
	Tombstones []Deletion     `json:"tombstones"`
}

// SignedInsertion is an Insertion plus the signature authorizing it.
type SignedInsertion[V any] struct {
	Insertion[V]
	Signature []byte `json:"signature"`
}

// SignedDeletion is a Deletion plus the signature authorizing it.
type SignedDeletion struct {
	Deletion
	Signature []byte `json:"signature"`
}

// SignedBatch mirrors Batch for the signed variant.
type SignedBatch[V any] struct {
	Insertions []SignedInsertion[V] `json:"insertions"`
	Deletions  []SignedDeletion     `json:"deletions"`
}

func (b SignedBatch[V]) empty() bool {
	return len(b.Insertions) == 0 && len(b.Deletions) == 0
}

// SignedDump mirrors Dump for the signed variant.
type SignedDump[V any] struct {
	Live       []SignedInsertion[V] `json:"live"`
	Tombstones []SignedDeletion     `json:"tombstones"`
}
