package orset

import (
	"fmt"

	"github.com/wehriam/observed-remove-level/ormap"
)

// observerAdapter sits between a Set's inner ormap.Map and the caller's own
// Observer. It intercepts OnPublish, which the core hands a typed
// Batch[V]/Dump[V], and re-emits it as a gzip-compressed wire message;
// every other event passes through unchanged since set membership events
// look exactly like map events once the key is a hash instead of a
// caller's string.
type observerAdapter[V any] struct {
	inner ormap.Observer
}

func (o *observerAdapter[V]) OnPublish(batch any) {
	var unsigned ormap.Batch[V]
	switch b := batch.(type) {
	case ormap.Batch[V]:
		unsigned = b
	case ormap.Dump[V]:
		unsigned = ormap.Batch[V]{Insertions: b.Live, Deletions: b.Tombstones}
	default:
		o.inner.OnError(fmt.Errorf("orset: observer: unexpected publish payload %T", batch))
		return
	}

	encoded, err := encodeBatch(unsigned)
	if err != nil {
		o.inner.OnError(err)
		return
	}
	o.inner.OnPublish(encoded)
}

func (o *observerAdapter[V]) OnSet(key string, value any, previous any, hasPrevious bool) {
	o.inner.OnSet(key, value, previous, hasPrevious)
}

func (o *observerAdapter[V]) OnDelete(key string, value any) {
	o.inner.OnDelete(key, value)
}

func (o *observerAdapter[V]) OnAffirm(key string, value any) {
	o.inner.OnAffirm(key, value)
}

func (o *observerAdapter[V]) OnError(err error) {
	o.inner.OnError(err)
}

var _ ormap.Observer = (*observerAdapter[string])(nil)
