package ormap

// Observer receives semantic events as a Map applies local and remote
// operations. Handlers run synchronously on the calling goroutine and must
// not call back into the Map they were notified by: Process and the
// mutators hold the Map's internal lock for the duration of a batch, so a
// reentrant call would deadlock.
type Observer interface {
	// OnPublish fires when a batch of locally-produced operations is ready
	// to hand to a transport. batch is a Batch[V] for an unsigned Map, a
	// SignedBatch[V] for a SignedMap, or a gzip-compressed []byte for a set.
	// Sync with a nil queue publishes a Dump[V] (Map) or SignedDump[V]
	// (SignedMap) instead.
	OnPublish(batch any)
	// OnSet fires when a new live pair is installed, either because the key
	// had no previous entry (hasPrevious=false) or because a larger-id
	// insertion superseded one (hasPrevious=true, previous holds the old
	// value).
	OnSet(key string, value any, previous any, hasPrevious bool)
	// OnDelete fires when a live pair is removed.
	OnDelete(key string, value any)
	// OnAffirm fires when an insertion identical in id to the one already
	// installed for its key is re-observed.
	OnAffirm(key string, value any)
	// OnError fires for failures encountered outside the synchronous
	// call path that produced them, e.g. during readiness seeding.
	OnError(err error)
}

// NopObserver discards every event. It is the default when no Observer is
// configured.
type NopObserver struct{}

func (NopObserver) OnPublish(any)                {}
func (NopObserver) OnSet(string, any, any, bool) {}
func (NopObserver) OnDelete(string, any)         {}
func (NopObserver) OnAffirm(string, any)         {}
func (NopObserver) OnError(error)                {}

var _ Observer = NopObserver{}
