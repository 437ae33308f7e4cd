package orset

import (
	"time"

	"go.uber.org/zap"

	"github.com/wehriam/observed-remove-level/ormap"
)

// Options configures a Set. It mirrors ormap.Options minus the fields that
// make no sense for a value-hash-keyed set: there is no caller-supplied
// key, so there is no signed variant (a signature authorizes an id against
// a specific key, and a set's key is derived from the value it already
// signs over, so nothing is left for a Verifier to check that
// Hash128Hex doesn't already pin down).
type Options struct {
	// MaxAge is how long a tombstone survives before Flush drops it. Zero
	// selects ormap.DefaultMaxAge.
	MaxAge time.Duration
	// BufferPublishing is how long Add/Remove coalesce into a single
	// publish. Zero selects ormap.DefaultBufferPublishing; a negative
	// value publishes every operation immediately with no coalescing.
	BufferPublishing time.Duration
	// Namespace is passed through to the inner ormap.Options, which does not
	// read it. A pebblekv.Store is scoped to its namespace when it is
	// created (pebblekv.Open/pebblekv.New).
	Namespace string
	// Observer receives semantic events. OnPublish is handed a
	// gzip-compressed wire message rather than a typed batch. Defaults to
	// ormap.NopObserver.
	Observer ormap.Observer
	// Logger receives structured diagnostic output. Defaults to
	// zap.NewNop().
	Logger *zap.Logger
}

func (o Options) toCoreOptions(observer ormap.Observer) ormap.Options {
	return ormap.Options{
		MaxAge:           o.MaxAge,
		BufferPublishing: o.BufferPublishing,
		Namespace:        o.Namespace,
		Observer:         observer,
		Logger:           o.Logger,
	}
}

func (o Options) observerOrNop() ormap.Observer {
	if o.Observer == nil {
		return ormap.NopObserver{}
	}
	return o.Observer
}
