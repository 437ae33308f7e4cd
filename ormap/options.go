package ormap

import (
	"time"

	"go.uber.org/zap"

	"github.com/wehriam/observed-remove-level/signing"
)

const (
	// DefaultMaxAge is how long a tombstone (and, on a signed Map, its
	// matching deletion signature) survives before Flush drops it.
	DefaultMaxAge = 5 * time.Second
	// DefaultBufferPublishing is the Options.BufferPublishing applied when
	// the field is left at its zero value. Callers that want immediate,
	// unbuffered publishing must set BufferPublishing to a negative value
	// instead.
	DefaultBufferPublishing = 30 * time.Millisecond
)

// Options configures a Map or SignedMap.
type Options struct {
	// MaxAge is how long a tombstone survives before it is eligible for
	// Flush. Zero selects DefaultMaxAge.
	MaxAge time.Duration
	// BufferPublishing is how long Set/Delete coalesce into a single
	// publish. Zero selects DefaultBufferPublishing; a negative value
	// publishes every operation immediately with no coalescing.
	BufferPublishing time.Duration
	// Namespace is not read by Map. A pebblekv.Store is scoped to its
	// namespace when it is created (pebblekv.Open/pebblekv.New), and
	// store.Memory has no namespace.
	Namespace string
	// Verifier authorizes incoming signed operations. Required for
	// NewSigned, unused by New.
	Verifier *signing.Verifier
	// Observer receives semantic events. Defaults to NopObserver.
	Observer Observer
	// Logger receives structured diagnostic output. Defaults to
	// zap.NewNop().
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.BufferPublishing == 0 {
		o.BufferPublishing = DefaultBufferPublishing
	} else if o.BufferPublishing < 0 {
		o.BufferPublishing = 0
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
