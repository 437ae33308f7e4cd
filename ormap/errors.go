package ormap

import "errors"

// ErrInvalidSignature is returned by ProcessSigned/SetSigned/DeleteSigned
// when a signature fails verification. No partial state is ever applied:
// every signature in a batch is checked before any write is made.
var ErrInvalidSignature = errors.New("ormap: invalid signature")

// ErrMissingSignature is returned by a signed Map's Dump when a live pair
// or recent tombstone has no recorded signature. This indicates the
// signature store and the live/tombstone store have drifted apart.
var ErrMissingSignature = errors.New("ormap: missing signature for dump")
