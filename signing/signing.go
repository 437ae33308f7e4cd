// Package signing adapts golang.org/x/mod/sumdb/note's signed-note format to
// the single operation the signed OR-Map needs: signing and verifying the
// tuple (key, value?, id) that authorizes one insertion or deletion. The
// note format already carries its own algorithm/format tag baked into the
// key string (e.g. "Ed25519" note keys begin with a name, a key-hash, and
// tagged key bytes), so this package does not invent a second format
// registry on top of it.
package signing

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/mod/sumdb/note"

	"github.com/wehriam/observed-remove-level/fingerprint"
)

// ErrSignatureMismatch is returned by Verify when the signature is
// syntactically valid and made by the expected key, but does not cover the
// (key, value, id) tuple presented for verification.
var ErrSignatureMismatch = errors.New("signing: signature does not cover the given key/value/id")

type payload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	ID    string          `json:"id"`
}

func payloadText(key string, value []byte, hasValue bool, id string) (string, error) {
	p := payload{Key: key, ID: id}
	if hasValue {
		p.Value = json.RawMessage(value)
	}
	b, err := fingerprint.Canonical(p)
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// Signer signs (key, value?, id) tuples with a note.Signer private key.
type Signer struct {
	signer note.Signer
}

// NewSigner parses a note signing key (as produced by note.GenerateKey) and
// returns a Signer wrapping it.
func NewSigner(signingKey string) (*Signer, error) {
	s, err := note.NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing: parse signer key: %w", err)
	}
	return &Signer{signer: s}, nil
}

// Sign returns the opaque signature bytes authorizing the given insertion
// (hasValue=true) or deletion (hasValue=false) of key at id.
func (s *Signer) Sign(key string, value []byte, hasValue bool, id string) ([]byte, error) {
	text, err := payloadText(key, value, hasValue, id)
	if err != nil {
		return nil, err
	}
	signed, err := note.Sign(&note.Note{Text: text}, s.signer)
	if err != nil {
		return nil, fmt.Errorf("signing: sign: %w", err)
	}
	return signed, nil
}

// Verifier verifies (key, value?, id) tuples against a note.Verifier public
// key. A Verifier holds no secret material and is safe to share freely.
type Verifier struct {
	verifier note.Verifier
}

// NewVerifier parses a note verifier key string and returns a Verifier
// wrapping it.
func NewVerifier(verifierKey string) (*Verifier, error) {
	v, err := note.NewVerifier(verifierKey)
	if err != nil {
		return nil, fmt.Errorf("signing: parse verifier key: %w", err)
	}
	return &Verifier{verifier: v}, nil
}

// Verify checks that signature authorizes the given insertion or deletion of
// key at id, under this Verifier's key. Any failure (malformed signature,
// signature from an unrecognized key, or a signature over a different
// (key, value, id) tuple) is reported as a non-nil error.
func (v *Verifier) Verify(key string, value []byte, hasValue bool, id string, signature []byte) error {
	want, err := payloadText(key, value, hasValue, id)
	if err != nil {
		return err
	}

	n, err := note.Open(signature, note.VerifierList(v.verifier))
	if err != nil {
		return fmt.Errorf("signing: open signature: %w", err)
	}
	if n.Text != want {
		return ErrSignatureMismatch
	}
	return nil
}
