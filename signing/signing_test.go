package signing

import (
	"crypto/rand"
	"testing"

	"golang.org/x/mod/sumdb/note"
)

func mustKeyPair(t *testing.T, name string) (*Signer, *Verifier) {
	t.Helper()
	skey, vkey, err := note.GenerateKey(rand.Reader, name)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewSigner(skey)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier(vkey)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return signer, verifier
}

func TestSignVerifyInsertionRoundTrip(t *testing.T) {
	signer, verifier := mustKeyPair(t, "replica-a")

	sig, err := signer.Sign("k", []byte(`"v1"`), true, "000000001abcd")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := verifier.Verify("k", []byte(`"v1"`), true, "000000001abcd", sig); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}
}

func TestSignVerifyDeletionHasNoValue(t *testing.T) {
	signer, verifier := mustKeyPair(t, "replica-a")

	sig, err := signer.Sign("k", nil, false, "000000001abcd")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := verifier.Verify("k", nil, false, "000000001abcd", sig); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}
	// A deletion signature must not verify as an insertion signature even
	// when the "value" happens to be empty/nil for both.
	if err := verifier.Verify("k", []byte("null"), true, "000000001abcd", sig); err == nil {
		t.Fatal("expected deletion signature to not verify against an insertion payload")
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	signerA, _ := mustKeyPair(t, "replica-a")
	_, verifierB := mustKeyPair(t, "replica-b")

	sig, err := signerA.Sign("k", []byte(`1`), true, "000000001abcd")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := verifierB.Verify("k", []byte(`1`), true, "000000001abcd", sig); err == nil {
		t.Fatal("expected signature from a different key to be rejected")
	}
}

func TestVerifyRejectsTamperedTuple(t *testing.T) {
	signer, verifier := mustKeyPair(t, "replica-a")

	sig, err := signer.Sign("k", []byte(`1`), true, "000000001abcd")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := verifier.Verify("k", []byte(`2`), true, "000000001abcd", sig); err == nil {
		t.Fatal("expected tampered value to fail verification")
	}
	if err := verifier.Verify("other-key", []byte(`1`), true, "000000001abcd", sig); err == nil {
		t.Fatal("expected tampered key to fail verification")
	}
	if err := verifier.Verify("k", []byte(`1`), true, "000000002zzzz", sig); err == nil {
		t.Fatal("expected tampered id to fail verification")
	}
}

func TestVerifyRejectsGarbageSignature(t *testing.T) {
	_, verifier := mustKeyPair(t, "replica-a")
	if err := verifier.Verify("k", []byte(`1`), true, "000000001abcd", []byte("not a signature")); err == nil {
		t.Fatal("expected garbage bytes to fail verification")
	}
}
