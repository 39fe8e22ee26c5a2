package auth

import (
	"testing"
	"time"
)

func TestVerifier_IssueThenVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	claims := Claims{Subject: "0xabc", Role: "user", IssuedAt: time.Now().Unix(), ExpiresAt: time.Now().Add(time.Hour).Unix()}

	token, err := v.Issue(claims)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Subject != claims.Subject || got.Role != claims.Role {
		t.Errorf("expected claims to round-trip, got %+v", got)
	}
}

func TestVerifier_EmptySecretRejectsEverything(t *testing.T) {
	v := NewVerifier("")
	_, err := v.Verify("anything.here")
	if err != ErrBadSignature {
		t.Errorf("expected ErrBadSignature with an empty secret, got %v", err)
	}
}

func TestVerifier_MalformedTokenMissingSeparator(t *testing.T) {
	v := NewVerifier("secret")
	_, err := v.Verify("no-dot-here")
	if err != ErrMalformedToken {
		t.Errorf("expected ErrMalformedToken, got %v", err)
	}
}

func TestVerifier_MalformedTokenEmptyParts(t *testing.T) {
	v := NewVerifier("secret")
	_, err := v.Verify(".sig")
	if err != ErrMalformedToken {
		t.Errorf("expected ErrMalformedToken for an empty payload, got %v", err)
	}
}

func TestVerifier_WrongSecretFailsSignature(t *testing.T) {
	issuer := NewVerifier("secret-a")
	token, err := issuer.Issue(Claims{Subject: "0xabc"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	verifier := NewVerifier("secret-b")
	_, err = verifier.Verify(token)
	if err != ErrBadSignature {
		t.Errorf("expected ErrBadSignature with a mismatched secret, got %v", err)
	}
}

func TestVerifier_TamperedPayloadFailsSignature(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue(Claims{Subject: "0xabc"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tampered := "xx" + token[2:]
	_, err = v.Verify(tampered)
	if err != ErrBadSignature {
		t.Errorf("expected ErrBadSignature for a tampered token, got %v", err)
	}
}

func TestVerifier_ExpiredTokenRejected(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue(Claims{Subject: "0xabc", ExpiresAt: time.Now().Add(-time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = v.Verify(token)
	if err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifier_ZeroExpiryNeverExpires(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue(Claims{Subject: "0xabc", ExpiresAt: 0})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := v.Verify(token); err != nil {
		t.Errorf("expected a zero expiry to never expire, got %v", err)
	}
}
