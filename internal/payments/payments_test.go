package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature_Valid(t *testing.T) {
	g := New("sk_test", "whsec_test", "https://example.com/ok", "https://example.com/cancel")
	payload := []byte(`{"event":"payment.succeeded"}`)
	sig := signPayload("whsec_test", payload)

	ok, err := g.VerifyWebhookSignature(payload, sig)
	if err != nil {
		t.Fatalf("VerifyWebhookSignature failed: %v", err)
	}
	if !ok {
		t.Error("expected valid signature to verify")
	}
}

func TestVerifyWebhookSignature_Tampered(t *testing.T) {
	g := New("sk_test", "whsec_test", "https://example.com/ok", "https://example.com/cancel")
	payload := []byte(`{"event":"payment.succeeded"}`)
	sig := signPayload("whsec_test", payload)

	ok, err := g.VerifyWebhookSignature([]byte(`{"event":"payment.refunded"}`), sig)
	if err != nil {
		t.Fatalf("VerifyWebhookSignature failed: %v", err)
	}
	if ok {
		t.Error("expected tampered payload to fail verification")
	}
}

func TestVerifyWebhookSignature_WrongSecret(t *testing.T) {
	g := New("sk_test", "whsec_test", "https://example.com/ok", "https://example.com/cancel")
	payload := []byte(`{"event":"payment.succeeded"}`)
	sig := signPayload("whsec_other", payload)

	ok, err := g.VerifyWebhookSignature(payload, sig)
	if err != nil {
		t.Fatalf("VerifyWebhookSignature failed: %v", err)
	}
	if ok {
		t.Error("expected signature signed with a different secret to fail")
	}
}

func TestVerifyWebhookSignature_NoSecretConfigured(t *testing.T) {
	g := New("sk_test", "", "https://example.com/ok", "https://example.com/cancel")

	_, err := g.VerifyWebhookSignature([]byte("payload"), "anything")
	if err == nil {
		t.Error("expected an error when no webhook secret is configured")
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{0, 0},
		{1, 100},
		{19.99, 1999},
		{500, 50000},
		{0.1, 10},
	}
	for _, c := range cases {
		if got := toMinorUnits(c.amount); got != c.want {
			t.Errorf("toMinorUnits(%v) = %d, want %d", c.amount, got, c.want)
		}
	}
}
