package messaging

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRender_SingleArg(t *testing.T) {
	got, err := render("loan_approved", map[string]string{"value": "5,000"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	want := "Your Saathi loan of ₹5,000 has been approved. Funds will reach your UPI shortly."
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_TwoArgs(t *testing.T) {
	got, err := render("vouch_received", map[string]string{"actor": "Priya", "value": "₹500"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	want := "Priya has vouched for you in your circle with a ₹500 stake."
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := render("not_a_template", nil)
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSendSMS_PostsExpectedForm(t *testing.T) {
	c := New("AC123", "token", "+15551230000", "+15559990000", nil)

	var capturedBody string
	c.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if user, pass, ok := req.BasicAuth(); !ok || user != "AC123" || pass != "token" {
			t.Errorf("expected basic auth AC123/token, got %s/%s", user, pass)
		}
		b, _ := io.ReadAll(req.Body)
		capturedBody = string(b)
		return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	})

	err := c.SendSMS(context.Background(), "+919876543210", "repayment_due", map[string]string{"value": "1,200"})
	if err != nil {
		t.Fatalf("SendSMS failed: %v", err)
	}
	if capturedBody == "" {
		t.Fatal("expected a non-empty form body to be sent")
	}
}

func TestSendSMS_TwilioError(t *testing.T) {
	c := New("AC123", "token", "+15551230000", "+15559990000", nil)
	c.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	})

	err := c.SendSMS(context.Background(), "+919876543210", "loan_approved", map[string]string{"value": "100"})
	if err == nil {
		t.Fatal("expected error on non-2xx twilio response")
	}
}
