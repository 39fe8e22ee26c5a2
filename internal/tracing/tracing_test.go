package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInit_NoOpWhenEndpointUnset(t *testing.T) {
	shutdown, err := Init(context.Background(), "", testLogger())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected no-op shutdown to succeed, got %v", err)
	}
}

func TestStartSpan_ReturnsUsableSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", LoanID("loan_1"), Amount(100))
	defer span.End()

	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	if span == nil {
		t.Fatal("expected non-nil span")
	}
}

func TestAttributeHelpers(t *testing.T) {
	if BorrowerAddr("0xabc").Key != "borrower.addr" {
		t.Errorf("unexpected key for BorrowerAddr: %s", BorrowerAddr("0xabc").Key)
	}
	if VoucherAddr("0xdef").Key != "voucher.addr" {
		t.Errorf("unexpected key for VoucherAddr: %s", VoucherAddr("0xdef").Key)
	}
	if LoanID("loan_1").Key != "loan.id" {
		t.Errorf("unexpected key for LoanID: %s", LoanID("loan_1").Key)
	}
	if VouchID("vouch_1").Key != "vouch.id" {
		t.Errorf("unexpected key for VouchID: %s", VouchID("vouch_1").Key)
	}
	if CircleID("circle_1").Key != "circle.id" {
		t.Errorf("unexpected key for CircleID: %s", CircleID("circle_1").Key)
	}
	if Amount(42).Key != "amount" {
		t.Errorf("unexpected key for Amount: %s", Amount(42).Key)
	}
}
