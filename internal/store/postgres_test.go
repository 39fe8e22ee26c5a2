package store

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/testutil"
)

func TestPostgresStore_ProfileRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	if err := s.SaveCircle(ctx, &ports.Circle{ID: "circle_nellai", Name: "Nellai"}); err != nil {
		t.Fatalf("SaveCircle failed: %v", err)
	}

	prof := &ports.Profile{
		Address:           "0x1111111111111111111111111111111111111111",
		Name:              "Priya",
		PhoneNumber:       "+919876543210",
		PreferredLanguage: "hi",
		TrustScore:        72.5,
		CircleID:          "circle_nellai",
		UPIHandle:         "priya@upi",
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := s.SaveProfile(ctx, prof); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got, err := s.GetProfile(ctx, prof.Address)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Name != prof.Name || got.TrustScore != prof.TrustScore || got.UPIHandle != prof.UPIHandle {
		t.Errorf("round-tripped profile mismatch: got %+v", got)
	}
}

func TestPostgresStore_LoanLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	if err := s.SaveCircle(ctx, &ports.Circle{ID: "circle_nellai", Name: "Nellai"}); err != nil {
		t.Fatalf("SaveCircle failed: %v", err)
	}

	borrower :="0x2222222222222222222222222222222222222222"
	if err := s.SaveProfile(ctx, &ports.Profile{Address: borrower, CircleID: "circle_nellai", CreatedAt: time.Now(), UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	loan := &ports.Loan{
		ID:              "loan_test_1",
		BorrowerAddress: borrower,
		CircleID:        "circle_nellai",
		AmountRequested: 5000,
		Status:          "voting",
		CreatedAt:       time.Now(),
	}
	if err := s.SaveLoan(ctx, loan); err != nil {
		t.Fatalf("SaveLoan failed: %v", err)
	}

	loan.Status = "approved"
	loan.AmountApproved = 5000
	loan.DecidedAt = time.Now()
	if err := s.SaveLoan(ctx, loan); err != nil {
		t.Fatalf("SaveLoan (update) failed: %v", err)
	}

	got, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoan failed: %v", err)
	}
	if got.Status != "approved" || got.AmountApproved != 5000 {
		t.Errorf("expected updated loan, got %+v", got)
	}

	pending, err := s.ListLoansByBorrower(ctx, borrower)
	if err != nil {
		t.Fatalf("ListLoansByBorrower failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 loan for borrower, got %d", len(pending))
	}
}

func TestPostgresStore_GetLoan_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	_, err := s.GetLoan(context.Background(), "nonexistent_loan")
	if err == nil {
		t.Fatal("expected an error for a missing loan")
	}
}

func TestPostgresStore_TransactionsAndBalance(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	addr := "0x3333333333333333333333333333333333333333"
	if err := s.SaveCircle(ctx, &ports.Circle{ID: "circle_nellai", Name: "Nellai"}); err != nil {
		t.Fatalf("SaveCircle failed: %v", err)
	}

	if err := s.SaveProfile(ctx, &ports.Profile{Address: addr, CircleID: "circle_nellai", CreatedAt: time.Now(), UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	if err := s.AppendTransaction(ctx, &ports.Transaction{
		ID: "txn_1", Address: addr, Amount: 1000, Reason: "disbursement", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	if err := s.AppendTransaction(ctx, &ports.Transaction{
		ID: "txn_2", Address: addr, Amount: -300, Reason: "repayment", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	balance, err := s.Balance(ctx, addr)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 700 {
		t.Errorf("expected balance 700, got %v", balance)
	}

	txns, err := s.ListTransactions(ctx, addr)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(txns))
	}
}
