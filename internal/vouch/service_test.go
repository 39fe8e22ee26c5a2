package vouch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/mbd888/saathi/internal/apperr"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/store"
)

const (
	voucherAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	vouchedAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	circleID    = "circle_1"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(s, logger), s
}

func fund(t *testing.T, s *store.MemoryStore, address string, amount float64) {
	t.Helper()
	if err := s.AppendTransaction(context.Background(), &ports.Transaction{
		ID:      "seed_" + address,
		Address: address,
		Amount:  amount,
		Reason:  "seed",
	}); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func seedProfile(t *testing.T, s *store.MemoryStore, address string, trustScore float64) {
	t.Helper()
	if err := s.SaveProfile(context.Background(), &ports.Profile{
		Address:    address,
		TrustScore: trustScore,
	}); err != nil {
		t.Fatalf("seedProfile: %v", err)
	}
}

func TestCreateVouch(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, vouchedAddr, 50)

	v, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	if err != nil {
		t.Fatalf("CreateVouch: %v", err)
	}
	if v.Status != "active" {
		t.Errorf("expected active, got %s", v.Status)
	}
	if v.Amount != 20 {
		t.Errorf("expected amount 20, got %v", v.Amount)
	}

	balance, _ := s.Balance(context.Background(), voucherAddr)
	if balance != 80 {
		t.Errorf("expected voucher balance 80 after stake, got %v", balance)
	}

	profile, _ := s.GetProfile(context.Background(), vouchedAddr)
	if profile.TrustScore != 55 {
		t.Errorf("expected vouchee trust score bumped to 55, got %v", profile.TrustScore)
	}
}

func TestCreateVouch_UnknownLevel(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, vouchedAddr, 50)

	_, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "platinum", 20)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateVouch_SelfVouch(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)

	_, err := svc.CreateVouch(context.Background(), voucherAddr, voucherAddr, circleID, "basic", 20)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateVouch_StakeBelowMin(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, vouchedAddr, 50)

	_, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 5)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for stake below minimum, got %v", err)
	}
}

func TestCreateVouch_StakeAboveMax(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 1000)
	seedProfile(t, s, vouchedAddr, 50)

	_, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 51)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for stake above maximum, got %v", err)
	}
}

func TestCreateVouch_InsufficientBalance(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 5)
	seedProfile(t, s, vouchedAddr, 50)

	_, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 10)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for insufficient balance, got %v", err)
	}
}

func TestCreateVouch_DuplicateActiveVouch(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 1000)
	seedProfile(t, s, vouchedAddr, 50)

	if _, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20); err != nil {
		t.Fatalf("first CreateVouch: %v", err)
	}

	_, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "strong", 60)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict for duplicate active vouch, got %v", err)
	}
}

func TestCreateVouch_AllowedAfterPriorReturned(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 1000)
	seedProfile(t, s, vouchedAddr, 50)

	v, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	if err != nil {
		t.Fatalf("first CreateVouch: %v", err)
	}
	if err := svc.ReturnVouch(context.Background(), v.ID); err != nil {
		t.Fatalf("ReturnVouch: %v", err)
	}

	if _, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20); err != nil {
		t.Errorf("expected a new vouch to be allowed after the prior one returned, got %v", err)
	}
}

func TestReturnVouch(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, vouchedAddr, 50)

	v, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	if err != nil {
		t.Fatalf("CreateVouch: %v", err)
	}

	if err := svc.ReturnVouch(context.Background(), v.ID); err != nil {
		t.Fatalf("ReturnVouch: %v", err)
	}

	returned, _ := s.GetVouch(context.Background(), v.ID)
	if returned.Status != "returned" {
		t.Errorf("expected returned, got %s", returned.Status)
	}

	balance, _ := s.Balance(context.Background(), voucherAddr)
	if balance != 100 {
		t.Errorf("expected voucher balance restored to 100, got %v", balance)
	}
}

func TestReturnVouch_NotActive(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, vouchedAddr, 50)

	v, _ := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	_ = svc.ReturnVouch(context.Background(), v.ID)

	err := svc.ReturnVouch(context.Background(), v.ID)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict returning an already-returned vouch, got %v", err)
	}
}

func TestSlashVouch(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, voucherAddr, 60)
	seedProfile(t, s, vouchedAddr, 50)

	v, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	if err != nil {
		t.Fatalf("CreateVouch: %v", err)
	}

	if err := svc.SlashVouch(context.Background(), v.ID); err != nil {
		t.Fatalf("SlashVouch: %v", err)
	}

	slashed, _ := s.GetVouch(context.Background(), v.ID)
	if slashed.Status != "slashed" {
		t.Errorf("expected slashed, got %s", slashed.Status)
	}

	// stake is not returned on slash
	balance, _ := s.Balance(context.Background(), voucherAddr)
	if balance != 80 {
		t.Errorf("expected voucher balance to remain debited at 80, got %v", balance)
	}

	profile, _ := s.GetProfile(context.Background(), voucherAddr)
	if profile.TrustScore != 45 {
		t.Errorf("expected voucher trust score penalized to 45 (60-15), got %v", profile.TrustScore)
	}
}

func TestSlashVouch_AppliesPerVouch(t *testing.T) {
	// Two vouches backing the same defaulter must each carry their own
	// -15 penalty to the voucher who staked them.
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 1000)
	seedProfile(t, s, voucherAddr, 80)
	seedProfile(t, s, vouchedAddr, 50)
	seedProfile(t, s, "0xcccccccccccccccccccccccccccccccccccccccc", 50)

	v1, err := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	if err != nil {
		t.Fatalf("CreateVouch v1: %v", err)
	}
	v2, err := svc.CreateVouch(context.Background(), voucherAddr, "0xcccccccccccccccccccccccccccccccccccccccc", circleID, "basic", 20)
	if err != nil {
		t.Fatalf("CreateVouch v2: %v", err)
	}

	if err := svc.SlashVouch(context.Background(), v1.ID); err != nil {
		t.Fatalf("SlashVouch v1: %v", err)
	}
	if err := svc.SlashVouch(context.Background(), v2.ID); err != nil {
		t.Fatalf("SlashVouch v2: %v", err)
	}

	profile, _ := s.GetProfile(context.Background(), voucherAddr)
	if profile.TrustScore != 50 {
		t.Errorf("expected two -15 penalties (80-15-15=50), got %v", profile.TrustScore)
	}
}

func TestSlashVouch_NotActive(t *testing.T) {
	svc, s := newTestService(t)
	fund(t, s, voucherAddr, 100)
	seedProfile(t, s, voucherAddr, 60)
	seedProfile(t, s, vouchedAddr, 50)

	v, _ := svc.CreateVouch(context.Background(), voucherAddr, vouchedAddr, circleID, "basic", 20)
	_ = svc.ReturnVouch(context.Background(), v.ID)

	err := svc.SlashVouch(context.Background(), v.ID)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict slashing a non-active vouch, got %v", err)
	}
}
