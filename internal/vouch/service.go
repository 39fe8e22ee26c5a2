// Package vouch implements the vouching domain service: a member stakes
// SAATHI balance to back another member's creditworthiness. Store writes
// here are not transactional at the port, so the service debits first,
// creates the vouch record second, and compensates with a reversing
// credit plus a reconciliation record if the create step fails.
package vouch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbd888/saathi/internal/apperr"
	"github.com/mbd888/saathi/internal/idgen"
	"github.com/mbd888/saathi/internal/ports"
)

// levelConfig is one vouch level's stake range and the trust-score
// bump the vouchee receives when vouched at that level.
type levelConfig struct {
	MinStake    float64
	MaxStake    float64
	TrustImpact float64
}

var validLevels = map[string]levelConfig{
	"basic":   {MinStake: 10, MaxStake: 50, TrustImpact: 5},
	"strong":  {MinStake: 50, MaxStake: 200, TrustImpact: 10},
	"maximum": {MinStake: 200, MaxStake: 500, TrustImpact: 20},
}

// slashTrustPenalty is applied to the voucher's trust score for every
// vouch slashed, independent of how many vouches backed the defaulted
// loan: a voucher who backed a defaulter with three vouches answered
// for that default three times.
const slashTrustPenalty = -15

// Service creates vouches with debit/create/compensate semantics.
type Service struct {
	store  ports.Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a vouching service backed by store.
func NewService(store ports.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, locks: make(map[string]*sync.Mutex)}
}

func (s *Service) lockFor(address string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[address]
	if !ok {
		l = &sync.Mutex{}
		s.locks[address] = l
	}
	return l
}

// CreateVouch validates amount against level's stake range, debits the
// voucher's SAATHI balance, creates the vouch record, and credits the
// vouchee's trust score by level's trust impact. If the create fails
// after the debit, it issues a compensating credit and appends a
// reconciliation transaction so the failure is auditable even though
// the writes aren't atomic at the store port. The vouchee's trust-score
// bump is applied only after the vouch record itself is durable, so a
// failed create never grants trust for a vouch that doesn't exist.
func (s *Service) CreateVouch(ctx context.Context, voucherAddr, vouchedAddr, circleID, level string, amount float64) (*ports.Vouch, error) {
	cfg, ok := validLevels[level]
	if !ok {
		return nil, apperr.Validation("unknown vouch level: " + level)
	}
	if voucherAddr == vouchedAddr {
		return nil, apperr.Validation("cannot vouch for yourself")
	}
	if amount < cfg.MinStake {
		return nil, apperr.Validation(fmt.Sprintf("minimum stake for %s is %.0f SAATHI", level, cfg.MinStake))
	}
	if amount > cfg.MaxStake {
		return nil, apperr.Validation(fmt.Sprintf("maximum stake for %s is %.0f SAATHI", level, cfg.MaxStake))
	}

	lock := s.lockFor(voucherAddr)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.ListVouchesByVoucher(ctx, vouchedAddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "existing vouch lookup failed", err)
	}
	for _, v := range existing {
		if v.VoucherAddr == voucherAddr && v.Status == "active" {
			return nil, apperr.Conflict("already have an active vouch for this member")
		}
	}

	balance, err := s.store.Balance(ctx, voucherAddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "balance lookup failed", err)
	}
	if balance < amount {
		return nil, apperr.Validation("insufficient SAATHI balance for this vouch level")
	}

	vouch := &ports.Vouch{
		ID:          idgen.WithPrefix("vouch_"),
		VoucherAddr: voucherAddr,
		VouchedAddr: vouchedAddr,
		CircleID:    circleID,
		Level:       level,
		Amount:      amount,
		Status:      "active",
	}

	debit := &ports.Transaction{
		ID:      idgen.WithPrefix("txn_"),
		Address: voucherAddr,
		Amount:  -amount,
		Reason:  "vouch_stake",
		RefID:   vouch.ID,
	}
	if err := s.store.AppendTransaction(ctx, debit); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to debit voucher balance", err)
	}

	if err := s.store.SaveVouch(ctx, vouch); err != nil {
		s.compensate(ctx, voucherAddr, amount, vouch.ID, err)
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "failed to create vouch", err)
	}

	if _, err := s.store.UpdateTrustScore(ctx, vouchedAddr, cfg.TrustImpact, "received "+level+" vouch"); err != nil {
		s.logCritical(fmt.Sprintf("vouch %s: created but vouchee trust-score update failed: %v", vouch.ID, err))
	}

	return vouch, nil
}

// compensate reverses a successful debit when the paired vouch creation
// fails, and records a reconciliation transaction either way so the
// incident is auditable.
func (s *Service) compensate(ctx context.Context, voucherAddr string, amount float64, vouchID string, cause error) {
	credit := &ports.Transaction{
		ID:      idgen.WithPrefix("txn_"),
		Address: voucherAddr,
		Amount:  amount,
		Reason:  "vouch_stake_reversal",
		RefID:   vouchID,
	}
	if err := s.store.AppendTransaction(ctx, credit); err != nil {
		s.logCritical(fmt.Sprintf("vouch %s: debit succeeded, create failed (%v), AND compensating credit failed: %v", vouchID, cause, err))
		return
	}

	reconciliation := &ports.Transaction{
		ID:      idgen.WithPrefix("recon_"),
		Address: voucherAddr,
		Amount:  0,
		Reason:  "reconciliation: vouch create failed after debit, compensating credit issued",
		RefID:   vouchID,
	}
	if err := s.store.AppendTransaction(ctx, reconciliation); err != nil {
		s.logCritical(fmt.Sprintf("vouch %s: compensating credit issued but reconciliation record failed: %v", vouchID, err))
	}
}

func (s *Service) logCritical(msg string) {
	if s.logger != nil {
		s.logger.Error(msg)
	}
}

// ReturnVouch marks an active vouch returned and credits the voucher's
// stake back, used when the vouched loan completes without default.
func (s *Service) ReturnVouch(ctx context.Context, vouchID string) error {
	v, err := s.store.GetVouch(ctx, vouchID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "vouch not found", err)
	}
	if v.Status != "active" {
		return apperr.Conflict("vouch is not active")
	}

	v.Status = "returned"
	if err := s.store.SaveVouch(ctx, v); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to update vouch status", err)
	}

	credit := &ports.Transaction{
		ID:      idgen.WithPrefix("txn_"),
		Address: v.VoucherAddr,
		Amount:  v.Amount,
		Reason:  "vouch_return",
		RefID:   v.ID,
	}
	return s.store.AppendTransaction(ctx, credit)
}

// SlashVouch marks an active vouch slashed (the vouched borrower
// defaulted) without returning the stake to the voucher, and answers
// the voucher's trust score for backing a defaulter. Called once per
// vouch backing a defaulted loan, so a voucher who staked multiple
// vouches on the same defaulter is penalized once per vouch.
func (s *Service) SlashVouch(ctx context.Context, vouchID string) error {
	v, err := s.store.GetVouch(ctx, vouchID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "vouch not found", err)
	}
	if v.Status != "active" {
		return apperr.Conflict("vouch is not active")
	}
	v.Status = "slashed"
	if err := s.store.SaveVouch(ctx, v); err != nil {
		return apperr.Wrap(apperr.KindDependencyFailure, "failed to update vouch status", err)
	}
	if _, err := s.store.UpdateTrustScore(ctx, v.VoucherAddr, slashTrustPenalty, "vouched for a defaulter"); err != nil {
		s.logCritical(fmt.Sprintf("vouch %s: slashed but voucher trust-score penalty failed: %v", vouchID, err))
	}
	return nil
}
