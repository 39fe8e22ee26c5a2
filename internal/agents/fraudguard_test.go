package agents

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/ports"
)

func newFraudContext(trustScore int) *agentctx.AgentContext {
	actx := agentctx.New("user_1", "need a loan", agentctx.LanguageEN)
	actx.TrustScore = trustScore
	return actx
}

func TestFraudGuard_Run_ClearByDefault(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(50)

	result := fg.Run(context.Background(), actx)
	if !result.Success {
		t.Fatal("expected success")
	}
	fr := result.Result.(FraudGuardResult)
	if fr.Verdict != fraudVerdictClear {
		t.Errorf("expected CLEAR verdict on a clean context, got %s", fr.Verdict)
	}
	if !fr.CanProceed {
		t.Error("expected CanProceed true for a CLEAR verdict")
	}
	if len(fr.Checks) != 4 {
		t.Errorf("expected 4 checks, got %d", len(fr.Checks))
	}
}

func TestFraudGuard_VelocityCheck_FlagsBurst(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(50)
	now := time.Now()
	for i := 0; i < 4; i++ {
		actx.Loans = append(actx.Loans, &ports.Loan{CreatedAt: now})
	}

	check := fg.velocityCheck(actx)
	if !check.Suspicious {
		t.Error("expected velocity check to flag 4 loan requests within 24h")
	}
}

func TestFraudGuard_CollusionCheck_FlagsSingleVoucherDominance(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(50)
	actx.Vouches = []*ports.Vouch{
		{VoucherAddr: "0xaaa"},
		{VoucherAddr: "0xaaa"},
		{VoucherAddr: "0xaaa"},
		{VoucherAddr: "0xaaa"},
		{VoucherAddr: "0xaaa"},
		{VoucherAddr: "0xbbb"},
	}

	check := fg.collusionCheck(actx)
	if !check.Suspicious {
		t.Error("expected collusion check to flag a voucher behind over 80% of vouches")
	}
}

func TestFraudGuard_CollusionCheck_BalancedVouchersNotFlagged(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(50)
	actx.Vouches = []*ports.Vouch{
		{VoucherAddr: "0xaaa"},
		{VoucherAddr: "0xbbb"},
	}

	check := fg.collusionCheck(actx)
	if check.Suspicious {
		t.Error("expected balanced vouchers not to be flagged")
	}
}

func TestFraudGuard_BehaviorCheck_FlagsHighTrustThinHistory(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(90)
	actx.Loans = []*ports.Loan{{Status: "completed"}}

	check := fg.behaviorCheck(actx)
	if !check.Suspicious {
		t.Error("expected behavior check to flag high trust with thin loan history")
	}
}

func TestFraudGuard_SybilCheck_RequiresCirclesAndVouchVolume(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(50)
	now := time.Now()
	actx.Circles = []*ports.Circle{
		{ID: "c1", CreatedAt: now},
		{ID: "c2", CreatedAt: now},
	}
	for i := 0; i < 6; i++ {
		actx.Vouches = append(actx.Vouches, &ports.Vouch{})
	}

	check := fg.sybilCheck(actx)
	if !check.Suspicious {
		t.Error("expected sybil check to flag multiple freshly-created circles with heavy vouching")
	}
}

func TestFraudGuard_SybilCheck_OldCircleNotFlagged(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(50)
	actx.Circles = []*ports.Circle{
		{ID: "c1", CreatedAt: time.Now().AddDate(0, -1, 0)},
	}
	for i := 0; i < 6; i++ {
		actx.Vouches = append(actx.Vouches, &ports.Vouch{})
	}

	check := fg.sybilCheck(actx)
	if check.Suspicious {
		t.Error("expected an established circle not to be flagged by the sybil check")
	}
}

func TestFraudGuard_VerdictFor(t *testing.T) {
	fg := NewFraudGuard()
	cases := []struct {
		risk float64
		want string
	}{
		{0.9, fraudVerdictBlock},
		{0.8, fraudVerdictBlock},
		{0.6, fraudVerdictReview},
		{0.5, fraudVerdictReview},
		{0.35, fraudVerdictWarn},
		{0.1, fraudVerdictClear},
	}
	for _, c := range cases {
		if got := fg.verdictFor(c.risk); got != c.want {
			t.Errorf("verdictFor(%v): expected %s, got %s", c.risk, c.want, got)
		}
	}
}

func TestFraudGuard_Run_BlockedVerdictCannotProceed(t *testing.T) {
	fg := NewFraudGuard()
	actx := newFraudContext(90)
	now := time.Now()
	for i := 0; i < 4; i++ {
		actx.Loans = append(actx.Loans, &ports.Loan{CreatedAt: now, Status: "voting"})
	}
	actx.Vouches = []*ports.Vouch{
		{VoucherAddr: "0xaaa"}, {VoucherAddr: "0xaaa"}, {VoucherAddr: "0xaaa"}, {VoucherAddr: "0xaaa"},
	}

	result := fg.Run(context.Background(), actx)
	fr := result.Result.(FraudGuardResult)
	if fr.Verdict == fraudVerdictClear {
		t.Error("expected a heavily-flagged context not to come back CLEAR")
	}
	if fr.CanProceed {
		t.Errorf("expected verdict %s to stop the request from proceeding", fr.Verdict)
	}
}
