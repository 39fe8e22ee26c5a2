package agents

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/ports"
)

func newRiskContext(trustScore int) *agentctx.AgentContext {
	actx := agentctx.New("user_1", "need a loan", agentctx.LanguageEN)
	actx.TrustScore = trustScore
	return actx
}

func TestRiskOracle_Run_HighTrustNoHistory(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(90)

	result := ro.Run(context.Background(), actx)
	if !result.Success {
		t.Fatal("expected success")
	}
	rr, ok := result.Result.(RiskOracleResult)
	if !ok {
		t.Fatalf("expected RiskOracleResult, got %T", result.Result)
	}
	if rr.Category == "" {
		t.Error("expected a category to be assigned")
	}
	if _, ok := riskRecommendations[rr.Category]; !ok {
		t.Errorf("unexpected category %q", rr.Category)
	}
}

func TestRiskOracle_Run_UnsignedPayloadByDefault(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)

	result := ro.Run(context.Background(), actx)
	rr := result.Result.(RiskOracleResult)
	if rr.Oracle.Signed {
		t.Error("expected unsigned payload when no signing key configured")
	}
	if rr.Oracle.Signature == "" {
		t.Error("expected a digest fallback signature even when unsigned")
	}
}

func TestRiskOracle_Run_SignedPayloadWithKey(t *testing.T) {
	ro := NewRiskOracle("secret-key")
	actx := newRiskContext(50)

	result := ro.Run(context.Background(), actx)
	rr := result.Result.(RiskOracleResult)
	if !rr.Oracle.Signed {
		t.Error("expected signed payload when a signing key is configured")
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		risk float64
		want string
	}{
		{0.9, categoryLowRisk},
		{0.8, categoryLowRisk},
		{0.7, categoryModerateRisk},
		{0.6, categoryModerateRisk},
		{0.5, categoryElevatedRisk},
		{0.4, categoryElevatedRisk},
		{0.1, categoryHighRisk},
	}
	for _, c := range cases {
		if got := categorize(c.risk); got != c.want {
			t.Errorf("categorize(%v): expected %s, got %s", c.risk, c.want, got)
		}
	}
}

func TestIncomeStabilityFactor_InsufficientTotalHistory(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	actx.FinancialDiary = []*ports.DiaryEntry{
		{Type: "income", Amount: 1000, CreatedAt: time.Now()},
		{Type: "income", Amount: 1000, CreatedAt: time.Now()},
	}

	if got := ro.incomeStabilityFactor(actx); got != 0.3 {
		t.Errorf("expected 0.3 for fewer than 4 total income entries, got %v", got)
	}
}

func TestIncomeStabilityFactor_EnoughTotalButSparseRecent(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	old := time.Now().AddDate(0, 0, -60)
	actx.FinancialDiary = []*ports.DiaryEntry{
		{Type: "income", Amount: 1000, CreatedAt: old},
		{Type: "income", Amount: 1000, CreatedAt: old},
		{Type: "income", Amount: 1000, CreatedAt: old},
		{Type: "income", Amount: 1000, CreatedAt: time.Now()},
	}

	// 4 total entries clears the totalIncomeEntries gate, but only 1 of
	// them falls within the last 30 days, so the 0.4 fallback applies.
	if got := ro.incomeStabilityFactor(actx); got != 0.4 {
		t.Errorf("expected 0.4 when fewer than 2 recent samples, got %v", got)
	}
}

func TestIncomeStabilityFactor_ComputesCV(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	now := time.Now()
	actx.FinancialDiary = []*ports.DiaryEntry{
		{Type: "income", Amount: 1000, CreatedAt: now},
		{Type: "income", Amount: 1000, CreatedAt: now},
		{Type: "income", Amount: 1000, CreatedAt: now},
		{Type: "income", Amount: 1000, CreatedAt: now},
	}

	// Perfectly stable income (zero variance) should score at the ceiling.
	if got := ro.incomeStabilityFactor(actx); got != 1.0 {
		t.Errorf("expected 1.0 for zero-variance income, got %v", got)
	}
}

func TestCircleHealthFactor_NoCircles(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	if got := ro.circleHealthFactor(actx); got != 0.2 {
		t.Errorf("expected 0.2 with no circle membership, got %v", got)
	}
}

func TestCircleHealthFactor_MultipleCirclesScoresHigherThanOne(t *testing.T) {
	ro := NewRiskOracle("")
	one := newRiskContext(50)
	one.Circles = []*ports.Circle{{ID: "c1", Members: []string{"a", "b", "c"}}}

	many := newRiskContext(50)
	many.Circles = []*ports.Circle{
		{ID: "c1", Members: []string{"a", "b", "c"}},
		{ID: "c2", Members: []string{"a", "b", "c"}},
	}

	oneScore := ro.circleHealthFactor(one)
	manyScore := ro.circleHealthFactor(many)
	if manyScore <= oneScore {
		t.Errorf("expected multi-circle membership to score higher: one=%v many=%v", oneScore, manyScore)
	}
}

func TestVouchStrengthFactor_NoActiveVouches(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	if got := ro.vouchStrengthFactor(actx); got != 0.15 {
		t.Errorf("expected 0.15 with no active vouches, got %v", got)
	}
}

func TestRepaymentHistoryFactor_NoHistory(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	if got := ro.repaymentHistoryFactor(actx); got != 0.5 {
		t.Errorf("expected neutral 0.5 with no loan history, got %v", got)
	}
}

func TestRepaymentHistoryFactor_DefaultPenalized(t *testing.T) {
	ro := NewRiskOracle("")
	actx := newRiskContext(50)
	actx.Loans = []*ports.Loan{
		{Status: "completed"},
		{Status: "defaulted"},
	}
	got := ro.repaymentHistoryFactor(actx)
	if got >= 0.5 {
		t.Errorf("expected a default to pull the score below neutral, got %v", got)
	}
}
