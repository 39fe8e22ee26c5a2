package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/reasoning"
)

const (
	fraudVerdictBlock  = "BLOCK"
	fraudVerdictReview = "REVIEW"
	fraudVerdictWarn   = "WARN"
	fraudVerdictClear  = "CLEAR"
)

// fraudCheck is one of FraudGuard's four independent pattern checks.
type fraudCheck struct {
	Name       string  `json:"name"`
	Suspicious bool    `json:"suspicious"`
	Reason     string  `json:"reason"`
	RiskWeight float64 `json:"risk_weight"`
}

// FraudGuardResult is FraudGuard's result payload.
type FraudGuardResult struct {
	Verdict    string       `json:"verdict"`
	Risk       float64      `json:"risk"`
	CanProceed bool         `json:"can_proceed"`
	Checks     []fraudCheck `json:"checks"`
}

// FraudGuard runs four independent pattern checks and combines them into
// a single verdict.
type FraudGuard struct{}

func NewFraudGuard() *FraudGuard { return &FraudGuard{} }

func (f *FraudGuard) Name() Name { return NameFraudGuard }

func (f *FraudGuard) Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult {
	trace := reasoning.New(string(NameFraudGuard), "detect fraud patterns")
	trace.Observe(fmt.Sprintf("screening borrower %s", actx.UserID))

	checks := []fraudCheck{
		f.velocityCheck(actx),
		f.collusionCheck(actx),
		f.behaviorCheck(actx),
		f.sybilCheck(actx),
	}

	var risk float64
	var flagged int
	for _, c := range checks {
		if c.Suspicious {
			risk += c.RiskWeight
			flagged++
		}
	}
	risk = minFloat(risk, 1)
	trace.Analyze(fmt.Sprintf("%d/4 checks flagged, risk=%.4f", flagged, risk))

	verdict := f.verdictFor(risk)
	canProceed := verdict == fraudVerdictClear || verdict == fraudVerdictWarn
	trace.Hypothesize(fmt.Sprintf("verdict=%s can_proceed=%v", verdict, canProceed))
	if !canProceed {
		trace.Act("blocked pending manual review")
	}
	trace.Conclude(verdict)

	return &agentctx.AgentResult{
		AgentName: string(NameFraudGuard),
		Success:   true,
		Result: FraudGuardResult{
			Verdict:    verdict,
			Risk:       risk,
			CanProceed: canProceed,
			Checks:     checks,
		},
		Trace: trace,
	}
}

func (f *FraudGuard) verdictFor(risk float64) string {
	switch {
	case risk >= 0.8:
		return fraudVerdictBlock
	case risk >= 0.5:
		return fraudVerdictReview
	case risk >= 0.3:
		return fraudVerdictWarn
	default:
		return fraudVerdictClear
	}
}

// velocityCheck flags more than 3 loan requests in the last 24h.
func (f *FraudGuard) velocityCheck(actx *agentctx.AgentContext) fraudCheck {
	cutoff := time.Now().Add(-24 * time.Hour)
	var recent int
	for _, l := range actx.Loans {
		if l.CreatedAt.After(cutoff) {
			recent++
		}
	}
	return fraudCheck{
		Name:       "velocity",
		Suspicious: recent > 3,
		Reason:     fmt.Sprintf("%d loan requests in the last 24h", recent),
		RiskWeight: 0.30,
	}
}

// collusionCheck flags a single voucher accounting for more than 80% of
// received vouches.
func (f *FraudGuard) collusionCheck(actx *agentctx.AgentContext) fraudCheck {
	suspicious := false
	if len(actx.Vouches) > 0 {
		counts := make(map[string]int)
		for _, v := range actx.Vouches {
			counts[v.VoucherAddr]++
		}
		total := len(actx.Vouches)
		for _, n := range counts {
			if float64(n)/float64(total) > 0.8 {
				suspicious = true
				break
			}
		}
	}
	return fraudCheck{
		Name:       "collusion",
		Suspicious: suspicious,
		Reason:     "a single voucher accounts for over 80% of received vouches",
		RiskWeight: 0.40,
	}
}

// behaviorCheck flags an unusually high trust score paired with
// negligible loan history.
func (f *FraudGuard) behaviorCheck(actx *agentctx.AgentContext) fraudCheck {
	suspicious := actx.TrustScore > 80 && len(actx.Loans) < 2
	return fraudCheck{
		Name:       "behavior",
		Suspicious: suspicious,
		Reason:     "trust score over 80 with fewer than 2 loans on record",
		RiskWeight: 0.25,
	}
}

// sybilCheck flags every circle created within the last 7 days combined
// with more than 5 vouches — a signature of freshly spun-up ring accounts.
func (f *FraudGuard) sybilCheck(actx *agentctx.AgentContext) fraudCheck {
	suspicious := false
	if len(actx.Circles) > 0 && len(actx.Vouches) > 5 {
		cutoff := time.Now().Add(-7 * 24 * time.Hour)
		allRecent := true
		for _, c := range actx.Circles {
			if !c.CreatedAt.After(cutoff) {
				allRecent = false
				break
			}
		}
		suspicious = allRecent
	}
	return fraudCheck{
		Name:       "sybil",
		Suspicious: suspicious,
		Reason:     "all circles under 7 days old with more than 5 vouches",
		RiskWeight: 0.35,
	}
}
