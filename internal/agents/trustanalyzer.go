package agents

import (
	"context"
	"fmt"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/reasoning"
)

// scoreBreakdown is TrustAnalyzer's decomposition of the network-quality score.
type scoreBreakdown struct {
	Base     int `json:"base"`
	Vouches  int `json:"vouches"`
	Loans    int `json:"loans"`
	Circles  int `json:"circles"`
	Learning int `json:"learning"`
}

// TrustAnalyzerResult is TrustAnalyzer's result payload.
type TrustAnalyzerResult struct {
	Score          int            `json:"score"`
	Breakdown      scoreBreakdown `json:"breakdown"`
	VouchGrade     string         `json:"vouch_quality_grade"`
	PredictedDelta int            `json:"predicted_30d_delta"`
	Tips           []string       `json:"tips"`
	BharosaLevel   string         `json:"bharosa_level"`
	BharosaVisual  string         `json:"bharosa_visual"`
}

// TrustAnalyzer computes a borrower's network-quality score from their
// vouch, loan, and circle history.
type TrustAnalyzer struct{}

func NewTrustAnalyzer() *TrustAnalyzer { return &TrustAnalyzer{} }

func (t *TrustAnalyzer) Name() Name { return NameTrustAnalyzer }

func (t *TrustAnalyzer) Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult {
	trace := reasoning.New(string(NameTrustAnalyzer), "assess network quality")
	trace.Observe(fmt.Sprintf("vouches=%d loans=%d circles=%d", len(actx.Vouches), len(actx.Loans), len(actx.Circles)))

	breakdown := t.computeBreakdown(actx)
	score := breakdown.Base + breakdown.Vouches + breakdown.Loans + breakdown.Circles + breakdown.Learning
	trace.Analyze(fmt.Sprintf("score breakdown: base=%d vouches=%d loans=%d circles=%d learning=%d",
		breakdown.Base, breakdown.Vouches, breakdown.Loans, breakdown.Circles, breakdown.Learning))

	grade := t.vouchGrade(actx)
	delta := t.predictDelta(actx)
	tips := t.tipsFor(breakdown)
	trace.Hypothesize(fmt.Sprintf("vouch grade %s, predicted 30d delta %+d", grade, delta))

	level, visual := bharosaPresentation(score)
	trace.Act(fmt.Sprintf("presentation level %s", level))
	trace.Conclude(fmt.Sprintf("score=%d grade=%s", score, grade))

	return &agentctx.AgentResult{
		AgentName: string(NameTrustAnalyzer),
		Success:   true,
		Result: TrustAnalyzerResult{
			Score:          score,
			Breakdown:      breakdown,
			VouchGrade:     grade,
			PredictedDelta: delta,
			Tips:           tips,
			BharosaLevel:   level,
			BharosaVisual:  visual,
		},
		Trace: trace,
	}
}

func (t *TrustAnalyzer) computeBreakdown(actx *agentctx.AgentContext) scoreBreakdown {
	active := activeVouches(actx)
	vouchPoints := clampInt(len(active)*5, 0, 30)

	var completedLoans int
	for _, l := range actx.Loans {
		if l.Status == "completed" {
			completedLoans++
		}
	}
	loanPoints := clampInt(completedLoans*10, 0, 40)

	circlePoints := clampInt(len(actx.Circles)*5, 0, 15)

	base := 10
	used := base + vouchPoints + loanPoints + circlePoints
	learning := clampInt(100-used, 0, 100)

	return scoreBreakdown{
		Base:     base,
		Vouches:  vouchPoints,
		Loans:    loanPoints,
		Circles:  circlePoints,
		Learning: learning,
	}
}

func (t *TrustAnalyzer) vouchGrade(actx *agentctx.AgentContext) string {
	active := activeVouches(actx)
	var strongOrMax int
	var stakeSum float64
	for _, v := range active {
		if v.Level == "strong" || v.Level == "maximum" {
			strongOrMax++
		}
		stakeSum += v.Amount
	}

	switch {
	case strongOrMax >= 3 && stakeSum >= 200:
		return "A"
	case strongOrMax >= 2 || stakeSum >= 100:
		return "B"
	case len(active) >= 2:
		return "C"
	default:
		return "D"
	}
}

func (t *TrustAnalyzer) predictDelta(actx *agentctx.AgentContext) int {
	var delta int
	if countActiveLoans(actx) > 0 {
		delta += 5
	}
	if len(activeVouches(actx)) > 0 {
		delta += 3
	}
	if len(actx.Circles) >= 2 {
		delta += 2
	}
	return clampInt(delta, 0, 100)
}

// tipsFor returns up to 3 catalog tips conditional on breakdown deficits.
func (t *TrustAnalyzer) tipsFor(b scoreBreakdown) []string {
	var tips []string
	if b.Vouches < 30 {
		tips = append(tips, "Ask trusted circle members to vouch for you")
	}
	if b.Loans < 40 {
		tips = append(tips, "Complete an active loan on time to build repayment history")
	}
	if b.Circles < 15 {
		tips = append(tips, "Join another lending circle to widen your network")
	}
	if len(tips) > 3 {
		tips = tips[:3]
	}
	return tips
}

func bharosaPresentation(score int) (level, visual string) {
	switch {
	case score >= 80:
		level = "pakka_bharosa"
	case score >= 60:
		level = "bhrosemand"
	case score >= 40:
		level = "building"
	case score >= 20:
		level = "new"
	default:
		level = "starting"
	}
	return level, fmt.Sprintf("%s (%d/100)", level, score)
}
