package agents

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/reasoning"
)

// Risk category thresholds and recommendation table, spec §4.5.
const (
	categoryLowRisk      = "LOW_RISK"
	categoryModerateRisk = "MODERATE_RISK"
	categoryElevatedRisk = "ELEVATED_RISK"
	categoryHighRisk     = "HIGH_RISK"
)

var riskFactorWeights = map[string]float64{
	"trust_score":      0.25,
	"repaymentHistory": 0.25,
	"incomeStability":  0.15,
	"vouchStrength":    0.15,
	"circleHealth":     0.10,
	"loanToIncome":     0.10,
}

type riskRecommendation struct {
	maxLoan      float64
	tier         int
	interestRate float64
}

var riskRecommendations = map[string]riskRecommendation{
	categoryLowRisk:      {maxLoan: 50000, tier: 1, interestRate: 0.08},
	categoryModerateRisk: {maxLoan: 25000, tier: 2, interestRate: 0.10},
	categoryElevatedRisk: {maxLoan: 10000, tier: 3, interestRate: 0.12},
	categoryHighRisk:     {maxLoan: 5000, tier: 4, interestRate: 0.15},
}

var vouchLevelWeight = map[string]float64{
	"basic":   1,
	"strong":  2,
	"maximum": 3,
}

// RiskOraclePayload is the signed record emitted for on-chain/off-chain
// consumption as an input to lending decisions (spec §4.5).
type RiskOraclePayload struct {
	RiskScore          int            `json:"risk_score"`
	Category           string         `json:"category"`
	MaxRecommendedLoan float64        `json:"max_recommended_loan"`
	InterestTier       int            `json:"interest_tier"`
	Timestamp          int64          `json:"timestamp"`
	Factors            map[string]int `json:"factors"`
	Signature          string         `json:"signature"`
	Signed             bool           `json:"signed"`
}

// RiskOracleResult is RiskOracle's result payload written into
// AgentContext.agentResults["RiskOracle"].
type RiskOracleResult struct {
	Risk     float64            `json:"risk"`
	Category string             `json:"category"`
	MaxLoan  float64            `json:"max_loan"`
	Tier     int                `json:"tier"`
	Rate     float64            `json:"interest_rate"`
	Factors  map[string]float64 `json:"factors"`
	Oracle   RiskOraclePayload  `json:"oracle"`
}

// RiskOracle computes a six-factor weighted credit score.
type RiskOracle struct {
	signingKey []byte // optional; nil means digest-only fallback
}

// NewRiskOracle creates a RiskOracle. signingKey may be empty, in which
// case the oracle payload degrades to a plain digest (spec §9's signing
// fallback note).
func NewRiskOracle(signingKey string) *RiskOracle {
	ro := &RiskOracle{}
	if signingKey != "" {
		ro.signingKey = []byte(signingKey)
	}
	return ro
}

func (r *RiskOracle) Name() Name { return NameRiskOracle }

func (r *RiskOracle) Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult {
	trace := reasoning.New(string(NameRiskOracle), "score credit risk")
	trace.Observe(fmt.Sprintf("scoring borrower %s, trust_score=%d", actx.UserID, actx.TrustScore))

	factors := map[string]float64{
		"trust_score":      r.trustScoreFactor(actx),
		"repaymentHistory": r.repaymentHistoryFactor(actx),
		"incomeStability":  r.incomeStabilityFactor(actx),
		"vouchStrength":    r.vouchStrengthFactor(actx),
		"circleHealth":     r.circleHealthFactor(actx),
		"loanToIncome":     r.loanToIncomeFactor(actx),
	}

	var weighted, weightSum float64
	for name, weight := range riskFactorWeights {
		weighted += factors[name] * weight
		weightSum += weight
	}
	risk := clamp(weighted/weightSum, 0, 1)
	trace.Analyze(fmt.Sprintf("aggregate risk score %.4f", risk))

	category := categorize(risk)
	rec := riskRecommendations[category]
	maxLoan := rec.maxLoan

	outstanding := outstandingDebt(actx)
	if outstanding > 0 {
		maxLoan *= maxFloat(0.3, 1-outstanding/50000)
	}
	trace.Hypothesize(fmt.Sprintf("category=%s max_loan=%.2f", category, maxLoan))

	oracle := r.buildPayload(risk, category, maxLoan, rec.tier, factors)
	trace.Act("emitted signed oracle payload")

	result := RiskOracleResult{
		Risk:     risk,
		Category: category,
		MaxLoan:  maxLoan,
		Tier:     rec.tier,
		Rate:     rec.interestRate,
		Factors:  factors,
		Oracle:   oracle,
	}
	trace.Conclude(category)

	return &agentctx.AgentResult{
		AgentName: string(NameRiskOracle),
		Success:   true,
		Result:    result,
		Trace:     trace,
	}
}

func categorize(risk float64) string {
	switch {
	case risk >= 0.8:
		return categoryLowRisk
	case risk >= 0.6:
		return categoryModerateRisk
	case risk >= 0.4:
		return categoryElevatedRisk
	default:
		return categoryHighRisk
	}
}

func (r *RiskOracle) trustScoreFactor(actx *agentctx.AgentContext) float64 {
	return minFloat(float64(actx.TrustScore)/100, 1)
}

func (r *RiskOracle) repaymentHistoryFactor(actx *agentctx.AgentContext) float64 {
	var completed, defaulted int
	for _, l := range actx.Loans {
		switch l.Status {
		case "completed":
			completed++
		case "defaulted":
			defaulted++
		}
	}
	if completed+defaulted == 0 {
		return 0.5
	}
	base := float64(completed) / float64(completed+defaulted)
	bonus := minFloat(float64(completed)*0.05, 0.2)
	penalty := float64(defaulted) * 0.15
	return clamp(base+bonus-penalty, 0, 1)
}

func (r *RiskOracle) incomeStabilityFactor(actx *agentctx.AgentContext) float64 {
	if totalIncomeEntries(actx) < 4 {
		return 0.3
	}

	samples := incomeEntriesLast30Days(actx)
	if len(samples) < 2 {
		return 0.4
	}

	mean := meanOf(samples)
	if mean <= 0 {
		return 0.3
	}
	sd := popStdDev(samples, mean)
	cv := sd / mean
	return clamp(1-0.7*cv, 0.3, 1.0)
}

func (r *RiskOracle) vouchStrengthFactor(actx *agentctx.AgentContext) float64 {
	active := activeVouches(actx)
	if len(active) == 0 {
		return 0.15
	}

	n := float64(len(active))
	var stakeSum, weightSum float64
	for _, v := range active {
		stakeSum += v.Amount
		weightSum += vouchLevelWeight[v.Level]
	}
	avgWeight := weightSum / n

	score := minFloat(n/5, 1)*0.3 + (avgWeight/3)*0.35 + minFloat(stakeSum/500, 1)*0.35
	return minFloat(score, 1)
}

func (r *RiskOracle) circleHealthFactor(actx *agentctx.AgentContext) float64 {
	if len(actx.Circles) == 0 {
		return 0.2
	}

	var sum float64
	for _, c := range actx.Circles {
		sum += minFloat(float64(len(c.Members))/10, 1)
	}
	avg := sum / float64(len(actx.Circles))
	bonus := minFloat(float64(len(actx.Circles)-1)*0.1, 0.2)
	return minFloat(avg*0.8+bonus+0.2, 1)
}

func (r *RiskOracle) loanToIncomeFactor(actx *agentctx.AgentContext) float64 {
	income := sumIncomeLast30Days(actx)
	currentEMI := 0.0
	hasActive := false
	for _, l := range actx.Loans {
		if l.Status == "disbursed" || l.Status == "repaying" {
			currentEMI += l.EMIAmount * 4
			hasActive = true
		}
	}

	if income > 0 {
		ratio := currentEMI / income
		return clamp(1-1.6*ratio, 0.2, 1.0)
	}
	if hasActive {
		return 0.3
	}
	return 0.5
}

func (r *RiskOracle) buildPayload(risk float64, category string, maxLoan float64, tier int, factors map[string]float64) RiskOraclePayload {
	now := time.Now().Unix()

	canonical := struct {
		RiskScore int     `json:"risk_score"`
		Category  string  `json:"category"`
		MaxLoan   float64 `json:"max_loan"`
		Timestamp int64   `json:"timestamp"`
	}{
		RiskScore: int(risk * 10000),
		Category:  category,
		MaxLoan:   maxLoan,
		Timestamp: now,
	}

	digest := digestCanonical(canonical)

	signature := digest
	signed := false
	if len(r.signingKey) > 0 {
		mac := hmac.New(sha256.New, r.signingKey)
		mac.Write([]byte(digest))
		signature = hex.EncodeToString(mac.Sum(nil))
		signed = true
	}

	intFactors := make(map[string]int, len(factors))
	for k, v := range factors {
		intFactors[k] = int(v * 100)
	}

	return RiskOraclePayload{
		RiskScore:          int(risk * 10000),
		Category:           category,
		MaxRecommendedLoan: maxLoan,
		InterestTier:       tier,
		Timestamp:          now,
		Factors:            intFactors,
		Signature:          signature,
		Signed:             signed,
	}
}

// digestCanonical serializes v with sorted top-level keys via a
// generic round-trip through map[string]interface{}, then SHA-256s it.
func digestCanonical(v interface{}) string {
	raw, _ := json.Marshal(v)
	var asMap map[string]interface{}
	_ = json.Unmarshal(raw, &asMap)

	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, len(raw))
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(asMap[k])
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')

	sum := sha256.Sum256(ordered)
	return hex.EncodeToString(sum[:])
}

// -----------------------------------------------------------------------------
// Shared helpers used by RiskOracle and LoanAdvisor
// -----------------------------------------------------------------------------

func incomeEntriesLast30Days(actx *agentctx.AgentContext) []float64 {
	cutoff := time.Now().AddDate(0, 0, -30)
	var out []float64
	for _, e := range actx.FinancialDiary {
		if e.Type == "income" && e.CreatedAt.After(cutoff) {
			out = append(out, e.Amount)
		}
	}
	return out
}

// totalIncomeEntries counts every income diary entry ever recorded,
// not just the ones in the last 30 days that incomeEntriesLast30Days
// samples for the coefficient-of-variation calculation.
func totalIncomeEntries(actx *agentctx.AgentContext) int {
	n := 0
	for _, e := range actx.FinancialDiary {
		if e.Type == "income" {
			n++
		}
	}
	return n
}

func sumIncomeLast30Days(actx *agentctx.AgentContext) float64 {
	var sum float64
	for _, v := range incomeEntriesLast30Days(actx) {
		sum += v
	}
	return sum
}

func activeVouches(actx *agentctx.AgentContext) []*ports.Vouch {
	var out []*ports.Vouch
	for _, v := range actx.Vouches {
		if v.Status == "active" {
			out = append(out, v)
		}
	}
	return out
}

func outstandingDebt(actx *agentctx.AgentContext) float64 {
	var sum float64
	for _, l := range actx.Loans {
		if l.Status == "disbursed" || l.Status == "repaying" {
			sum += l.AmountApproved
		}
	}
	return sum
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func popStdDev(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range vals {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}
