package agents

import (
	"context"
	"fmt"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/reasoning"
)

// LoanRecommendation is LoanAdvisor's verdict on a borrowing request.
type LoanRecommendation struct {
	CanBorrow              bool    `json:"can_borrow"`
	Reason                 string  `json:"reason,omitempty"`
	Advice                 string  `json:"advice,omitempty"`
	SuggestedAction        string  `json:"suggested_action,omitempty"`
	MaxAmount              float64 `json:"max_amount,omitempty"`
	RecommendedAmount      float64 `json:"recommended_amount,omitempty"`
	RecommendedTenureWeeks int     `json:"recommended_tenure_weeks,omitempty"`
	RecommendedEMI         float64 `json:"recommended_emi,omitempty"`
	Explanation            string  `json:"explanation,omitempty"`
}

// IncomeAnalysis is LoanAdvisor's estimate of the borrower's monthly income.
type IncomeAnalysis struct {
	EstimatedMonthly float64 `json:"estimated_monthly"`
	Confidence       float64 `json:"confidence"`
	Source           string  `json:"source"`
	EntriesAnalyzed  int     `json:"entries_analyzed,omitempty"`
}

// LoanAdvisorResult is LoanAdvisor's result payload.
type LoanAdvisorResult struct {
	Recommendation LoanRecommendation `json:"recommendation"`
	IncomeAnalysis IncomeAnalysis     `json:"income_analysis"`
	TrustScore     int                `json:"trust_score"`
}

// LoanAdvisor estimates affordability and recommends loan terms.
type LoanAdvisor struct{}

func NewLoanAdvisor() *LoanAdvisor { return &LoanAdvisor{} }

func (l *LoanAdvisor) Name() Name { return NameLoanAdvisor }

func (l *LoanAdvisor) Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult {
	trace := reasoning.New(string(NameLoanAdvisor), "assess loan affordability")
	trace.Observe(fmt.Sprintf("trust_score=%d diary_entries=%d active_loans=%d",
		actx.TrustScore, len(actx.FinancialDiary), countActiveLoans(actx)))

	income := l.analyzeIncome(actx)
	trace.Analyze(fmt.Sprintf("monthly income estimate ₹%.0f (confidence %.0f%%)",
		income.EstimatedMonthly, income.Confidence*100))

	currentEMI := l.currentEMIBurden(actx)
	safeWeeklyEMI := income.EstimatedMonthly*0.30 - currentEMI
	trace.Analyze(fmt.Sprintf("safe weekly EMI ₹%.0f (30%% income rule minus existing ₹%.0f)",
		maxFloat(safeWeeklyEMI, 0), currentEMI))

	trustMultiplier := l.trustMultiplier(actx.TrustScore)
	baseLimit := 5000 + float64(actx.TrustScore)*450
	maxLoan := minFloat(baseLimit, 50000) * trustMultiplier
	maxLoan = minFloat(maxLoan, 50000)
	trace.Hypothesize(fmt.Sprintf("max loan eligibility ₹%.0f (trust multiplier %.2fx)", maxLoan, trustMultiplier))

	var rec LoanRecommendation
	switch {
	case safeWeeklyEMI <= 0:
		trace.Reflect("existing EMI burden too high to safely add another loan")
		rec = LoanRecommendation{
			CanBorrow:       false,
			Reason:          "existing_emi_too_high",
			Advice:          "Pay off current loans first to qualify for new loan",
			SuggestedAction: "wait",
		}
	case actx.TrustScore < 20:
		trace.Reflect("trust score too low to extend credit")
		rec = LoanRecommendation{
			CanBorrow:       false,
			Reason:          "trust_too_low",
			Advice:          "Get vouches from circle members to build trust",
			SuggestedAction: "get_vouches",
		}
	default:
		amount := minFloat(maxLoan, safeWeeklyEMI*10*4)
		tenureWeeks := 10
		emi := amount / float64(tenureWeeks)
		trace.Act(fmt.Sprintf("recommending ₹%.0f for %d weeks (₹%.0f/week EMI)", amount, tenureWeeks, emi))
		rec = LoanRecommendation{
			CanBorrow:              true,
			MaxAmount:              maxLoan,
			RecommendedAmount:      amount,
			RecommendedTenureWeeks: tenureWeeks,
			RecommendedEMI:         emi,
			Explanation:            explainLoanInLanguage(amount, tenureWeeks, emi, actx.Language),
		}
	}

	if rec.CanBorrow {
		trace.Conclude(fmt.Sprintf("can borrow ₹%.0f", rec.RecommendedAmount))
	} else {
		trace.Conclude("not recommended now")
	}

	return &agentctx.AgentResult{
		AgentName: string(NameLoanAdvisor),
		Success:   true,
		Result: LoanAdvisorResult{
			Recommendation: rec,
			IncomeAnalysis: income,
			TrustScore:     actx.TrustScore,
		},
		Trace: trace,
	}
}

func countActiveLoans(actx *agentctx.AgentContext) int {
	var n int
	for _, l := range actx.Loans {
		if l.Status == "disbursed" || l.Status == "repaying" {
			n++
		}
	}
	return n
}

func (l *LoanAdvisor) analyzeIncome(actx *agentctx.AgentContext) IncomeAnalysis {
	var incomeEntries []float64
	for _, e := range actx.FinancialDiary {
		if e.Type == "income" {
			incomeEntries = append(incomeEntries, e.Amount)
		}
	}

	if len(incomeEntries) == 0 {
		return IncomeAnalysis{EstimatedMonthly: 10000, Confidence: 0.3, Source: "default"}
	}

	sample := incomeEntries
	if len(sample) > 30 {
		sample = sample[len(sample)-30:]
	}
	var total float64
	for _, v := range sample {
		total += v
	}

	months := minFloat(float64(len(incomeEntries))/10, 3)
	var monthly, confidence float64
	if months > 0 {
		monthly = total / months
		confidence = minFloat(0.5+float64(len(incomeEntries))*0.02, 0.9)
	} else {
		monthly = total
		confidence = 0.4
	}

	return IncomeAnalysis{
		EstimatedMonthly: monthly,
		Confidence:       confidence,
		Source:           "diary_analysis",
		EntriesAnalyzed:  len(incomeEntries),
	}
}

func (l *LoanAdvisor) currentEMIBurden(actx *agentctx.AgentContext) float64 {
	var total float64
	for _, loan := range actx.Loans {
		if loan.Status == "disbursed" || loan.Status == "repaying" {
			total += loan.EMIAmount
		}
	}
	return total
}

func (l *LoanAdvisor) trustMultiplier(score int) float64 {
	switch {
	case score >= 80:
		return 2.0
	case score >= 60:
		return 1.5
	case score >= 40:
		return 1.0
	case score >= 20:
		return 0.5
	default:
		return 0.25
	}
}

// explainLoanInLanguage produces a plain-language explanation of the
// recommended terms in the borrower's preferred language, falling back
// to English for anything unrecognized.
func explainLoanInLanguage(amount float64, weeks int, emi float64, language agentctx.Language) string {
	totalReturn := amount * 1.1
	extra := totalReturn - amount

	switch language {
	case agentctx.LanguageHI:
		return fmt.Sprintf("₹%.0f लीजिए। हर हफ्ते ₹%.0f वापस दीजिए। %d हफ्ते बाद खत्म! कुल वापसी: ₹%.0f (मदद के लिए ₹%.0f एक्स्ट्रा)।",
			amount, emi, weeks, totalReturn, extra)
	case agentctx.LanguageML:
		return fmt.Sprintf("₹%.0f എടുക്കുക. എല്ലാ ആഴ്ചയും ₹%.0f തിരികെ നൽകുക. %d ആഴ്ച കഴിഞ്ഞാൽ തീർന്നു! ആകെ: ₹%.0f (സഹായത്തിന് ₹%.0f അധികം).",
			amount, emi, weeks, totalReturn, extra)
	default:
		return fmt.Sprintf("Take ₹%.0f. Every week, give back ₹%.0f. After %d weeks, done! Total you return: ₹%.0f (₹%.0f extra for the help).",
			amount, emi, weeks, totalReturn, extra)
	}
}
