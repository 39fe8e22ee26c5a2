// Package orchestrator wires the six specialist agents into the
// request-handling pipeline: it assembles an AgentContext from the
// store port, selects a workflow by intent, dispatches agents
// sequentially, and synthesizes a single response from their results.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/agents"
	"github.com/mbd888/saathi/internal/metrics"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/reasoning"
	"github.com/mbd888/saathi/internal/tracing"
)

const contextAssemblyTimeout = 3 * time.Second
const maxDiaryEntries = 50

// workflowTable maps an intent to the ordered agents that run after Nova.
var workflowTable = map[string][]agents.Name{
	"loan_request":      {agents.NameFraudGuard, agents.NameRiskOracle, agents.NameLoanAdvisor, agents.NameActionAgent},
	"trust_inquiry":     {agents.NameTrustAnalyzer, agents.NameActionAgent},
	"vouch_request":     {agents.NameFraudGuard, agents.NameTrustAnalyzer},
	"emergency_request": {agents.NameFraudGuard, agents.NameRiskOracle, agents.NameActionAgent},
}

func init() {
	known := make(map[agents.Name]bool, len(agents.AllNames))
	for _, n := range agents.AllNames {
		known[n] = true
	}
	for intent, steps := range workflowTable {
		for _, step := range steps {
			if !known[step] {
				panic(fmt.Sprintf("orchestrator: workflow %q references unknown agent %q", intent, step))
			}
		}
	}
}

// Result is the client-facing shape returned by ProcessMessage.
type Result struct {
	Response   string                     `json:"response,omitempty"`
	Action     string                     `json:"action,omitempty"`
	Target     string                     `json:"target,omitempty"`
	Data       map[string]interface{}     `json:"data,omitempty"`
	GuideSteps []string                   `json:"guide_steps,omitempty"`
	Traces     []reasoning.ReasoningTrace `json:"traces"`
	AgentsUsed []string                   `json:"agents_used"`
	Intent     string                     `json:"intent,omitempty"`
	DurationMs int64                      `json:"duration_ms"`
}

// LoanDecision is the result of ProcessLoanRequest.
type LoanDecision struct {
	Approved       bool                       `json:"approved"`
	ApprovedAmount float64                    `json:"approved_amount"`
	Reason         string                     `json:"reason,omitempty"`
	FraudVerdict   agents.FraudGuardResult    `json:"fraud_verdict"`
	RiskAssessment *agents.RiskOracleResult   `json:"risk_assessment,omitempty"`
	Advice         *agents.LoanAdvisorResult  `json:"advice,omitempty"`
	Traces         []reasoning.ReasoningTrace `json:"traces"`
}

// VouchRecommendation is the result of ProcessVouchRequest.
type VouchRecommendation struct {
	Recommended      bool    `json:"recommended"`
	VoucheeTrustScore int    `json:"vouchee_trust_score"`
	VouchQualityGrade string `json:"vouch_quality_grade"`
}

// Orchestrator dispatches agents against a store-backed AgentContext.
type Orchestrator struct {
	store        ports.Store
	nova         *agents.Nova
	agentsByName map[agents.Name]agents.Agent
	logger       *slog.Logger
}

// New wires the six specialist agents against the given ports.
func New(store ports.Store, llm ports.LLM, signingKey string, logger *slog.Logger) *Orchestrator {
	nova := agents.NewNova(llm)
	byName := map[agents.Name]agents.Agent{
		agents.NameNova:          nova,
		agents.NameRiskOracle:    agents.NewRiskOracle(signingKey),
		agents.NameFraudGuard:    agents.NewFraudGuard(),
		agents.NameLoanAdvisor:   agents.NewLoanAdvisor(),
		agents.NameTrustAnalyzer: agents.NewTrustAnalyzer(),
		agents.NameActionAgent:   agents.NewActionAgent(),
	}
	return &Orchestrator{store: store, nova: nova, agentsByName: byName, logger: logger}
}

// buildContext loads profile, vouches, loans, and diary entries through
// the store port in parallel, then circle memberships and the SAATHI
// balance; any individual failure degrades that field to its zero value
// and execution continues.
func (o *Orchestrator) buildContext(ctx context.Context, userID, message string, language agentctx.Language) *agentctx.AgentContext {
	actx := agentctx.New(userID, message, language)

	ctx, cancel := context.WithTimeout(ctx, contextAssemblyTimeout)
	defer cancel()

	var profile *ports.Profile
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		if p, err := o.store.GetProfile(ctx, userID); err == nil {
			profile = p
			actx.UserProfile = p
			actx.TrustScore = clampToInt(p.TrustScore)
		} else {
			o.logf("buildContext: profile lookup failed for %s: %v", userID, err)
		}
	}()

	go func() {
		defer wg.Done()
		if vs, err := o.store.ListVouchesByVoucher(ctx, userID); err == nil {
			actx.Vouches = vs
		} else {
			o.logf("buildContext: vouches lookup failed for %s: %v", userID, err)
		}
	}()

	go func() {
		defer wg.Done()
		if ls, err := o.store.ListLoansByBorrower(ctx, userID); err == nil {
			actx.Loans = ls
		} else {
			o.logf("buildContext: loans lookup failed for %s: %v", userID, err)
		}
	}()

	go func() {
		defer wg.Done()
		if ds, err := o.store.ListDiaryEntries(ctx, userID); err == nil {
			if len(ds) > maxDiaryEntries {
				ds = ds[len(ds)-maxDiaryEntries:]
			}
			actx.FinancialDiary = ds
		} else {
			o.logf("buildContext: diary lookup failed for %s: %v", userID, err)
		}
	}()

	wg.Wait()

	if cs, err := o.store.ListCirclesForMember(ctx, userID); err == nil {
		actx.Circles = cs
	} else {
		o.logf("buildContext: circle membership lookup failed for %s: %v", userID, err)
	}
	if len(actx.Circles) == 0 && profile != nil && profile.CircleID != "" {
		if c, err := o.store.GetCircle(ctx, profile.CircleID); err == nil {
			actx.Circles = []*ports.Circle{c}
		}
	}

	if bal, err := o.store.Balance(ctx, userID); err == nil {
		actx.SaathiBalance = bal
	}

	return actx
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(fmt.Sprintf(format, args...))
	}
}

func clampToInt(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

// runAgent invokes one agent with panic recovery: a well-behaved agent
// never panics, but the orchestrator must never fail the pipeline
// because of one agent's internal error.
func (o *Orchestrator) runAgent(ctx context.Context, name agents.Name, actx *agentctx.AgentContext) *agentctx.AgentResult {
	agent, ok := o.agentsByName[name]
	if !ok {
		return nil
	}

	start := time.Now()
	result := o.safeRun(ctx, agent, actx)
	metrics.AgentDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.AgentInvocationsTotal.WithLabelValues(string(name), outcome).Inc()

	actx.SetResult(string(name), result)
	if result.Trace != nil {
		actx.AppendTrace(result.Trace)
	}
	return result
}

func (o *Orchestrator) safeRun(ctx context.Context, agent agents.Agent, actx *agentctx.AgentContext) (result *agentctx.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			trace := reasoning.New(string(agent.Name()), "recover from panic")
			trace.Reflect(fmt.Sprintf("agent panicked: %v", r))
			trace.Conclude("failed")
			result = &agentctx.AgentResult{
				AgentName: string(agent.Name()),
				Success:   false,
				Result:    map[string]string{"error": fmt.Sprintf("%v", r)},
				Trace:     trace,
			}
		}
	}()
	return agent.Run(ctx, actx)
}

// ProcessMessage runs Nova, optionally continues into a workflow keyed
// by Nova's chosen intent or explicit next agent, and synthesizes a
// single response.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, message string, language agentctx.Language) *Result {
	start := time.Now()
	actx := o.buildContext(ctx, userID, message, language)

	novaResult := o.runAgent(ctx, agents.NameNova, actx)

	intent := ""
	if nr, ok := novaResult.Result.(agents.NovaResult); ok {
		intent = nr.Intent
	}

	if workflow, ok := workflowTable[intent]; ok {
		for _, step := range workflow {
			o.runAgent(ctx, step, actx)
		}
	} else if novaResult.NextAgent != "" {
		o.runAgent(ctx, agents.Name(novaResult.NextAgent), actx)
	}

	result := o.synthesize(actx)
	result.Intent = intent
	result.AgentsUsed = actx.AgentsUsed()
	result.Traces = flattenTraces(actx.Traces)
	result.DurationMs = time.Since(start).Milliseconds()
	metrics.OrchestratorDecisionDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
	return result
}

// synthesize picks the response payload per the priority order: a
// concrete ActionAgent effect wins, then Nova's free text, then
// LoanAdvisor's recommendation, then TrustAnalyzer's presentation,
// else a generic fallback.
func (o *Orchestrator) synthesize(actx *agentctx.AgentContext) *Result {
	if r, ok := actx.Result(string(agents.NameActionAgent)); ok {
		if ar, ok := r.Result.(agents.ActionAgentResult); ok && ar.Action != "" {
			message := ar.Message
			if message == "" {
				message = "I'm on it!"
			}
			return &Result{
				Response:   message,
				Action:     ar.Action,
				Target:     ar.Target,
				Data:       ar.State,
				GuideSteps: guideStepsOf(ar.State),
			}
		}
	}

	if r, ok := actx.Result(string(agents.NameNova)); ok {
		if nr, ok := r.Result.(agents.NovaResult); ok && nr.Response != "" {
			return &Result{Response: nr.Response}
		}
	}

	if r, ok := actx.Result(string(agents.NameLoanAdvisor)); ok {
		if lr, ok := r.Result.(agents.LoanAdvisorResult); ok {
			if lr.Recommendation.CanBorrow {
				return &Result{Response: lr.Recommendation.Explanation}
			}
			return &Result{Response: lr.Recommendation.Advice}
		}
	}

	if r, ok := actx.Result(string(agents.NameTrustAnalyzer)); ok {
		if tr, ok := r.Result.(agents.TrustAnalyzerResult); ok && tr.BharosaVisual != "" {
			return &Result{Response: fmt.Sprintf("%s - here's your current trust standing", tr.BharosaVisual)}
		}
	}

	return &Result{Response: "How can I help you today?"}
}

func guideStepsOf(state map[string]interface{}) []string {
	raw, ok := state["guide_steps"]
	if !ok {
		return nil
	}
	steps, ok := raw.([]string)
	if !ok {
		return nil
	}
	return steps
}

func flattenTraces(traces []*reasoning.ReasoningTrace) []reasoning.ReasoningTrace {
	out := make([]reasoning.ReasoningTrace, 0, len(traces))
	for _, t := range traces {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// ProcessLoanRequest runs the loan-decision pipeline directly (not via
// Nova), used by the /loans endpoint.
func (o *Orchestrator) ProcessLoanRequest(ctx context.Context, userID string, amount float64, purpose, circleID string) *LoanDecision {
	start := time.Now()
	defer func() {
		metrics.OrchestratorDecisionDuration.WithLabelValues("loan_request").Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.StartSpan(ctx, "orchestrator.process_loan_request",
		tracing.BorrowerAddr(userID), tracing.CircleID(circleID), tracing.Amount(amount))
	defer span.End()

	actx := o.buildContext(ctx, userID, fmt.Sprintf("requesting a loan of %.2f for %s", amount, purpose), agentctx.LanguageEN)

	fraudResult := o.runAgent(ctx, agents.NameFraudGuard, actx)
	fraud, _ := fraudResult.Result.(agents.FraudGuardResult)

	if fraud.Verdict == "BLOCK" {
		return &LoanDecision{
			Approved:     false,
			Reason:       "blocked by fraud screening",
			FraudVerdict: fraud,
			Traces:       flattenTraces(actx.Traces),
		}
	}

	riskAgentResult := o.runAgent(ctx, agents.NameRiskOracle, actx)
	risk, _ := riskAgentResult.Result.(agents.RiskOracleResult)

	advisorResult := o.runAgent(ctx, agents.NameLoanAdvisor, actx)
	advice, _ := advisorResult.Result.(agents.LoanAdvisorResult)

	approved := advice.Recommendation.CanBorrow
	approvedAmount := 0.0
	reason := ""
	if approved {
		approvedAmount = minOf3(amount, advice.Recommendation.MaxAmount, risk.MaxLoan)
	} else {
		reason = advice.Recommendation.Reason
	}

	return &LoanDecision{
		Approved:       approved,
		ApprovedAmount: approvedAmount,
		Reason:         reason,
		FraudVerdict:   fraud,
		RiskAssessment: &risk,
		Advice:         &advice,
		Traces:         flattenTraces(actx.Traces),
	}
}

func minOf3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// ProcessVouchRequest runs fraud screening and trust analysis against
// the vouchee, used by the /vouches endpoint before committing a stake.
func (o *Orchestrator) ProcessVouchRequest(ctx context.Context, voucherID, voucheeID, circleID, level string) *VouchRecommendation {
	start := time.Now()
	defer func() {
		metrics.OrchestratorDecisionDuration.WithLabelValues("vouch_request").Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.StartSpan(ctx, "orchestrator.process_vouch_request",
		tracing.VoucherAddr(voucherID), tracing.CircleID(circleID))
	defer span.End()

	actx := o.buildContext(ctx, voucheeID, fmt.Sprintf("vouch request from %s at level %s", voucherID, level), agentctx.LanguageEN)

	fraudResult := o.runAgent(ctx, agents.NameFraudGuard, actx)
	fraud, _ := fraudResult.Result.(agents.FraudGuardResult)
	if fraud.Verdict == "BLOCK" {
		return &VouchRecommendation{Recommended: false, VoucheeTrustScore: actx.TrustScore}
	}

	trustResult := o.runAgent(ctx, agents.NameTrustAnalyzer, actx)
	trust, _ := trustResult.Result.(agents.TrustAnalyzerResult)

	return &VouchRecommendation{
		Recommended:       fraud.CanProceed,
		VoucheeTrustScore: actx.TrustScore,
		VouchQualityGrade: trust.VouchGrade,
	}
}
