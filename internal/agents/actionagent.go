package agents

import (
	"context"
	"fmt"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/reasoning"
)

const defaultDraftLoanAmount = 10000
const defaultDraftLoanPurpose = "Emergency Support"

// ActionAgentResult is ActionAgent's result payload.
type ActionAgentResult struct {
	Action  string                 `json:"action,omitempty"`
	Message string                 `json:"message,omitempty"`
	Target  string                 `json:"target,omitempty"`
	State   map[string]interface{} `json:"state,omitempty"`
}

// ActionAgent translates an intent plus prior agent results into a
// concrete side effect the client should carry out.
type ActionAgent struct{}

func NewActionAgent() *ActionAgent { return &ActionAgent{} }

func (a *ActionAgent) Name() Name { return NameActionAgent }

func (a *ActionAgent) Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult {
	trace := reasoning.New(string(NameActionAgent), "determine concrete effect")

	intent := a.resolveIntent(actx)
	trace.Observe(fmt.Sprintf("resolved intent=%s", intent))

	result := &agentctx.AgentResult{
		AgentName: string(NameActionAgent),
		Success:   true,
	}

	switch intent {
	case "loan_request":
		effect, state := a.guideLoanFlow(actx, trace)
		result.Result = ActionAgentResult{
			Action:  "GUIDE_FLOW",
			Message: "I'm on it!",
			Target:  "/loans/apply",
			State:   state,
		}
		result.Actions = []agentctx.SideEffect{effect}
		trace.Act("emitted GUIDE_FLOW for /loans/apply")
	case "check_score":
		result.Result = ActionAgentResult{
			Action: "NAVIGATE",
			Target: "trust_score_screen",
		}
		result.Actions = []agentctx.SideEffect{{Kind: "NAVIGATE", Data: map[string]interface{}{"target": "trust_score_screen"}}}
		trace.Act("emitted NAVIGATE to trust_score_screen")
	default:
		trace.Analyze("no concrete effect for this intent")
		result.Result = ActionAgentResult{}
	}

	trace.Conclude(intent)
	result.Trace = trace
	return result
}

// resolveIntent prefers Nova's classified intent, falling back to
// "general" when Nova hasn't run or produced none.
func (a *ActionAgent) resolveIntent(actx *agentctx.AgentContext) string {
	if r, ok := actx.Result(string(NameNova)); ok {
		if nr, ok := r.Result.(NovaResult); ok && nr.Intent != "" {
			return nr.Intent
		}
	}
	return "general"
}

func (a *ActionAgent) guideLoanFlow(actx *agentctx.AgentContext, trace *reasoning.ReasoningTrace) (agentctx.SideEffect, map[string]interface{}) {
	circleID := ""
	if len(actx.Circles) > 0 {
		circleID = actx.Circles[0].ID
	}

	draftAmount := float64(defaultDraftLoanAmount)
	if r, ok := actx.Result(string(NameRiskOracle)); ok {
		if ro, ok := r.Result.(RiskOracleResult); ok && ro.MaxLoan > 0 {
			draftAmount = ro.MaxLoan
		}
	}

	trace.Hypothesize(fmt.Sprintf("drafting loan request for circle=%q amount=%.0f", circleID, draftAmount))

	steps := []string{"confirm_amount", "review_terms", "submit_request"}
	state := map[string]interface{}{
		"amount":      draftAmount,
		"circle_id":   circleID,
		"purpose":     defaultDraftLoanPurpose,
		"guide_steps": steps,
	}
	effect := agentctx.SideEffect{
		Kind: "GUIDE_FLOW",
		Data: state,
	}
	return effect, state
}
