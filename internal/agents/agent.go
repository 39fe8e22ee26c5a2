// Package agents implements the six specialist agents described in the
// orchestration pipeline: Nova (intent + reply), RiskOracle (credit
// scoring), FraudGuard (pattern detection), LoanAdvisor (affordability),
// TrustAnalyzer (network quality), and ActionAgent (concrete effects).
package agents

import (
	"context"

	"github.com/mbd888/saathi/internal/agentctx"
)

// Name is the closed enumeration of agent identifiers (spec §9 design
// note: dynamic dictionary lookup in the source is replaced with a
// closed enum validated at init).
type Name string

const (
	NameNova          Name = "Nova"
	NameRiskOracle    Name = "RiskOracle"
	NameFraudGuard    Name = "FraudGuard"
	NameLoanAdvisor   Name = "LoanAdvisor"
	NameTrustAnalyzer Name = "TrustAnalyzer"
	NameActionAgent   Name = "ActionAgent"
)

// AllNames is every agent identifier the orchestrator may dispatch to.
// Used at init to validate the workflow table never references an
// unknown agent.
var AllNames = []Name{NameNova, NameRiskOracle, NameFraudGuard, NameLoanAdvisor, NameTrustAnalyzer, NameActionAgent}

// Agent runs one specialist's procedure against the shared context and
// returns its result. Implementations must never let a panic escape —
// the orchestrator recovers around Run, but a well-behaved agent
// degrades to success:false itself on any internal failure.
type Agent interface {
	Name() Name
	Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
