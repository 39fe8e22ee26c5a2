// Package agentctx defines the per-request shared state agents read
// from and write into: AgentContext (the behavioral snapshot) and
// AgentResult (what one agent produced).
package agentctx

import (
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/reasoning"
)

// Language is the closed set of languages the engine speaks.
type Language string

const (
	LanguageEN Language = "en"
	LanguageHI Language = "hi"
	LanguageML Language = "ml"
)

// SideEffect is a concrete action an agent wants executed after the
// pipeline completes (never mid-pipeline, per spec §3).
type SideEffect struct {
	Kind string                 // e.g. "GUIDE_FLOW", "NAVIGATE"
	Data map[string]interface{}
}

// AgentResult is what a single agent produced for one request.
type AgentResult struct {
	AgentName string
	Success   bool
	Result    interface{}
	Trace     *reasoning.ReasoningTrace
	NextAgent string // optional; empty means "no explicit next agent"
	Actions   []SideEffect
}

// AgentContext is the mutable per-request snapshot assembled by the
// orchestrator and threaded through every agent invocation. It is
// created fresh per request, mutated only by appending to Traces and
// writing into AgentResults, and discarded at response time.
type AgentContext struct {
	UserID         string
	UserProfile    *ports.Profile
	TrustScore     int // 0..100
	SaathiBalance  float64
	Language       Language
	Circles        []*ports.Circle
	Loans          []*ports.Loan
	Vouches        []*ports.Vouch // vouches received by UserID
	FinancialDiary []*ports.DiaryEntry
	CurrentRequest string

	agentResultOrder []string
	agentResults     map[string]*AgentResult
	Traces           []*reasoning.ReasoningTrace
}

// New creates an empty context for userID's request.
func New(userID, currentRequest string, language Language) *AgentContext {
	return &AgentContext{
		UserID:         userID,
		CurrentRequest: currentRequest,
		Language:       language,
		agentResults:   make(map[string]*AgentResult),
	}
}

// SetResult records agentName's result, preserving insertion order for
// agents seen for the first time. A later agent overwriting an earlier
// result (re-entrant dispatch) keeps its original position.
func (c *AgentContext) SetResult(agentName string, result *AgentResult) {
	if _, exists := c.agentResults[agentName]; !exists {
		c.agentResultOrder = append(c.agentResultOrder, agentName)
	}
	c.agentResults[agentName] = result
}

// Result returns the named agent's result, if any.
func (c *AgentContext) Result(agentName string) (*AgentResult, bool) {
	r, ok := c.agentResults[agentName]
	return r, ok
}

// OrderedResults returns all agent results in insertion order.
func (c *AgentContext) OrderedResults() []*AgentResult {
	out := make([]*AgentResult, 0, len(c.agentResultOrder))
	for _, name := range c.agentResultOrder {
		out = append(out, c.agentResults[name])
	}
	return out
}

// AgentsUsed returns the names of every agent that ran, in run order.
func (c *AgentContext) AgentsUsed() []string {
	out := make([]string, len(c.agentResultOrder))
	copy(out, c.agentResultOrder)
	return out
}

// AppendTrace records a completed trace, preserving agent-run order.
func (c *AgentContext) AppendTrace(t *reasoning.ReasoningTrace) {
	c.Traces = append(c.Traces, t)
}
