package agentctx

import (
	"testing"

	"github.com/mbd888/saathi/internal/reasoning"
)

func TestNew_InitializesEmptyContext(t *testing.T) {
	c := New("user_1", "I need a loan", LanguageHI)

	if c.UserID != "user_1" || c.CurrentRequest != "I need a loan" || c.Language != LanguageHI {
		t.Errorf("unexpected context: %+v", c)
	}
	if len(c.AgentsUsed()) != 0 {
		t.Error("expected no agents used on a fresh context")
	}
	if _, ok := c.Result("Nova"); ok {
		t.Error("expected no result for an agent that hasn't run")
	}
}

func TestSetResult_PreservesInsertionOrder(t *testing.T) {
	c := New("user_1", "req", LanguageEN)

	c.SetResult("Nova", &AgentResult{AgentName: "Nova"})
	c.SetResult("RiskOracle", &AgentResult{AgentName: "RiskOracle"})
	c.SetResult("ActionAgent", &AgentResult{AgentName: "ActionAgent"})

	got := c.AgentsUsed()
	want := []string{"Nova", "RiskOracle", "ActionAgent"}
	if len(got) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSetResult_ReentrantOverwriteKeepsOriginalPosition(t *testing.T) {
	c := New("user_1", "req", LanguageEN)

	c.SetResult("Nova", &AgentResult{AgentName: "Nova", Success: true})
	c.SetResult("RiskOracle", &AgentResult{AgentName: "RiskOracle"})
	c.SetResult("Nova", &AgentResult{AgentName: "Nova", Success: false})

	order := c.AgentsUsed()
	if len(order) != 2 || order[0] != "Nova" || order[1] != "RiskOracle" {
		t.Fatalf("expected order [Nova RiskOracle], got %v", order)
	}

	r, ok := c.Result("Nova")
	if !ok {
		t.Fatal("expected a result for Nova")
	}
	if r.Success {
		t.Error("expected the overwritten result to win")
	}
}

func TestOrderedResults_MatchesAgentsUsed(t *testing.T) {
	c := New("user_1", "req", LanguageEN)
	c.SetResult("Nova", &AgentResult{AgentName: "Nova"})
	c.SetResult("FraudGuard", &AgentResult{AgentName: "FraudGuard"})

	results := c.OrderedResults()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].AgentName != "Nova" || results[1].AgentName != "FraudGuard" {
		t.Errorf("unexpected order: %+v", results)
	}
}

func TestAppendTrace_Accumulates(t *testing.T) {
	c := New("user_1", "req", LanguageEN)
	t1 := reasoning.New("Nova", "classify intent")
	t2 := reasoning.New("RiskOracle", "assess risk")

	c.AppendTrace(t1)
	c.AppendTrace(t2)

	if len(c.Traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(c.Traces))
	}
	if c.Traces[0] != t1 || c.Traces[1] != t2 {
		t.Error("expected traces to be appended in call order")
	}
}
