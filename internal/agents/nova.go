package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbd888/saathi/internal/agentctx"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/reasoning"
)

var validIntents = map[string]bool{
	"greeting":         true,
	"loan_request":     true,
	"loan_inquiry":     true,
	"balance_check":    true,
	"trust_score":      true,
	"payment_reminder": true,
	"emergency":        true,
	"general_question": true,
}

var novaPersonas = map[agentctx.Language]string{
	agentctx.LanguageEN: "You are Nova, a warm and encouraging financial companion for Saathi, a neighborhood trust-lending circle. Reply in English, in 2-3 short sentences.",
	agentctx.LanguageHI: "आप नोवा हैं, साथी के लिए एक गर्मजोशी भरी वित्तीय साथी। हिंदी में 2-3 छोटे वाक्यों में जवाब दें।",
	agentctx.LanguageML: "നിങ്ങൾ സാഥിക്കായുള്ള ഊഷ്മളമായ സാമ്പത്തിക സഹചാരിയായ നോവയാണ്. മലയാളത്തിൽ 2-3 ചെറിയ വാക്യങ്ങളിൽ മറുപടി നൽകുക.",
}

// NovaResult is Nova's result payload.
type NovaResult struct {
	Response        string `json:"response,omitempty"`
	Intent          string `json:"intent"`
	NeedsSpecialist bool   `json:"needs_specialist,omitempty"`
}

type novaIntentReply struct {
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Entities   map[string]interface{} `json:"entities"`
}

// Nova classifies intent and, when no specialist is needed, drafts a
// short persona reply.
type Nova struct {
	llm ports.LLM
}

func NewNova(llm ports.LLM) *Nova { return &Nova{llm: llm} }

func (n *Nova) Name() Name { return NameNova }

func (n *Nova) Run(ctx context.Context, actx *agentctx.AgentContext) *agentctx.AgentResult {
	trace := reasoning.New(string(NameNova), "resolve intent")
	trace.Observe(fmt.Sprintf("request=%q trust_score=%d", actx.CurrentRequest, actx.TrustScore))

	intent, needsSpecialist := n.classifyIntent(ctx, actx, trace)

	result := &agentctx.AgentResult{
		AgentName: string(NameNova),
		Success:   true,
		Trace:     trace,
	}

	switch {
	case intent == "loan_request" || intent == "loan_inquiry":
		result.NextAgent = string(NameLoanAdvisor)
		trace.Conclude("routed to LoanAdvisor")
		result.Result = NovaResult{Intent: intent, NeedsSpecialist: true}
		return result
	case intent == "trust_score" || intent == "reputation":
		result.NextAgent = string(NameTrustAnalyzer)
		trace.Conclude("routed to TrustAnalyzer")
		result.Result = NovaResult{Intent: intent, NeedsSpecialist: true}
		return result
	}

	response := n.draftReply(ctx, actx, trace)
	trace.Act("drafted persona reply")
	trace.Conclude(intent)

	result.Result = NovaResult{Response: response, Intent: intent}
	return result
}

func (n *Nova) classifyIntent(ctx context.Context, actx *agentctx.AgentContext, trace *reasoning.ReasoningTrace) (string, bool) {
	if n.llm == nil {
		trace.Analyze("no LLM configured, defaulting to general_question")
		return "general_question", false
	}

	req := ports.CompletionRequest{
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "Classify the user's message intent. Respond with a strict JSON object: {\"intent\": one of greeting|loan_request|loan_inquiry|balance_check|trust_score|payment_reminder|emergency|general_question, \"confidence\": number 0-1, \"entities\": object}. Respond with JSON only."},
			{Role: "user", Content: actx.CurrentRequest},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	}

	resp, err := n.llm.Complete(ctx, req)
	if err != nil {
		trace.Reflect(fmt.Sprintf("intent classification call failed: %v", err))
		return "general_question", false
	}

	var parsed novaIntentReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &parsed); err != nil || !validIntents[parsed.Intent] {
		trace.Reflect("intent classification response failed to parse, defaulting to general_question")
		return "general_question", false
	}

	trace.Analyze(fmt.Sprintf("classified intent=%s confidence=%.2f", parsed.Intent, parsed.Confidence))
	needsSpecialist := parsed.Intent == "loan_request" || parsed.Intent == "loan_inquiry" || parsed.Intent == "trust_score"
	return parsed.Intent, needsSpecialist
}

func (n *Nova) draftReply(ctx context.Context, actx *agentctx.AgentContext, trace *reasoning.ReasoningTrace) string {
	if n.llm == nil {
		return n.fallbackReply(actx.Language)
	}

	persona, ok := novaPersonas[actx.Language]
	if !ok {
		persona = novaPersonas[agentctx.LanguageEN]
	}

	req := ports.CompletionRequest{
		Messages: []ports.ChatMessage{
			{Role: "system", Content: persona + n.summarizeContext(actx)},
			{Role: "user", Content: actx.CurrentRequest},
		},
		Temperature: 0.6,
		MaxTokens:   150,
	}

	resp, err := n.llm.Complete(ctx, req)
	if err != nil {
		trace.Reflect(fmt.Sprintf("reply generation failed: %v", err))
		return n.fallbackReply(actx.Language)
	}
	return strings.TrimSpace(resp.Content)
}

func (n *Nova) summarizeContext(actx *agentctx.AgentContext) string {
	return fmt.Sprintf(" Context: trust score %d, balance %.2f SAATHI, %d active loans.",
		actx.TrustScore, actx.SaathiBalance, countActiveLoans(actx))
}

func (n *Nova) fallbackReply(language agentctx.Language) string {
	switch language {
	case agentctx.LanguageHI:
		return "मैं यहाँ मदद के लिए हूँ। कृपया बताएं कि आपको क्या चाहिए।"
	case agentctx.LanguageML:
		return "സഹായിക്കാൻ ഞാൻ ഇവിടെയുണ്ട്. നിങ്ങൾക്ക് എന്താണ് വേണ്ടതെന്ന് പറയൂ."
	default:
		return "I'm here to help. Let me know what you need."
	}
}
