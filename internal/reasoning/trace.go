// Package reasoning implements the append-only audit trail every agent
// produces while handling a request: a ReasoningTrace is a sequence of
// typed ReasoningSteps ending, when complete, in a CONCLUSION.
package reasoning

import (
	"fmt"
	"sync"
	"time"

	"github.com/mbd888/saathi/internal/idgen"
)

// ThoughtType is the closed set of step kinds an agent can append.
type ThoughtType string

const (
	Observation ThoughtType = "OBSERVATION"
	Analysis    ThoughtType = "ANALYSIS"
	Hypothesis  ThoughtType = "HYPOTHESIS"
	Action      ThoughtType = "ACTION"
	Reflection  ThoughtType = "REFLECTION"
	Conclusion  ThoughtType = "CONCLUSION"
)

// defaultConfidence holds the default confidence for each append method,
// per spec §4.3. Callers may override it with WithConfidence.
var defaultConfidence = map[ThoughtType]float64{
	Observation: 0.9,
	Analysis:    0.8,
	Hypothesis:  0.7,
	Action:      0.85,
	Reflection:  0.75,
	Conclusion:  0.85,
}

// ReasoningStep is one immutable entry in a trace.
type ReasoningStep struct {
	Index      int                    `json:"index"`
	Kind       ThoughtType            `json:"kind"`
	Content    string                 `json:"content"`
	Confidence float64                `json:"confidence"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ReasoningTrace is the append-only record of one agent's reasoning for
// one task. Steps are indexed 1..n contiguously. aggregateConfidence is
// recomputed on every append. finalDecision is set only when the last
// step appended is a CONCLUSION.
type ReasoningTrace struct {
	ID                  string          `json:"id"`
	AgentName           string          `json:"agent_name"`
	Task                string          `json:"task"`
	Steps               []ReasoningStep `json:"steps"`
	FinalDecision       string          `json:"final_decision,omitempty"`
	AggregateConfidence float64         `json:"aggregate_confidence"`
	DurationMs          int64           `json:"duration_ms"`
	CreatedAt           time.Time       `json:"created_at"`

	mu       sync.Mutex
	started  time.Time
	complete bool
}

// New starts a trace for agentName working on task.
func New(agentName, task string) *ReasoningTrace {
	now := time.Now()
	return &ReasoningTrace{
		ID:        idgen.WithPrefix("trace_"),
		AgentName: agentName,
		Task:      task,
		CreatedAt: now,
		started:   now,
	}
}

// Observe appends an OBSERVATION step at the default confidence.
func (t *ReasoningTrace) Observe(content string) *ReasoningTrace {
	return t.append(Observation, content, defaultConfidence[Observation], nil)
}

// Analyze appends an ANALYSIS step at the default confidence.
func (t *ReasoningTrace) Analyze(content string) *ReasoningTrace {
	return t.append(Analysis, content, defaultConfidence[Analysis], nil)
}

// Hypothesize appends a HYPOTHESIS step at the default confidence.
func (t *ReasoningTrace) Hypothesize(content string) *ReasoningTrace {
	return t.append(Hypothesis, content, defaultConfidence[Hypothesis], nil)
}

// Act appends an ACTION step at the default confidence.
func (t *ReasoningTrace) Act(content string) *ReasoningTrace {
	return t.append(Action, content, defaultConfidence[Action], nil)
}

// Reflect appends a REFLECTION step at the default confidence.
func (t *ReasoningTrace) Reflect(content string) *ReasoningTrace {
	return t.append(Reflection, content, defaultConfidence[Reflection], nil)
}

// Conclude appends the terminal CONCLUSION step and sets finalDecision.
// Further appends after Conclude are a programming error and panic.
func (t *ReasoningTrace) Conclude(finalDecision string) *ReasoningTrace {
	t.append(Conclusion, finalDecision, defaultConfidence[Conclusion], nil)
	t.mu.Lock()
	t.FinalDecision = finalDecision
	t.complete = true
	t.DurationMs = time.Since(t.started).Milliseconds()
	t.mu.Unlock()
	return t
}

// WithConfidence lets the caller override the default confidence of the
// most recent append, e.g. trace.Observe(...).WithConfidence(0.6).
func (t *ReasoningTrace) WithConfidence(confidence float64) *ReasoningTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.Steps); n > 0 {
		t.Steps[n-1].Confidence = confidence
		t.recomputeAggregateLocked()
	}
	return t
}

// WithMetadata attaches metadata to the most recently appended step.
func (t *ReasoningTrace) WithMetadata(metadata map[string]interface{}) *ReasoningTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.Steps); n > 0 {
		t.Steps[n-1].Metadata = metadata
	}
	return t
}

func (t *ReasoningTrace) append(kind ThoughtType, content string, confidence float64, metadata map[string]interface{}) *ReasoningTrace {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.complete {
		panic(fmt.Sprintf("reasoning: trace %s already concluded, cannot append %s", t.ID, kind))
	}

	t.Steps = append(t.Steps, ReasoningStep{
		Index:      len(t.Steps) + 1,
		Kind:       kind,
		Content:    content,
		Confidence: confidence,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	})
	t.recomputeAggregateLocked()
	return t
}

func (t *ReasoningTrace) recomputeAggregateLocked() {
	if len(t.Steps) == 0 {
		t.AggregateConfidence = 0
		return
	}
	var sum float64
	for _, s := range t.Steps {
		sum += s.Confidence
	}
	t.AggregateConfidence = sum / float64(len(t.Steps))
}

// IsComplete reports whether Conclude has been called.
func (t *ReasoningTrace) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}
