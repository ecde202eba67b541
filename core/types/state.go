package types

import (
	"github.com/mudler/LocalResearch/core/criteria"
	"github.com/sashabaranov/go-openai"
)

// Phase is the current stage of a research session.
type Phase string

const (
	PhaseScope      Phase = "scope"
	PhaseResearch   Phase = "research"
	PhaseSynthesize Phase = "synthesize"
	PhaseDone       Phase = "done"
)

// AgentState is the session-wide record. It is owned exclusively by the
// orchestrator; phases receive it read-only and hand back a StateDelta.
// Fields only populate forward: no phase unsets what an earlier phase set.
// The whole record serializes to JSON, which is both the persisted layout
// for resumption and the read-only snapshot served to the presentation
// layer.
type AgentState struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`

	// Conversation is the user conversation the session was started with,
	// plus assistant replies produced during Scope.
	Conversation []openai.ChatCompletionMessage `json:"conversation"`

	// ResearchBrief is set exactly once during Scope and never mutated.
	ResearchBrief string `json:"research_brief,omitempty"`

	// ClarifyingQuestion is set when Scope decided the conversation lacks
	// enough context to research; the session ends awaiting the user.
	ClarifyingQuestion string `json:"clarifying_question,omitempty"`

	// Criteria is populated from the brief and updated monotonically.
	Criteria *criteria.Set `json:"criteria,omitempty"`

	// ResearchMessages is the append-only log of tool-loop turns: model
	// outputs, tool calls and tool results, in request order. It is both
	// the loop's working memory and the audit trail.
	ResearchMessages []openai.ChatCompletionMessage `json:"research_messages,omitempty"`

	// RawNotes are the reflection notes, append-only.
	RawNotes []string `json:"raw_notes,omitempty"`

	// StopReason records why the research loop ended.
	StopReason StopReason `json:"stop_reason,omitempty"`

	// Iterations is the number of completed research cycles, the point to
	// resume from when a persisted session is picked up again.
	Iterations int `json:"iterations,omitempty"`

	// FinalReport is set exactly once during Synthesize.
	FinalReport string `json:"final_report,omitempty"`
}

// NewAgentState creates the session record with all optional fields absent.
func NewAgentState(id string, conversation []openai.ChatCompletionMessage) *AgentState {
	return &AgentState{
		ID:           id,
		Phase:        PhaseScope,
		Conversation: append([]openai.ChatCompletionMessage{}, conversation...),
	}
}

// StateDelta is what a phase or loop cycle hands back to the orchestrator.
// Appends accumulate, scalar fields set once; criteria updates merge with OR
// semantics. The orchestrator is the only writer of AgentState.
type StateDelta struct {
	Phase              Phase
	ResearchBrief      string
	ClarifyingQuestion string
	Criteria           *criteria.Set
	CriteriaUpdates    map[string]bool
	Conversation       []openai.ChatCompletionMessage
	ResearchMessages   []openai.ChatCompletionMessage
	RawNotes           []string
	StopReason         StopReason
	Iterations         int
	FinalReport        string
}

// Apply merges the delta into the state. Optional fields are only written
// when empty, append-only logs are appended, criteria flags are OR-merged.
func (s *AgentState) Apply(d StateDelta) {
	if d.Phase != "" {
		s.Phase = d.Phase
	}
	if s.ResearchBrief == "" && d.ResearchBrief != "" {
		s.ResearchBrief = d.ResearchBrief
	}
	if s.ClarifyingQuestion == "" && d.ClarifyingQuestion != "" {
		s.ClarifyingQuestion = d.ClarifyingQuestion
	}
	if s.Criteria == nil && d.Criteria != nil {
		s.Criteria = d.Criteria
	}
	if s.Criteria != nil && d.CriteriaUpdates != nil {
		s.Criteria.Merge(d.CriteriaUpdates)
	}
	s.Conversation = append(s.Conversation, d.Conversation...)
	s.ResearchMessages = append(s.ResearchMessages, d.ResearchMessages...)
	s.RawNotes = append(s.RawNotes, d.RawNotes...)
	if d.StopReason != "" {
		s.StopReason = d.StopReason
	}
	if d.Iterations > s.Iterations {
		s.Iterations = d.Iterations
	}
	if s.FinalReport == "" && d.FinalReport != "" {
		s.FinalReport = d.FinalReport
	}
}

// Snapshot returns an independent copy safe to serialize or hand to the
// presentation layer while the session keeps running.
func (s *AgentState) Snapshot() *AgentState {
	snap := &AgentState{
		ID:                 s.ID,
		Phase:              s.Phase,
		Conversation:       append([]openai.ChatCompletionMessage{}, s.Conversation...),
		ResearchBrief:      s.ResearchBrief,
		ClarifyingQuestion: s.ClarifyingQuestion,
		ResearchMessages:   append([]openai.ChatCompletionMessage{}, s.ResearchMessages...),
		RawNotes:           append([]string{}, s.RawNotes...),
		StopReason:         s.StopReason,
		Iterations:         s.Iterations,
		FinalReport:        s.FinalReport,
	}
	if s.Criteria != nil {
		snap.Criteria = s.Criteria.Clone()
	}
	return snap
}
