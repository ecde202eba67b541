package types

import "encoding/json"

// EventKind labels a progress event streamed to the presentation layer.
type EventKind string

const (
	EventPhase      EventKind = "phase"
	EventBrief      EventKind = "brief"
	EventCriterion  EventKind = "criterion"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventNote       EventKind = "note"
	EventReport     EventKind = "report"
	EventError      EventKind = "error"
)

// Event is a single state delta for live progress display. The presentation
// layer consumes events read-only; they carry no handles back into the
// session.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Phase     Phase     `json:"phase,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Criterion string    `json:"criterion,omitempty"`
	Satisfied bool      `json:"satisfied,omitempty"`
	Text      string    `json:"text,omitempty"`
	Err       string    `json:"error,omitempty"`
}

func (e Event) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// EventCallback receives progress events. A nil callback disables streaming.
type EventCallback func(Event)
