package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mudler/LocalResearch/core/criteria"
	"github.com/mudler/LocalResearch/core/researcher"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/llm"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Orchestrator drives a research session through its phases: Scope turns
// the conversation into a brief with success criteria, Research runs the
// tool loop, Synthesize writes the report. Each phase runs exactly once per
// session; the orchestrator is the only writer of the session state.
type Orchestrator struct {
	options *options
}

func New(opts ...Option) (*Orchestrator, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to set options: %w", err)
	}
	if options.client == nil {
		return nil, fmt.Errorf("no LLM client configured")
	}
	if options.matcher == nil {
		options.matcher = &researcher.ModelMatcher{
			Client:     options.client,
			Model:      options.model,
			MaxRetries: options.maxRetries,
		}
	}
	return &Orchestrator{options: options}, nil
}

// Start creates a new session from the user conversation and drives it as
// far as it can go: to completion, or to a clarifying question awaiting the
// user. On a fatal phase failure the returned state is the last consistent
// snapshot alongside the error.
func (o *Orchestrator) Start(ctx context.Context, conversation []openai.ChatCompletionMessage) (*types.AgentState, error) {
	state := types.NewAgentState(uuid.NewString(), conversation)
	return o.Run(ctx, state)
}

// Resume picks up a persisted session. A session paused on a clarifying
// question resumes Scope with the extended conversation; one interrupted
// mid-research resumes the loop from the recorded iteration with its full
// message history.
func (o *Orchestrator) Resume(ctx context.Context, state *types.AgentState) (*types.AgentState, error) {
	if state.Phase == types.PhaseScope {
		state.ClarifyingQuestion = ""
	}
	return o.Run(ctx, state)
}

// Run drives a pre-built session state through its remaining phases. Most
// callers want Start or Resume; Run exists for owners that need the session
// ID before the session begins.
func (o *Orchestrator) Run(ctx context.Context, state *types.AgentState) (*types.AgentState, error) {
	if state.Phase == types.PhaseScope {
		o.emitPhase(state)
		delta, err := o.scope(ctx, state)
		if err != nil {
			o.save(ctx, state)
			return state, &types.PhaseError{Phase: types.PhaseScope, Err: &types.UnrecoverableModelError{Err: err}}
		}
		state.Apply(delta)
		o.save(ctx, state)

		if state.ClarifyingQuestion != "" {
			xlog.Info("Session paused on clarifying question", "id", state.ID)
			return state, nil
		}
		o.emit(types.Event{Kind: types.EventBrief, SessionID: state.ID, Text: state.ResearchBrief})
	}

	if state.Phase == types.PhaseResearch {
		o.emitPhase(state)
		delta, err := o.research(ctx, state)
		state.Apply(delta)
		o.save(ctx, state)
		if err != nil {
			return state, &types.PhaseError{Phase: types.PhaseResearch, Err: err}
		}
		if state.StopReason == types.StopCancelled {
			xlog.Info("Session cancelled mid-research, resumable", "id", state.ID, "iterations", state.Iterations)
			return state, nil
		}
	}

	if state.Phase == types.PhaseSynthesize {
		if ctx.Err() != nil {
			xlog.Info("Session cancelled before synthesis, resumable", "id", state.ID)
			return state, nil
		}
		o.emitPhase(state)
		delta, err := o.synthesize(ctx, state)
		if err != nil {
			o.save(ctx, state)
			return state, &types.PhaseError{Phase: types.PhaseSynthesize, Err: &types.UnrecoverableModelError{Err: err}}
		}
		state.Apply(delta)
		o.save(ctx, state)
		o.emit(types.Event{Kind: types.EventReport, SessionID: state.ID, Text: state.FinalReport})
	}

	return state, nil
}

type clarifyDecision struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
	Verification      string `json:"verification"`
}

type briefDecision struct {
	ResearchBrief string `json:"research_brief"`
}

// scope turns the conversation into a research brief, optionally pausing on
// a clarifying question first. Criteria are extracted from the brief text:
// the brief prompt asks the model for a Success Criteria bullet section.
func (o *Orchestrator) scope(ctx context.Context, state *types.AgentState) (types.StateDelta, error) {
	delta := types.StateDelta{}

	if o.options.clarify {
		system, err := renderClarifyPrompt()
		if err != nil {
			return delta, err
		}

		decision := clarifyDecision{}
		if err := llm.GenerateTypedJSONWithConversation(ctx, o.options.client,
			withSystem(system, state.Conversation), o.options.model,
			jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"need_clarification": {
						Type:        jsonschema.Boolean,
						Description: "Whether a clarifying question must be asked before researching",
					},
					"question": {
						Type:        jsonschema.String,
						Description: "The clarifying question, when one is needed",
					},
					"verification": {
						Type:        jsonschema.String,
						Description: "One sentence confirming what will be researched, when no question is needed",
					},
				},
				Required: []string{"need_clarification", "question", "verification"},
			}, &decision, o.options.maxRetries); err != nil {
			return delta, fmt.Errorf("clarification decision: %w", err)
		}

		if decision.NeedClarification && decision.Question != "" {
			xlog.Debug("Clarification needed", "question", decision.Question)
			delta.ClarifyingQuestion = decision.Question
			delta.Conversation = []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleAssistant, Content: decision.Question},
			}
			return delta, nil
		}
		if decision.Verification != "" {
			delta.Conversation = []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleAssistant, Content: decision.Verification},
			}
		}
	}

	system, err := renderBriefPrompt()
	if err != nil {
		return delta, err
	}

	brief := briefDecision{}
	if err := llm.GenerateTypedJSONWithConversation(ctx, o.options.client,
		withSystem(system, state.Conversation), o.options.model,
		jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"research_brief": {
					Type:        jsonschema.String,
					Description: "The self-contained research brief, ending with a Success Criteria bullet section",
				},
			},
			Required: []string{"research_brief"},
		}, &brief, o.options.maxRetries); err != nil {
		return delta, fmt.Errorf("brief generation: %w", err)
	}
	if strings.TrimSpace(brief.ResearchBrief) == "" {
		return delta, fmt.Errorf("brief generation produced empty brief")
	}

	set := criteria.Extract(brief.ResearchBrief)
	xlog.Info("Research brief ready", "criteria", set.Len())

	delta.Phase = types.PhaseResearch
	delta.ResearchBrief = brief.ResearchBrief
	delta.Criteria = set
	return delta, nil
}

// research runs the tool loop, checkpointing the session after every cycle
// so an interrupted run resumes from where it stopped.
func (o *Orchestrator) research(ctx context.Context, state *types.AgentState) (types.StateDelta, error) {
	delta := types.StateDelta{}

	ctrl, err := researcher.New(
		researcher.WithLLMClient(o.options.client),
		researcher.WithModel(o.options.model),
		researcher.WithTools(o.options.tools...),
		researcher.WithMatcher(o.options.matcher),
		researcher.WithMaxIterations(o.options.maxIterations),
		researcher.WithMaxRetries(o.options.maxRetries),
		researcher.WithToolTimeout(o.options.toolTimeout),
		researcher.WithEventCallback(o.sessionEvents(state.ID)),
		researcher.WithCycleCallback(func(s researcher.CycleSnapshot) {
			snap := state.Snapshot()
			snap.Apply(types.StateDelta{
				ResearchMessages: s.Messages,
				RawNotes:         s.Notes,
				CriteriaUpdates:  criteriaUpdates(s.Criteria),
				Iterations:       s.Iteration,
			})
			o.save(ctx, snap)
		}),
	)
	if err != nil {
		return delta, err
	}

	result, err := ctrl.Run(ctx, state.ResearchBrief, state.Criteria, state.ResearchMessages, state.Iterations)
	if err != nil {
		return delta, err
	}

	delta.ResearchMessages = result.Messages
	delta.RawNotes = result.Notes
	delta.CriteriaUpdates = criteriaUpdates(result.Criteria)
	delta.StopReason = result.StopReason
	delta.Iterations = result.Iterations
	if result.StopReason != types.StopCancelled {
		delta.Phase = types.PhaseSynthesize
	}
	return delta, nil
}

// synthesize writes the final report from whatever evidence the loop
// gathered. It runs for every non-cancelled stop reason: an exhausted
// budget still yields a best-effort report.
func (o *Orchestrator) synthesize(ctx context.Context, state *types.AgentState) (types.StateDelta, error) {
	delta := types.StateDelta{}

	prompt, err := renderReportPrompt(state.ResearchBrief, findings(state.ResearchMessages), state.RawNotes)
	if err != nil {
		return delta, err
	}

	resp, err := llm.Chat(ctx, o.options.client, openai.ChatCompletionRequest{
		Model: o.options.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}, o.options.maxRetries)
	if err != nil {
		return delta, fmt.Errorf("report generation: %w", err)
	}

	delta.FinalReport = resp.Choices[0].Message.Content
	delta.Phase = types.PhaseDone
	return delta, nil
}

// findings flattens the loop transcript into report material: tool results
// and the model's own summaries, in the order they happened.
func findings(messages []openai.ChatCompletionMessage) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case openai.ChatMessageRoleTool:
			if strings.HasPrefix(m.Content, "tool invocation failed") {
				continue
			}
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case openai.ChatMessageRoleAssistant:
			if m.Content != "" {
				b.WriteString(m.Content)
				b.WriteString("\n\n")
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func criteriaUpdates(set *criteria.Set) map[string]bool {
	if set == nil {
		return nil
	}
	updates := map[string]bool{}
	for _, c := range set.Snapshot() {
		updates[c.Text] = c.Satisfied
	}
	return updates
}

func withSystem(system string, conversation []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	return append([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}, conversation...)
}

func (o *Orchestrator) sessionEvents(id string) types.EventCallback {
	if o.options.eventCallback == nil {
		return nil
	}
	return func(e types.Event) {
		e.SessionID = id
		o.options.eventCallback(e)
	}
}

func (o *Orchestrator) emitPhase(state *types.AgentState) {
	o.emit(types.Event{Kind: types.EventPhase, SessionID: state.ID, Phase: state.Phase})
}

func (o *Orchestrator) emit(e types.Event) {
	if o.options.eventCallback != nil {
		o.options.eventCallback(e)
	}
}

func (o *Orchestrator) save(ctx context.Context, state *types.AgentState) {
	if o.options.store == nil {
		return
	}
	if err := o.options.store.Save(ctx, state.Snapshot()); err != nil {
		xlog.Warn("Failed to persist session snapshot", "id", state.ID, "error", err)
	}
}
