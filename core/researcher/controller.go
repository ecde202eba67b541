package researcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mudler/LocalResearch/core/criteria"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/llm"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// LoopState is the research loop's position in its cycle.
type LoopState int

const (
	StateAwaitModel LoopState = iota
	StateExecuteTools
	StateUpdateCriteria
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateAwaitModel:
		return "AWAIT_MODEL"
	case StateExecuteTools:
		return "EXECUTE_TOOLS"
	case StateUpdateCriteria:
		return "UPDATE_CRITERIA"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// Result is what the loop hands back to the orchestrator: the messages and
// notes appended during this run, the merged criteria and why it stopped.
type Result struct {
	Messages   []openai.ChatCompletionMessage
	Notes      []string
	Criteria   *criteria.Set
	StopReason types.StopReason
	Iterations int
}

// Controller drives the research tool loop as an explicit state machine:
// AWAIT_MODEL asks the model for tool calls or a termination signal,
// EXECUTE_TOOLS dispatches the requested calls, UPDATE_CRITERIA marks
// criteria the fresh evidence satisfies, then the cycle repeats until a
// stopping condition hits. Cycles are strictly sequential; only the tool
// calls of a single turn run concurrently.
type Controller struct {
	options *options
}

func New(opts ...Option) (*Controller, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to set options: %w", err)
	}
	if options.client == nil {
		return nil, fmt.Errorf("no LLM client configured")
	}
	return &Controller{options: options}, nil
}

// CycleSnapshot is handed to the cycle callback after every completed
// UPDATE_CRITERIA step, carrying what the cycle appended so the owner can
// persist a resumable snapshot.
type CycleSnapshot struct {
	Iteration int
	Messages  []openai.ChatCompletionMessage
	Notes     []string
	Criteria  *criteria.Set
}

// Run executes the loop for the given brief. The criteria set is cloned:
// the caller's set is never mutated, merged flags come back in the Result.
// The history slice carries previously persisted research messages when a
// session resumes; startIteration is how many cycles it already completed.
func (c *Controller) Run(ctx context.Context, brief string, set *criteria.Set, history []openai.ChatCompletionMessage, startIteration int) (*Result, error) {
	if set == nil {
		set = criteria.NewSet()
	}
	set = set.Clone()

	working := append([]openai.ChatCompletionMessage{}, history...)
	appended := []openai.ChatCompletionMessage{}
	notes := []string{}

	state := StateAwaitModel
	stopReason := types.StopReason("")
	iterations := startIteration

	for iteration := startIteration; ; iteration++ {
		if ctx.Err() != nil {
			stopReason = types.StopCancelled
			break
		}
		if iteration >= c.options.maxIterations {
			xlog.Info("Iteration budget exhausted", "iterations", iteration, "cap", c.options.maxIterations)
			stopReason = types.StopBudgetExhausted
			break
		}

		// AWAIT_MODEL
		state = StateAwaitModel
		xlog.Debug("Research cycle", "state", state, "iteration", iteration)

		assistant, err := c.awaitModel(ctx, brief, set, working)
		if err != nil {
			if ctx.Err() != nil {
				stopReason = types.StopCancelled
				break
			}
			xlog.Error("Model kept failing, stopping research with gathered evidence", "error", err)
			stopReason = types.StopModelFailure
			break
		}

		working = append(working, assistant)
		appended = append(appended, assistant)

		if len(assistant.ToolCalls) == 0 {
			// A plain text answer is the model's termination signal.
			stopReason = types.StopModelSignal
			break
		}

		// EXECUTE_TOOLS
		state = StateExecuteTools
		xlog.Debug("Research cycle", "state", state, "calls", len(assistant.ToolCalls))

		outcomes := c.dispatch(ctx, assistant.ToolCalls)

		sufficient := false
		cycleNotes := []string{}
		var evidence strings.Builder
		for i, out := range outcomes {
			msg := openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out.content,
				Name:       assistant.ToolCalls[i].Function.Name,
				ToolCallID: assistant.ToolCalls[i].ID,
			}
			working = append(working, msg)
			appended = append(appended, msg)

			if out.note != "" {
				cycleNotes = append(cycleNotes, out.note)
				c.emit(types.Event{
					Kind: types.EventNote,
					Text: out.note,
				})
			}
			if out.sufficient {
				sufficient = true
			}
			if out.err == nil && out.note == "" {
				evidence.WriteString(out.content)
				evidence.WriteString("\n")
			}

			c.emit(types.Event{
				Kind: types.EventToolResult,
				Tool: out.tool,
				Text: out.content,
				Err:  errString(out.err),
			})
		}
		notes = append(notes, cycleNotes...)

		// UPDATE_CRITERIA
		state = StateUpdateCriteria
		xlog.Debug("Research cycle", "state", state, "pending", len(set.Pending()))

		c.updateCriteria(ctx, set, evidence.String(), cycleNotes)
		iterations = iteration + 1

		if c.options.cycleCallback != nil {
			c.options.cycleCallback(CycleSnapshot{
				Iteration: iterations,
				Messages:  append([]openai.ChatCompletionMessage{}, appended...),
				Notes:     append([]string{}, notes...),
				Criteria:  set.Clone(),
			})
		}

		if set.Complete() {
			xlog.Info("All success criteria satisfied, stopping research", "iterations", iterations)
			stopReason = types.StopCriteriaSatisfied
			break
		}
		if sufficient {
			xlog.Info("Model judged gathered knowledge sufficient", "iterations", iterations)
			stopReason = types.StopModelSignal
			break
		}
	}

	state = StateStopped
	xlog.Info("Research loop stopped", "state", state, "reason", stopReason, "iterations", iterations, "notes", len(notes))

	return &Result{
		Messages:   appended,
		Notes:      notes,
		Criteria:   set,
		StopReason: stopReason,
		Iterations: iterations,
	}, nil
}

// awaitModel asks the model for the next decision: tool calls to run, or a
// plain answer meaning it is done. Transient provider failures are retried
// inside llm.Chat.
func (c *Controller) awaitModel(ctx context.Context, brief string, set *criteria.Set, working []openai.ChatCompletionMessage) (openai.ChatCompletionMessage, error) {
	system, err := renderResearchPrompt(brief, set)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}

	messages := append([]openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		},
	}, working...)

	resp, err := llm.Chat(ctx, c.options.client, openai.ChatCompletionRequest{
		Model:    c.options.model,
		Messages: messages,
		Tools:    c.options.tools.ToTools(),
	}, c.options.maxRetries)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}

	return resp.Choices[0].Message, nil
}

type outcome struct {
	tool       string
	content    string
	note       string
	sufficient bool
	err        error
}

// dispatch runs the turn's tool calls concurrently and returns the outcomes
// in request order, so the transcript is deterministic regardless of network
// timing. Every call produces exactly one outcome, success or failure, and
// all in-flight calls are drained even when the context is cancelled.
func (c *Controller) dispatch(ctx context.Context, calls []openai.ToolCall) []outcome {
	outcomes := make([]outcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call openai.ToolCall) {
			defer wg.Done()
			outcomes[i] = c.invoke(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (c *Controller) invoke(ctx context.Context, call openai.ToolCall) outcome {
	out := outcome{tool: call.Function.Name}

	c.emit(types.Event{
		Kind: types.EventToolCall,
		Tool: call.Function.Name,
		Text: call.Function.Arguments,
	})

	tool := c.options.tools.Find(call.Function.Name)
	if tool == nil {
		out.err = fmt.Errorf("unknown tool %q", call.Function.Name)
		out.content = fmt.Sprintf("tool invocation failed: %v", out.err)
		return out
	}

	params := types.ToolParams{}
	if err := params.Read(call.Function.Arguments); err != nil {
		out.err = fmt.Errorf("failed to parse arguments: %w", err)
		out.content = fmt.Sprintf("tool invocation failed: %v", out.err)
		return out
	}

	tctx, cancel := context.WithTimeout(ctx, c.options.toolTimeout)
	defer cancel()

	result, err := tool.Run(tctx, params)
	if err != nil {
		xlog.Warn("Tool invocation failed", "tool", call.Function.Name, "error", err)
		out.err = err
		out.content = fmt.Sprintf("tool invocation failed: %v", err)
		return out
	}

	out.content = result.Result
	if note, ok := result.Metadata[types.MetadataNote].(string); ok {
		out.note = note
	}
	if sufficient, ok := result.Metadata[types.MetadataSufficient].(bool); ok {
		out.sufficient = sufficient
	}
	return out
}

// updateCriteria checks the cycle's fresh evidence and notes against every
// pending criterion. Checks run concurrently: marking a criterion satisfied
// is commutative and idempotent, so the order does not matter. A failed
// check leaves its criterion untouched.
func (c *Controller) updateCriteria(ctx context.Context, set *criteria.Set, evidence string, cycleNotes []string) {
	if c.options.matcher == nil {
		return
	}
	material := strings.TrimSpace(evidence + "\n" + strings.Join(cycleNotes, "\n"))
	if material == "" {
		return
	}

	var wg sync.WaitGroup
	for _, pending := range set.Pending() {
		wg.Add(1)
		go func(criterion string) {
			defer wg.Done()

			satisfied, err := c.options.matcher.Satisfied(ctx, criterion, material)
			if err != nil {
				xlog.Warn("Criterion check failed, leaving unsatisfied", "criterion", criterion, "error", err)
				return
			}
			if satisfied && set.MarkSatisfied(criterion) {
				xlog.Info("Criterion satisfied", "criterion", criterion)
				c.emit(types.Event{
					Kind:      types.EventCriterion,
					Criterion: criterion,
					Satisfied: true,
				})
			}
		}(pending)
	}
	wg.Wait()
}

func (c *Controller) emit(e types.Event) {
	if c.options.eventCallback != nil {
		c.options.eventCallback(e)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
