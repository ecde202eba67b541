package webui

import (
	"context"
	"errors"
	"sync"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mudler/LocalResearch/core/orchestrator"
	"github.com/mudler/LocalResearch/core/sse"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// App is the JSON API surface: it starts sessions, serves their snapshots
// and streams their progress events over SSE.
type App struct {
	config       *Config
	orchestrator *orchestrator.Orchestrator
	hub          *sse.Hub
	sessions     *registry
	cancels      sync.Map
	*fiber.App
}

func NewApp(opts ...Option) (*App, error) {
	config := NewConfig(opts...)

	hub := sse.NewHub()
	sessions := newRegistry(config.Store)

	orch, err := orchestrator.New(
		orchestrator.WithLLMClient(config.Client),
		orchestrator.WithModel(config.Model),
		orchestrator.WithTools(config.Tools...),
		orchestrator.WithStore(sessions),
		orchestrator.WithMaxIterations(config.MaxIterations),
		orchestrator.WithToolTimeout(config.ToolTimeout),
		orchestrator.WithClarification(config.Clarify),
		orchestrator.WithEventCallback(hub.Publish),
	)
	if err != nil {
		return nil, err
	}

	webapp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	a := &App{
		config:       config,
		orchestrator: orch,
		hub:          hub,
		sessions:     sessions,
		App:          webapp,
	}
	a.registerRoutes(webapp)

	return a, nil
}

// startSession registers the session and drives it in the background. The
// returned snapshot is taken before the session starts: once drive launches,
// the live record belongs to the orchestrator and handlers must not touch it.
func (a *App) startSession(conversation []openai.ChatCompletionMessage) *types.AgentState {
	state := types.NewAgentState(uuid.NewString(), conversation)
	snapshot := state.Snapshot()
	_ = a.sessions.Save(context.Background(), snapshot)

	a.drive(state, func(ctx context.Context) (*types.AgentState, error) {
		return a.orchestrator.Run(ctx, state)
	})
	return snapshot
}

func (a *App) resumeSession(state *types.AgentState) {
	a.drive(state, func(ctx context.Context) (*types.AgentState, error) {
		return a.orchestrator.Resume(ctx, state)
	})
}

func (a *App) drive(state *types.AgentState, run func(ctx context.Context) (*types.AgentState, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancels.Store(state.ID, cancel)

	go func() {
		defer a.cancels.Delete(state.ID)
		defer cancel()

		if _, err := run(ctx); err != nil {
			var phaseErr *types.PhaseError
			if errors.As(err, &phaseErr) {
				xlog.Error("Session aborted", "id", state.ID, "phase", phaseErr.Phase, "error", err)
			} else {
				xlog.Error("Session failed", "id", state.ID, "error", err)
			}
			a.hub.Publish(types.Event{
				Kind:      types.EventError,
				SessionID: state.ID,
				Err:       err.Error(),
			})
		}
	}()
}

func (a *App) cancelSession(id string) bool {
	if cancel, ok := a.cancels.Load(id); ok {
		cancel.(context.CancelFunc)()
		return true
	}
	return false
}
