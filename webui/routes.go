package webui

import (
	"strings"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/services/tools"
	"github.com/sashabaranov/go-openai"
)

type startRequest struct {
	Query string `json:"query"`
}

type resumeRequest struct {
	Answer string `json:"answer"`
}

func (a *App) registerRoutes(webapp *fiber.App) {
	webapp.Post("/api/research", a.handleStart)
	webapp.Get("/api/sessions", a.handleList)
	webapp.Get("/api/sessions/:id", a.handleSnapshot)
	webapp.Get("/api/sessions/:id/events", a.handleEvents)
	webapp.Post("/api/sessions/:id/resume", a.handleResume)
	webapp.Post("/api/sessions/:id/cancel", a.handleCancel)
	webapp.Get("/api/tools", a.handleTools)
}

func (a *App) handleTools(c *fiber.Ctx) error {
	return c.JSON(tools.ConfigMeta())
}

func (a *App) handleStart(c *fiber.Ctx) error {
	req := startRequest{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}

	state := a.startSession([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: req.Query},
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":    state.ID,
		"phase": state.Phase,
	})
}

func (a *App) handleList(c *fiber.Ctx) error {
	return c.JSON(a.sessions.List(c.Context()))
}

func (a *App) handleSnapshot(c *fiber.Ctx) error {
	state, err := a.sessions.Load(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(state)
}

func (a *App) handleEvents(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := a.sessions.Load(c.Context(), id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	a.hub.Handle(c, id)
	return nil
}

// handleResume continues a session paused on a clarifying question with the
// user's answer, or picks up an interrupted one when no answer is needed.
func (a *App) handleResume(c *fiber.Ctx) error {
	id := c.Params("id")
	state, err := a.sessions.Load(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if state.Phase == types.PhaseDone {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "session already completed"})
	}
	if _, running := a.cancels.Load(id); running {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "session still running"})
	}

	req := resumeRequest{}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	resumed := state.Snapshot()
	if strings.TrimSpace(req.Answer) != "" {
		resumed.Conversation = append(resumed.Conversation, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser, Content: req.Answer,
		})
	} else if resumed.ClarifyingQuestion != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session awaits an answer to its clarifying question"})
	}

	// captured before the background goroutine takes ownership of resumed
	id, phase := resumed.ID, resumed.Phase
	a.resumeSession(resumed)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":    id,
		"phase": phase,
	})
}

func (a *App) handleCancel(c *fiber.Ctx) error {
	if !a.cancelSession(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no running session"})
	}
	return c.JSON(fiber.Map{"cancelled": true})
}
