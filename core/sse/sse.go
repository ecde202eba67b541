package sse

import (
	"bufio"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/valyala/fasthttp"
)

const (
	clientBuffer = 50
	historySize  = 100
)

// Hub fans research session events out to SSE subscribers. Streams are
// per-session: a subscriber sees the session's retained history first, then
// live events. Slow subscribers drop events rather than block the session.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*stream
}

type stream struct {
	subscribers map[string]chan types.Event
	history     []types.Event
}

func NewHub() *Hub {
	return &Hub{
		sessions: map[string]*stream{},
	}
}

// Publish records the event in the session's history and delivers it to the
// session's subscribers. Safe to call from any goroutine.
func (h *Hub) Publish(e types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.session(e.SessionID)
	s.history = append(s.history, e)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}

	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			// subscriber is not keeping up, drop
		}
	}
}

// Handle streams the session's events over SSE until the client disconnects.
func (h *Hub) Handle(c *fiber.Ctx, sessionID string) {
	ch, replay, unsubscribe := h.subscribe(sessionID)

	ctx := c.Context()
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		unsubscribe()
		close(done)
	}()

	ctx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
		w.Flush()

		for _, e := range replay {
			if err := writeEvent(w, e); err != nil {
				return
			}
		}
		w.Flush()

		for {
			select {
			case e := <-ch:
				if err := writeEvent(w, e); err != nil {
					return
				}
				w.Flush()
			case <-done:
				return
			}
		}
	}))
}

func writeEvent(w *bufio.Writer, e types.Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, e.String())
	return err
}

func (h *Hub) subscribe(sessionID string) (chan types.Event, []types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.session(sessionID)
	id := uuid.NewString()
	ch := make(chan types.Event, clientBuffer)
	s.subscribers[id] = ch
	replay := append([]types.Event{}, s.history...)

	return ch, replay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Subscribers reports how many clients are attached to a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[sessionID]; ok {
		return len(s.subscribers)
	}
	return 0
}

// session must be called with the lock held.
func (h *Hub) session(id string) *stream {
	s, ok := h.sessions[id]
	if !ok {
		s = &stream{subscribers: map[string]chan types.Event{}}
		h.sessions[id] = s
	}
	return s
}
