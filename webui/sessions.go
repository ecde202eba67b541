package webui

import (
	"context"
	"fmt"
	"sync"

	"github.com/mudler/LocalResearch/core/orchestrator"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/xlog"
)

// registry keeps the latest in-memory snapshot of every session this
// process has seen. It fronts the persistent store: reads hit memory first,
// writes go to both.
type registry struct {
	mu        sync.RWMutex
	snapshots map[string]*types.AgentState
	persist   orchestrator.Store
}

func newRegistry(persist orchestrator.Store) *registry {
	return &registry{
		snapshots: map[string]*types.AgentState{},
		persist:   persist,
	}
}

func (r *registry) Save(ctx context.Context, state *types.AgentState) error {
	r.mu.Lock()
	r.snapshots[state.ID] = state
	r.mu.Unlock()

	if r.persist != nil {
		return r.persist.Save(ctx, state)
	}
	return nil
}

func (r *registry) Load(ctx context.Context, id string) (*types.AgentState, error) {
	r.mu.RLock()
	state, ok := r.snapshots[id]
	r.mu.RUnlock()
	if ok {
		return state, nil
	}

	if r.persist != nil {
		return r.persist.Load(ctx, id)
	}
	return nil, fmt.Errorf("session %s not found", id)
}

// sessionLister is the optional listing capability of a persistent store.
type sessionLister interface {
	List(ctx context.Context) (map[string]types.Phase, error)
}

// List merges persisted sessions with the in-memory ones, so sessions
// started before a restart stay visible. Memory wins on conflict: it is at
// least as fresh as the last persisted snapshot.
func (r *registry) List(ctx context.Context) map[string]types.Phase {
	sessions := map[string]types.Phase{}

	if lister, ok := r.persist.(sessionLister); ok {
		persisted, err := lister.List(ctx)
		if err != nil {
			xlog.Warn("Failed to list persisted sessions", "error", err)
		}
		for id, phase := range persisted {
			sessions[id] = phase
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, state := range r.snapshots {
		sessions[id] = state.Phase
	}
	return sessions
}
