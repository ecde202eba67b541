package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/LocalResearch/core/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS research_sessions (
	id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	state JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SessionStore persists session snapshots as JSONB rows, one per session,
// latest snapshot wins.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(ctx context.Context, dbURL string) (*SessionStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("db pool connection: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}
	return &SessionStore{pool: pool}, nil
}

func (s *SessionStore) Save(ctx context.Context, state *types.AgentState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO research_sessions (id, phase, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET phase = $2, state = $3, updated_at = now()`,
		state.ID, string(state.Phase), payload)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.ID, err)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*types.AgentState, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM research_sessions WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	state := &types.AgentState{}
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return state, nil
}

// List returns session IDs with their phase, newest first.
func (s *SessionStore) List(ctx context.Context) (map[string]types.Phase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, phase FROM research_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := map[string]types.Phase{}
	for rows.Next() {
		var id, phase string
		if err := rows.Scan(&id, &phase); err != nil {
			return nil, err
		}
		sessions[id] = types.Phase(phase)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) Close() {
	s.pool.Close()
}
