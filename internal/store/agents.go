package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent is a stored competitor. Builtin agents carry their registry name in
// Source; script agents carry the script.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateAgent inserts an agent and returns its ID.
func (s *Store) CreateAgent(ctx context.Context, a *Agent) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, kind, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Kind, a.Source, a.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("store: create agent: %w", err)
	}
	return a.ID, nil
}

// GetAgent fetches an agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, source, created_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Kind, &a.Source, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: agent %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns agents ordered by name, with the total count. Sources
// are not loaded.
func (s *Store) ListAgents(ctx context.Context, limit, offset int) ([]Agent, int, error) {
	limit, offset = page(limit, offset, 50)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count agents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, created_at FROM agents ORDER BY name, created_at LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, total, rows.Err()
}

// DeleteAgent removes an agent and its game permissions. It fails with
// ErrInUse while stored results list the agent as a participant.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM participants WHERE agent_id = ?`, id,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("store: delete agent: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("store: agent %q played %d matches: %w", id, n, ErrInUse)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("store: delete agent: %w", err)
		}
		return affected(res, "agent", id)
	})
}
