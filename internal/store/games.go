package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Game and agent kinds.
const (
	KindBuiltin = "builtin"
	KindJS      = "js"
	KindLua     = "lua"
)

// Game is a stored game definition. Builtin games carry their registry name
// in Source; script games carry the script.
type Game struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Seats     []Seat    `json:"seats"`
	CreatedAt time.Time `json:"createdAt"`
}

// Seat is one player position of a game.
type Seat struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// CreateGame inserts a game and its seats and returns its ID.
func (s *Store) CreateGame(ctx context.Context, g *Game) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO games (id, name, kind, source, created_at) VALUES (?, ?, ?, ?, ?)`,
			g.ID, g.Name, g.Kind, g.Source, g.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("store: create game: %w", err)
		}
		for i := range g.Seats {
			g.Seats[i].Position = i
			seat := g.Seats[i]
			_, err := tx.ExecContext(ctx,
				`INSERT INTO seats (game_id, position, name, required) VALUES (?, ?, ?, ?)`,
				g.ID, seat.Position, seat.Name, seat.Required,
			)
			if err != nil {
				return fmt.Errorf("store: create seat %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

// GetGame fetches a game and its seats by ID.
func (s *Store) GetGame(ctx context.Context, id string) (*Game, error) {
	g := &Game{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, source, created_at FROM games WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.Kind, &g.Source, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: game %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get game: %w", err)
	}
	if g.Seats, err = s.seats(ctx, id); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) seats(ctx context.Context, gameID string) ([]Seat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, name, required FROM seats WHERE game_id = ? ORDER BY position`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list seats: %w", err)
	}
	defer rows.Close()

	seats := []Seat{}
	for rows.Next() {
		var seat Seat
		if err := rows.Scan(&seat.Position, &seat.Name, &seat.Required); err != nil {
			return nil, fmt.Errorf("store: scan seat: %w", err)
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// ListGames returns games ordered by name, with the total count. Seats are
// not loaded.
func (s *Store) ListGames(ctx context.Context, limit, offset int) ([]Game, int, error) {
	limit, offset = page(limit, offset, 50)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM games").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count games: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, created_at FROM games ORDER BY name, created_at LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list games: %w", err)
	}
	defer rows.Close()

	games := []Game{}
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Kind, &g.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, total, rows.Err()
}

// DeleteGame removes a game. It fails with ErrInUse while results or allowed
// agents still reference it.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var results, agents int
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM results WHERE game_id = ?),
			        (SELECT COUNT(*) FROM agent_games WHERE game_id = ?)`, id, id,
		).Scan(&results, &agents)
		if err != nil {
			return fmt.Errorf("store: delete game: %w", err)
		}
		if results > 0 || agents > 0 {
			return fmt.Errorf("store: game %q has %d results and %d agents: %w", id, results, agents, ErrInUse)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM games WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("store: delete game: %w", err)
		}
		return affected(res, "game", id)
	})
}

// AllowAgent lets an agent play a game. Allowing it twice is not an error.
func (s *Store) AllowAgent(ctx context.Context, gameID, agentID string) error {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return err
	}
	if _, err := s.GetAgent(ctx, agentID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agent_games (agent_id, game_id) VALUES (?, ?)`, agentID, gameID,
	)
	if err != nil {
		return fmt.Errorf("store: allow agent: %w", err)
	}
	return nil
}

// AgentsForGame returns the agents allowed to play a game, ordered by name.
func (s *Store) AgentsForGame(ctx context.Context, gameID string) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.kind, a.created_at
		 FROM agents a JOIN agent_games ag ON ag.agent_id = a.id
		 WHERE ag.game_id = ? ORDER BY a.name`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: agents for game: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// IsAllowed reports whether an agent may play a game.
func (s *Store) IsAllowed(ctx context.Context, gameID, agentID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_games WHERE game_id = ? AND agent_id = ?`, gameID, agentID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check agent: %w", err)
	}
	return n > 0, nil
}

func affected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s %q: %w", what, id, ErrNotFound)
	}
	return nil
}
