package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/MJE43/agent-arena/internal/arena"
)

// Result is one stored run.
type Result struct {
	ID       string  `json:"id"`
	GameID   string  `json:"gameId"`
	OK       bool    `json:"ok"`
	Outcome  *string `json:"outcome,omitempty"`
	Fault    string  `json:"fault,omitempty"`
	Trace    string  `json:"trace,omitempty"`
	FailedIn string  `json:"failedIn,omitempty"`
	Turns    int     `json:"turns"`
	// Snapshot is the JSON encoding of the value the game persisted.
	Snapshot     json.RawMessage `json:"snapshot,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	Participants []Participant   `json:"participants"`
}

// Participant is one seat of a stored run.
type Participant struct {
	AgentID string `json:"agentId"`
	// AgentName is filled in when reading.
	AgentName string  `json:"agentName,omitempty"`
	Seat      int     `json:"seat"`
	Score     *int    `json:"score,omitempty"`
	Outcome   *string `json:"outcome,omitempty"`
	Won       *bool   `json:"won,omitempty"`
}

// NewResult converts a run report into a Result for gameID, with agentIDs
// in seat order.
func NewResult(gameID string, agentIDs []string, rep arena.Report) (*Result, error) {
	if len(rep.Agents) != len(agentIDs) {
		return nil, fmt.Errorf("store: report has %d seats, got %d agents", len(rep.Agents), len(agentIDs))
	}
	r := &Result{
		GameID:   gameID,
		OK:       rep.OK,
		Outcome:  rep.Game.Outcome,
		Fault:    rep.Game.FaultMessage(),
		Trace:    rep.Game.Trace,
		FailedIn: string(rep.FailedIn),
		Turns:    rep.Turns,
	}
	if rep.Snapshot != nil {
		snap, err := json.Marshal(rep.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("store: encode snapshot: %w", err)
		}
		r.Snapshot = snap
	}
	r.Participants = make([]Participant, len(agentIDs))
	for seat, id := range agentIDs {
		a := rep.Agents[seat]
		r.Participants[seat] = Participant{
			AgentID: id,
			Seat:    seat,
			Score:   a.Score,
			Outcome: a.Outcome,
			Won:     a.Won,
		}
	}
	return r, nil
}

// SaveResult stores a result and its participants in one transaction,
// retrying while the database is busy.
func (s *Store) SaveResult(ctx context.Context, r *Result) error {
	return s.SaveResults(ctx, []*Result{r})
}

// SaveResults stores each result in its own transaction, so one bad row
// does not take the rest of the batch with it. The returned error combines
// every failure.
func (s *Store) SaveResults(ctx context.Context, results []*Result) error {
	var errs error
	for _, r := range results {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now()
		}
		err := withRetry(ctx, func(ctx context.Context) error {
			return s.inTx(ctx, func(tx *sql.Tx) error {
				return insertResult(ctx, tx, r)
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store: result %s: %w", r.ID, err))
		}
	}
	return errs
}

func insertResult(ctx context.Context, tx *sql.Tx, r *Result) error {
	var snapshot any
	if len(r.Snapshot) > 0 {
		snapshot = string(r.Snapshot)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO results (id, game_id, ok, outcome, fault, trace, failed_in, turns, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GameID, r.OK, r.Outcome, r.Fault, r.Trace, r.FailedIn, r.Turns, snapshot, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO participants (result_id, agent_id, seat, score, outcome, won)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range r.Participants {
		if _, err := stmt.ExecContext(ctx, r.ID, p.AgentID, p.Seat, p.Score, p.Outcome, p.Won); err != nil {
			return fmt.Errorf("store: insert participant seat %d: %w", p.Seat, err)
		}
	}
	return nil
}

// GetResult fetches a result with its participants.
func (s *Store) GetResult(ctx context.Context, id string) (*Result, error) {
	r := &Result{}
	var snapshot *string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, game_id, ok, outcome, fault, trace, failed_in, turns, snapshot, created_at
		 FROM results WHERE id = ?`, id,
	).Scan(&r.ID, &r.GameID, &r.OK, &r.Outcome, &r.Fault, &r.Trace, &r.FailedIn, &r.Turns, &snapshot, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: result %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get result: %w", err)
	}
	if snapshot != nil {
		r.Snapshot = json.RawMessage(*snapshot)
	}
	if r.Participants, err = s.participants(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// ListResults returns a game's results newest first, with the total count.
// Traces and snapshots are left out.
func (s *Store) ListResults(ctx context.Context, gameID string, limit, offset int) ([]Result, int, error) {
	limit, offset = page(limit, offset, 100)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM results WHERE game_id = ?", gameID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, ok, outcome, fault, failed_in, turns, created_at
		 FROM results WHERE game_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		gameID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list results: %w", err)
	}
	results := []Result{}
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.GameID, &r.OK, &r.Outcome, &r.Fault, &r.FailedIn, &r.Turns, &r.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("store: scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, fmt.Errorf("store: list results: %w", err)
	}

	for i := range results {
		if results[i].Participants, err = s.participants(ctx, results[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return results, total, nil
}

func (s *Store) participants(ctx context.Context, resultID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.agent_id, a.name, p.seat, p.score, p.outcome, p.won
		 FROM participants p JOIN agents a ON a.id = p.agent_id
		 WHERE p.result_id = ? ORDER BY p.seat`, resultID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list participants: %w", err)
	}
	defer rows.Close()

	out := []Participant{}
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.AgentID, &p.AgentName, &p.Seat, &p.Score, &p.Outcome, &p.Won); err != nil {
			return nil, fmt.Errorf("store: scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
