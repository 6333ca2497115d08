package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Standing is one agent's record in a game. Only successful runs count; a
// run nobody won is a draw for every seat.
type Standing struct {
	AgentID   string          `json:"agentId"`
	AgentName string          `json:"agentName"`
	Played    int             `json:"played"`
	Wins      int             `json:"wins"`
	Losses    int             `json:"losses"`
	Draws     int             `json:"draws"`
	WinRate   decimal.Decimal `json:"winRate"`
}

// Leaderboard ranks the agents that completed runs of a game by win rate,
// then wins, then name.
func (s *Store) Leaderboard(ctx context.Context, gameID string) ([]Standing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.agent_id, a.name, COALESCE(p.won, 0),
		        EXISTS (SELECT 1 FROM participants w WHERE w.result_id = p.result_id AND w.won = 1)
		 FROM participants p
		 JOIN results r ON r.id = p.result_id
		 JOIN agents a ON a.id = p.agent_id
		 WHERE r.game_id = ? AND r.ok = 1`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}
	defer rows.Close()

	byAgent := make(map[string]*Standing)
	for rows.Next() {
		var (
			agentID, name string
			won, decided  bool
		)
		if err := rows.Scan(&agentID, &name, &won, &decided); err != nil {
			return nil, fmt.Errorf("store: scan standing: %w", err)
		}
		st, ok := byAgent[agentID]
		if !ok {
			st = &Standing{AgentID: agentID, AgentName: name}
			byAgent[agentID] = st
		}
		st.Played++
		switch {
		case won:
			st.Wins++
		case decided:
			st.Losses++
		default:
			st.Draws++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}

	standings := lo.Map(lo.Values(byAgent), func(st *Standing, _ int) Standing {
		st.WinRate = decimal.NewFromInt(int64(st.Wins)).Div(decimal.NewFromInt(int64(st.Played))).Round(4)
		return *st
	})
	slices.SortFunc(standings, func(a, b Standing) int {
		if c := b.WinRate.Cmp(a.WinRate); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		return cmp.Compare(a.AgentName, b.AgentName)
	})
	return standings, nil
}
