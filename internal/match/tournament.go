package match

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/agent-arena/internal/store"
)

// Summary is the short form of one tournament match.
type Summary struct {
	ResultID string   `json:"resultId"`
	AgentIDs []string `json:"agentIds"`
	OK       bool     `json:"ok"`
	Outcome  *string  `json:"outcome,omitempty"`
	Fault    string   `json:"fault,omitempty"`
	Winners  []string `json:"winners"`
	Turns    int      `json:"turns"`
}

// Tournament is the outcome of a round robin.
type Tournament struct {
	Matches     []Summary        `json:"matches"`
	Leaderboard []store.Standing `json:"leaderboard"`
}

// Pairings lists the seatings one round plays. Two-seat games play every
// ordered pair of distinct agents; other games take exactly one agent per
// seat and play every rotation of them.
func Pairings(agentIDs []string, seats int) ([][]string, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("%w: no agents", ErrSeats)
	}
	if seats == 2 {
		if len(agentIDs) < 2 {
			return nil, fmt.Errorf("%w: a round robin needs at least 2 agents", ErrSeats)
		}
		var out [][]string
		for i, a := range agentIDs {
			for j, b := range agentIDs {
				if i != j {
					out = append(out, []string{a, b})
				}
			}
		}
		return out, nil
	}
	if seats > 0 && len(agentIDs) != seats {
		return nil, fmt.Errorf("%w: %d-seat tournaments take exactly %d agents, got %d", ErrSeats, seats, seats, len(agentIDs))
	}
	out := make([][]string, len(agentIDs))
	for shift := range agentIDs {
		out[shift] = append(append([]string{}, agentIDs[shift:]...), agentIDs[:shift]...)
	}
	return out, nil
}

// Tournament plays every pairing of agentIDs rounds times, at most
// Parallelism runs at once, stores the results and returns them with the
// refreshed leaderboard. Match i is played with seed+i.
func (r *Runner) Tournament(ctx context.Context, gameID string, agentIDs []string, rounds int, seed uint64) (*Tournament, error) {
	if rounds <= 0 {
		rounds = 1
	}
	// 1. Resolve the game and every distinct agent once
	g, err := r.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	ids := lo.Uniq(agentIDs)
	units, err := r.loadAgents(ctx, g, ids)
	if err != nil {
		return nil, err
	}
	pairings, err := Pairings(ids, g.seats)
	if err != nil {
		return nil, err
	}
	var seatings [][]string
	for range rounds {
		seatings = append(seatings, pairings...)
	}

	// 2. Play the matches on a bounded pool
	rec := store.NewRecorder(r.store, 0)
	summaries := make([]Summary, len(seatings))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Parallelism)
	for i, seating := range seatings {
		eg.Go(func() error {
			builders := lo.Map(seating, func(id string, _ int) agentBuilder { return units[id].build })
			rep, err := r.run(egCtx, g, builders, seed+uint64(i))
			if err != nil {
				return err
			}
			res, err := store.NewResult(g.id, seating, rep)
			if err != nil {
				return err
			}
			rec.Record(egCtx, res)
			summaries[i] = Summary{
				ResultID: res.ID,
				AgentIDs: seating,
				OK:       rep.OK,
				Outcome:  rep.Game.Outcome,
				Fault:    rep.Game.FaultMessage(),
				Winners:  lo.Map(rep.Winners(), func(seat int, _ int) string { return units[seating[seat]].name }),
				Turns:    rep.Turns,
			}
			return nil
		})
	}
	playErr := eg.Wait()

	// 3. Store what was played and rank the agents
	if err := rec.Flush(ctx); err != nil {
		return nil, err
	}
	if playErr != nil {
		return nil, playErr
	}
	board, err := r.store.Leaderboard(ctx, g.id)
	if err != nil {
		return nil, err
	}
	r.logger.Info("tournament finished", "game", g.name, "agents", len(ids), "matches", len(summaries))
	return &Tournament{Matches: summaries, Leaderboard: board}, nil
}
