package games

import (
	"slices"
	"strconv"

	"github.com/samber/lo"

	"github.com/MJE43/agent-arena/internal/arena"
)

// FirstLegal plays the legal move with the lowest id every turn.
func FirstLegal(t *arena.Table) arena.Agent {
	return arena.AgentFunc(func(*float64) error {
		ids, err := sortedMoves(t)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return t.ApplyMove(ids[0])
	})
}

// Random returns a factory for agents that pick uniformly among the legal
// moves. Picks come from a deterministic stream keyed by seed and seat, so
// two runs with the same seed and opponents play the same game.
func Random(seed uint64) arena.AgentFactory {
	return func(t *arena.Table) arena.Agent {
		return &randomAgent{
			t:      t,
			stream: newByteStream("agent-arena", "seat-"+strconv.Itoa(t.Seat()), seed, 0),
		}
	}
}

type randomAgent struct {
	t      *arena.Table
	stream *byteStream
}

func (a *randomAgent) Prepare() error { return nil }

func (a *randomAgent) TakeTurn(*float64) error {
	ids, err := sortedMoves(a.t)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	pick := int(a.stream.float() * float64(len(ids)))
	return a.t.ApplyMove(ids[pick])
}

func (a *randomAgent) Finish() error { return nil }

func sortedMoves(t *arena.Table) ([]arena.MoveID, error) {
	moves, err := t.LegalMoves()
	if err != nil {
		return nil, err
	}
	ids := lo.Keys(moves)
	slices.Sort(ids)
	return ids, nil
}
