package scripting

import (
	"fmt"
	"slices"

	"github.com/dop251/goja"
	"github.com/samber/lo"

	"github.com/MJE43/agent-arena/internal/arena"
)

// NewAgentFactory compiles an agent script and returns a factory that gives
// every seat its own runtime. The script defines prepare(), takeTurn(reward)
// and finish(), and plays through the global game object.
func NewAgentFactory(src string, opts Options) (arena.AgentFactory, error) {
	name := opts.name("agent")
	prog, err := compile(name, src)
	if err != nil {
		return nil, err
	}
	return func(t *arena.Table) arena.Agent {
		seatOpts := opts
		seatOpts.Name = fmt.Sprintf("%s[seat %d]", name, t.Seat())
		return &jsAgent{t: t, prog: prog, opts: seatOpts}
	}, nil
}

type jsAgent struct {
	t    *arena.Table
	prog *goja.Program
	opts Options
	vm   *vm
}

// Prepare starts the runtime, runs the script's top-level code and calls prepare().
func (a *jsAgent) Prepare() error {
	a.vm = newVM(a.opts.name("agent"), a.opts)
	a.bindTable()
	if err := a.vm.run(a.prog); err != nil {
		return err
	}
	_, err := a.vm.call("prepare")
	return err
}

func (a *jsAgent) TakeTurn(reward *float64) error {
	if a.vm == nil {
		return fmt.Errorf("scripting: %s: takeTurn before prepare", a.opts.Name)
	}
	var r any
	if reward != nil {
		r = *reward
	}
	_, err := a.vm.call("takeTurn", r)
	return err
}

func (a *jsAgent) Finish() error {
	if a.vm == nil {
		return fmt.Errorf("scripting: %s: finish before prepare", a.opts.Name)
	}
	_, err := a.vm.call("finish")
	return err
}

// bindTable exposes the agent's table to the script as the game object.
func (a *jsAgent) bindTable() {
	t, v := a.t, a.vm
	game := v.rt.NewObject()

	game.Set("seat", t.Seat())
	game.Set("seats", t.Seats())
	game.Set("name", t.GameName())
	game.Set("stateLen", t.StateLen)
	game.Set("state", func(i int) any {
		val, err := t.IndexState(i)
		if err != nil {
			v.throw(err)
		}
		return toJS(val)
	})
	game.Set("stateAt", func(key goja.Value) any {
		val, err := t.KeyState(fromJS(key))
		if err != nil {
			v.throw(err)
		}
		return toJS(val)
	})
	game.Set("dupState", func() any { return toJSAll(t.DupState()) })
	game.Set("stateKeys", func() any { return toJSAll(t.StateKeys()) })
	game.Set("gameOver", t.GameOver)
	game.Set("minTurnMoves", func() any { return optionalInt(t.MinTurnMoves()) })
	game.Set("maxTurnMoves", func() any { return optionalInt(t.MaxTurnMoves()) })
	game.Set("turnMoves", t.TurnMoves)
	game.Set("myTurn", t.MyTurn)
	game.Set("legalMoves", func() any {
		moves, err := t.LegalMoves()
		if err != nil {
			v.throw(err)
		}
		return movesToJS(moves)
	})
	game.Set("applyMove", func(id int64) {
		if err := t.ApplyMove(arena.MoveID(id)); err != nil {
			v.throw(err)
		}
	})

	v.rt.Set("game", game)
}

// movesToJS lists moves as {id, move} objects ordered by id.
func movesToJS(moves arena.Moves) []any {
	ids := lo.Keys(moves)
	slices.Sort(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{"id": int(id), "move": toJS(moves[id])}
	}
	return out
}
