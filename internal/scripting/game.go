package scripting

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"

	"github.com/MJE43/agent-arena/internal/arena"
)

// Game is an arena.Game whose rules are script functions. The script must
// define legalMoves(), applyMove(id) and finalize(game, agents); it may
// define beforeAgentsReady(), afterAgentsReady(), beforeAgentsFinish() and
// name. It changes the game through the global engine object.
type Game struct {
	arena.Base

	vm   *vm
	name string
}

// NewGame compiles and runs a game script with one seat per factory.
func NewGame(src string, factories []arena.AgentFactory, opts Options) (*Game, error) {
	name := opts.name("game")
	prog, err := compile(name, src)
	if err != nil {
		return nil, err
	}
	g := &Game{
		Base: arena.NewBase(factories...),
		vm:   newVM(name, opts),
		name: name,
	}
	g.bindEngine()
	if err := g.vm.run(prog); err != nil {
		return nil, err
	}
	return g, nil
}

// Name implements arena.Namer. A script may set name to a string or a
// function returning one.
func (g *Game) Name() string {
	val := g.vm.rt.Get("name")
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return g.name
	}
	if _, ok := goja.AssertFunction(val); ok {
		out, err := g.vm.call("name")
		if err != nil || goja.IsUndefined(out) {
			return g.name
		}
		return out.String()
	}
	return val.String()
}

func (g *Game) BeforeAgentsReady() error { return g.hook("beforeAgentsReady") }

func (g *Game) AfterAgentsReady() error { return g.hook("afterAgentsReady") }

func (g *Game) BeforeAgentsFinish() error { return g.hook("beforeAgentsFinish") }

// hook calls an optional script function.
func (g *Game) hook(name string) error {
	if !g.vm.has(name) {
		return nil
	}
	_, err := g.vm.call(name)
	return err
}

// LegalMoves calls legalMoves(). The script may return an array, indexed by
// move id with null entries skipped, or an object whose keys are move ids.
func (g *Game) LegalMoves() (arena.Moves, error) {
	out, err := g.vm.call("legalMoves")
	if err != nil {
		return nil, err
	}
	switch x := fromJS(out).(type) {
	case nil:
		return arena.Moves{}, nil
	case []any:
		moves := make(arena.Moves, len(x))
		for i, desc := range x {
			if desc != nil {
				moves[arena.MoveID(i)] = desc
			}
		}
		return moves, nil
	case map[string]any:
		moves := make(arena.Moves, len(x))
		for key, desc := range x {
			id, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("scripting: %s: legalMoves(): move id %q is not an integer", g.name, key)
			}
			moves[arena.MoveID(id)] = desc
		}
		return moves, nil
	default:
		return nil, fmt.Errorf("scripting: %s: legalMoves() returned %T, want array or object", g.name, x)
	}
}

func (g *Game) ApplyMove(id arena.MoveID) error {
	_, err := g.vm.call("applyMove", int(id))
	return err
}

// Finalize calls finalize(game, agents) with result objects the script
// fills in through setOutcome, setScore and setWon.
func (g *Game) Finalize(game *arena.GameResult, agents []*arena.AgentResult) error {
	v := g.vm
	gameObj := v.rt.NewObject()
	gameObj.Set("setOutcome", func(text string) {
		if err := game.SetOutcome(text); err != nil {
			v.throw(err)
		}
	})

	agentObjs := make([]any, len(agents))
	for i, a := range agents {
		obj := v.rt.NewObject()
		obj.Set("seat", i)
		obj.Set("setOutcome", func(label string) {
			if err := a.SetOutcome(label); err != nil {
				v.throw(err)
			}
		})
		obj.Set("setScore", func(score int) {
			if err := a.SetScore(score); err != nil {
				v.throw(err)
			}
		})
		obj.Set("setWon", func(won bool) {
			if err := a.SetWon(won); err != nil {
				v.throw(err)
			}
		})
		agentObjs[i] = obj
	}

	_, err := v.call("finalize", gameObj, agentObjs)
	return err
}

// setter is implemented by both state containers.
type setter interface {
	Set(i int, v any) error
}

// bindEngine exposes the game's Base to the script as the engine object.
func (g *Game) bindEngine() {
	v := g.vm
	engine := v.rt.NewObject()

	engine.Set("seats", g.Seats())
	engine.Set("setState", func(val goja.Value) {
		state, err := newState(fromJS(val))
		if err != nil {
			v.throw(err)
		}
		g.SetState(state)
	})
	engine.Set("state", func() any {
		if g.State() == nil {
			return []any{}
		}
		return toJS(g.State())
	})
	engine.Set("get", func(i int) any {
		if g.State() == nil {
			v.throw(fmt.Errorf("scripting: %s: no state", g.name))
		}
		val, err := g.State().At(i)
		if err != nil {
			v.throw(err)
		}
		return toJS(val)
	})
	engine.Set("set", func(i int, val goja.Value) {
		s, ok := g.State().(setter)
		if !ok {
			v.throw(fmt.Errorf("scripting: %s: state is not writable", g.name))
		}
		if err := s.Set(i, fromJS(val)); err != nil {
			v.throw(err)
		}
	})
	engine.Set("setKey", func(key goja.Value, i int) {
		if err := g.SetKey(fromJS(key), i); err != nil {
			v.throw(err)
		}
	})
	engine.Set("setTurnBounds", func(min, max goja.Value) {
		g.SetTurnBounds(bound(min), bound(max))
	})
	engine.Set("setGameOver", g.SetGameOver)
	engine.Set("gameOver", g.GameOver)
	engine.Set("setNextSeat", func(seat int) {
		if seat < 0 || seat >= g.Seats() {
			v.throw(fmt.Errorf("scripting: %s: no seat %d", g.name, seat))
		}
		g.SetNextSeat(seat)
	})
	engine.Set("nextSeat", g.NextSeat)
	engine.Set("turnMoves", g.TurnMoves)
	engine.Set("setReward", g.SetReward)
	engine.Set("persist", func(val goja.Value) { g.Persist(fromJS(val)) })
	engine.Set("illegal", func(id int64, reason string) {
		v.throw(arena.NewIllegalMove(arena.MoveID(id), reason))
	})

	v.rt.Set("engine", engine)
}

// newState stores flat values in a text vector and anything nested in a
// SafeArray.
func newState(val any) (arena.Sequence, error) {
	values, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("scripting: setState wants an array, got %T", val)
	}
	for _, x := range values {
		if !arena.TextKinds.Has(arena.KindOf(x)) {
			return arena.SafeArrayOf(values...)
		}
	}
	return arena.VectorFromSlice(arena.TextKinds, values)
}

// bound maps null and undefined to an unenforced turn bound.
func bound(val goja.Value) int {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return -1
	}
	return int(val.ToInteger())
}
