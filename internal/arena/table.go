package arena

import (
	"reflect"

	"github.com/pkg/errors"
)

// Table is an agent's handle on the game it plays: state reads, the legal
// move query and move submission, and nothing else. Every value it returns
// is either immutable or a fresh copy, so an agent cannot reach the
// authoritative state except through ApplyMove.
type Table struct {
	g    Game
	b    *Base
	seat int
}

// Seat returns the seat this table was issued to.
func (t *Table) Seat() int { return t.seat }

// Seats returns the number of seats in the game.
func (t *Table) Seats() int { return t.b.Seats() }

// GameName returns the game's display name.
func (t *Table) GameName() string { return gameName(t.g) }

// StateLen returns the number of state variables.
func (t *Table) StateLen() int {
	if t.b.state == nil {
		return 0
	}
	return t.b.state.Len()
}

// IndexState returns the i-th state variable.
func (t *Table) IndexState(i int) (any, error) {
	if t.b.state == nil {
		return nil, indexOutOfRange(i, 0)
	}
	v, err := t.b.state.At(i)
	if err != nil {
		return nil, err
	}
	return t.expose(v), nil
}

// EachState calls fn for every state variable until fn returns false.
func (t *Table) EachState(fn func(i int, v any) bool) {
	if t.b.state == nil {
		return
	}
	t.b.state.Each(func(i int, v any) bool {
		return fn(i, t.expose(v))
	})
}

// DupState returns a copy of every state variable.
func (t *Table) DupState() []any {
	if t.b.state == nil {
		return nil
	}
	vals := t.b.state.Values()
	for i, v := range vals {
		vals[i] = t.expose(v)
	}
	return vals
}

// KeyState returns the state variable addressed by key.
func (t *Table) KeyState(key any) (any, error) {
	i, ok := t.b.Key(key)
	if !ok {
		return nil, errors.Errorf("unknown state key %v", key)
	}
	return t.IndexState(i)
}

// StateKeys returns every state key in the order the game declared them.
func (t *Table) StateKeys() []any {
	keys := make([]any, len(t.b.keyOrder))
	for i, k := range t.b.keyOrder {
		keys[i] = t.expose(k)
	}
	return keys
}

// GameOver reports whether play has ended.
func (t *Table) GameOver() bool { return t.b.gameOver }

// MinTurnMoves returns the least number of moves per turn, if enforced.
func (t *Table) MinTurnMoves() (int, bool) {
	min, ok, _, _ := t.b.TurnBounds()
	return min, ok
}

// MaxTurnMoves returns the most moves allowed per turn, if enforced.
func (t *Table) MaxTurnMoves() (int, bool) {
	_, _, max, ok := t.b.TurnBounds()
	return max, ok
}

// TurnMoves returns the number of moves this seat has made this turn.
func (t *Table) TurnMoves() int {
	if t.b.active != t.seat {
		return 0
	}
	return t.b.turnMoves
}

// MyTurn reports whether this seat is the one currently taking a turn.
func (t *Table) MyTurn() bool {
	return t.b.phase == PhasePlaying && t.b.active == t.seat
}

// LegalMoves returns a fresh copy of the current legal moves.
func (t *Table) LegalMoves() (Moves, error) {
	moves, err := t.g.LegalMoves()
	if err != nil {
		return nil, err
	}
	out := make(Moves, len(moves))
	for id, desc := range moves {
		out[id] = t.expose(desc)
	}
	return out, nil
}

// ApplyMove submits a move for this seat. It fails with ErrOutOfTurn unless
// the seat is in the middle of its own turn. Accepted moves count towards
// the turn's bounds.
func (t *Table) ApplyMove(id MoveID) error {
	if !t.MyTurn() {
		return errors.Wrapf(ErrOutOfTurn, "seat %d in phase %s", t.seat, t.b.phase)
	}
	if err := t.g.ApplyMove(id); err != nil {
		return err
	}
	t.b.turnMoves++
	return nil
}

// expose copies anything an agent could use to write through to the
// game: containers, byte slices, and any slice, array or map, however
// deeply nested.
func (t *Table) expose(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *Vector:
		if x == nil {
			return x
		}
		return x.Clone()
	case []byte, *SafeArray:
		return expose(v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return t.copyValue(rv).Interface()
	}
	return v
}

func (t *Table) copyValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(reflect.ValueOf(t.expose(rv.Interface())))
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(t.copyValue(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(t.copyValue(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), t.copyValue(iter.Value()))
		}
		return out
	}
	return rv
}
