// Package luaagent runs agents written in Lua. Each seat gets its own Lua
// state with only the base, string, table and math libraries loaded.
//
// A script defines the globals prepare(), take_turn(reward) and finish() and
// plays through the global game table. State indexes and move ids are the
// engine's zero-based values; tables returned to the script are one-based
// Lua arrays.
package luaagent

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/Shopify/go-lua"
	pkgerrors "github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/MJE43/agent-arena/internal/arena"
	"github.com/MJE43/agent-arena/internal/scripting"
)

// hookInterval is how many instructions run between deadline checks.
const hookInterval = 1000

// NewFactory checks src for syntax errors and returns a factory that loads
// it into a fresh Lua state per seat. opts is shared with the JS runtime:
// Timeout bounds every call and Logger receives print() output.
func NewFactory(src string, opts scripting.Options) (arena.AgentFactory, error) {
	name := opts.Name
	if name == "" {
		name = "lua"
	}
	if err := lua.LoadString(lua.NewState(), src); err != nil {
		return nil, fmt.Errorf("luaagent: compile %s: %w", name, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = scripting.DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(t *arena.Table) arena.Agent {
		seatName := fmt.Sprintf("%s[seat %d]", name, t.Seat())
		return &agent{
			t:       t,
			src:     src,
			name:    seatName,
			timeout: timeout,
			logger:  logger.With("script", seatName),
		}
	}, nil
}

type agent struct {
	t       *arena.Table
	src     string
	name    string
	timeout time.Duration
	logger  *slog.Logger

	l        *lua.State
	deadline time.Time
	timedOut bool
	// hostErr is the last error a bound Go function threw and hostMsg the
	// Lua error value it raised for it.
	hostErr error
	hostMsg string
}

// Prepare builds the Lua state, runs the chunk and calls prepare().
func (a *agent) Prepare() error {
	a.l = a.newState()
	if err := lua.LoadString(a.l, a.src); err != nil {
		return fmt.Errorf("luaagent: %s: %w", a.name, err)
	}
	if err := a.protect("main chunk", 0); err != nil {
		return err
	}
	return a.call("prepare", nil)
}

func (a *agent) TakeTurn(reward *float64) error {
	if a.l == nil {
		return fmt.Errorf("luaagent: %s: take_turn before prepare", a.name)
	}
	return a.call("take_turn", func(l *lua.State) int {
		if reward == nil {
			l.PushNil()
		} else {
			l.PushNumber(*reward)
		}
		return 1
	})
}

func (a *agent) Finish() error {
	if a.l == nil {
		return fmt.Errorf("luaagent: %s: finish before prepare", a.name)
	}
	return a.call("finish", nil)
}

// newState opens the allowed libraries, replaces print and binds the game table.
func (a *agent) newState() *lua.State {
	l := lua.NewState()
	libs := []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
	}
	for _, lib := range libs {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Register("print", a.print)
	a.bindTable(l)
	lua.SetDebugHook(l, a.hook, lua.MaskCount, hookInterval)
	return l
}

// hook aborts the running call once its deadline has passed.
func (a *agent) hook(l *lua.State, _ lua.Debug) {
	if !a.deadline.IsZero() && time.Now().After(a.deadline) {
		a.timedOut = true
		lua.Errorf(l, "script timed out")
	}
}

// call invokes the global function called name. A missing function fails
// with an UnsupportedOperation error.
func (a *agent) call(name string, push func(l *lua.State) int) error {
	l := a.l
	top := l.Top()
	l.Global(name)
	if !l.IsFunction(-1) {
		l.SetTop(top)
		return pkgerrors.WithStack(&arena.UnsupportedOperationError{Op: name})
	}
	nargs := 0
	if push != nil {
		nargs = push(l)
	}
	return a.protect(name+"()", nargs)
}

// protect runs the function below the top nargs stack slots under the call
// deadline, mapping failures back to the Go error that caused them.
func (a *agent) protect(label string, nargs int) error {
	l := a.l
	top := l.Top() - nargs - 1
	a.hostErr, a.hostMsg, a.timedOut = nil, "", false
	a.deadline = time.Now().Add(a.timeout)
	err := l.ProtectedCall(nargs, 0, 0)
	a.deadline = time.Time{}
	// A host error only counts when it is the value that escaped. A script
	// may catch one with pcall and then fail for its own reasons.
	hostErr := a.hostErr
	if err != nil && hostErr != nil {
		if msg, ok := l.ToString(-1); !ok || msg != a.hostMsg {
			hostErr = nil
		}
	}
	a.hostErr, a.hostMsg = nil, ""
	l.SetTop(top)

	switch {
	case err == nil:
		return nil
	case a.timedOut:
		return fmt.Errorf("luaagent: %s: %s: %w after %s", a.name, label, scripting.ErrScriptTimeout, a.timeout)
	case hostErr != nil:
		return fmt.Errorf("luaagent: %s: %s: %w", a.name, label, hostErr)
	default:
		return fmt.Errorf("luaagent: %s: %s: %w", a.name, label, err)
	}
}

// throw raises err as a Lua error. It must only be called from a Go
// function bound into the state.
func (a *agent) throw(l *lua.State, err error) {
	a.hostErr, a.hostMsg = err, err.Error()
	l.PushString(a.hostMsg)
	l.Error()
}

func (a *agent) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		v := toGo(l, i)
		if v == nil {
			parts[i-1] = "nil"
			continue
		}
		parts[i-1] = fmt.Sprint(v)
	}
	a.logger.Info(strings.Join(parts, "\t"))
	return 0
}

// bindTable installs the global game table.
func (a *agent) bindTable(l *lua.State) {
	t := a.t
	fns := []lua.RegistryFunction{
		{Name: "state_len", Function: func(l *lua.State) int {
			l.PushInteger(t.StateLen())
			return 1
		}},
		{Name: "state", Function: func(l *lua.State) int {
			v, err := t.IndexState(lua.CheckInteger(l, 1))
			if err != nil {
				a.throw(l, err)
				return 0
			}
			push(l, v)
			return 1
		}},
		{Name: "state_at", Function: func(l *lua.State) int {
			lua.CheckAny(l, 1)
			v, err := t.KeyState(toGo(l, 1))
			if err != nil {
				a.throw(l, err)
				return 0
			}
			push(l, v)
			return 1
		}},
		{Name: "dup_state", Function: func(l *lua.State) int {
			push(l, t.DupState())
			return 1
		}},
		{Name: "state_keys", Function: func(l *lua.State) int {
			push(l, t.StateKeys())
			return 1
		}},
		{Name: "game_over", Function: func(l *lua.State) int {
			l.PushBoolean(t.GameOver())
			return 1
		}},
		{Name: "min_turn_moves", Function: func(l *lua.State) int {
			n, ok := t.MinTurnMoves()
			pushOptional(l, n, ok)
			return 1
		}},
		{Name: "max_turn_moves", Function: func(l *lua.State) int {
			n, ok := t.MaxTurnMoves()
			pushOptional(l, n, ok)
			return 1
		}},
		{Name: "turn_moves", Function: func(l *lua.State) int {
			l.PushInteger(t.TurnMoves())
			return 1
		}},
		{Name: "my_turn", Function: func(l *lua.State) int {
			l.PushBoolean(t.MyTurn())
			return 1
		}},
		{Name: "legal_moves", Function: func(l *lua.State) int {
			moves, err := t.LegalMoves()
			if err != nil {
				a.throw(l, err)
				return 0
			}
			ids := lo.Keys(moves)
			slices.Sort(ids)
			l.NewTable()
			for i, id := range ids {
				l.NewTable()
				l.PushInteger(int(id))
				l.SetField(-2, "id")
				push(l, moves[id])
				l.SetField(-2, "move")
				l.RawSetInt(-2, i+1)
			}
			return 1
		}},
		{Name: "apply_move", Function: func(l *lua.State) int {
			id := lua.CheckInteger(l, 1)
			if err := t.ApplyMove(arena.MoveID(id)); err != nil {
				a.throw(l, err)
			}
			return 0
		}},
	}

	l.NewTable()
	lua.SetFunctions(l, fns, 0)
	l.PushInteger(t.Seat())
	l.SetField(-2, "seat")
	l.PushInteger(t.Seats())
	l.SetField(-2, "seats")
	l.PushString(t.GameName())
	l.SetField(-2, "name")
	l.SetGlobal("game")
}

func pushOptional(l *lua.State, n int, ok bool) {
	if !ok {
		l.PushNil()
		return
	}
	l.PushInteger(n)
}

// push converts an engine value to Lua. Sequences become one-based arrays.
func push(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case []byte:
		l.PushString(string(x))
	case int:
		l.PushInteger(x)
	case int64:
		l.PushInteger(int(x))
	case float64:
		l.PushNumber(x)
	case *arena.Vector:
		pushArray(l, x.Values())
	case *arena.SafeArray:
		pushArray(l, x.Values())
	case []any:
		pushArray(l, x)
	case map[string]any:
		l.NewTable()
		for k, e := range x {
			push(l, e)
			l.SetField(-2, k)
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			values := make([]any, rv.Len())
			for i := range values {
				values[i] = rv.Index(i).Interface()
			}
			pushArray(l, values)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
			l.PushInteger(int(rv.Convert(reflect.TypeOf(0)).Int()))
		case reflect.Float32:
			l.PushNumber(rv.Float())
		default:
			l.PushString(fmt.Sprint(v))
		}
	}
}

func pushArray(l *lua.State, values []any) {
	l.NewTable()
	for i, e := range values {
		push(l, e)
		l.RawSetInt(-2, i+1)
	}
}

// toGo converts the Lua value at index. Tables with keys 1..n become []any,
// other tables map[string]any; integral numbers become int.
func toGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		f, _ := l.ToNumber(index)
		if math.Mod(f, 1) == 0 {
			return int(f)
		}
		return f
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	}
	return nil
}

func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray, maxIndex, count := true, 0, 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if n, ok := l.ToInteger(-2); ok && l.TypeOf(-2) == lua.TypeNumber && n > 0 {
				count++
				maxIndex = max(maxIndex, n)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && maxIndex == count {
		out := make([]any, 0, count)
		for i := 1; i <= count; i++ {
			l.RawGetInt(index, i)
			out = append(out, toGo(l, -1))
			l.Pop(1)
		}
		return out
	}

	out := make(map[string]any)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = toGo(l, -1)
		}
		l.Pop(1)
	}
	return out
}
