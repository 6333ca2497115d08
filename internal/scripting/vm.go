// Package scripting loads agents and games written in JavaScript. Each
// script instance runs in its own sandboxed goja runtime and reaches the
// engine only through the objects bound into it.
package scripting

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	pkgerrors "github.com/pkg/errors"

	"github.com/MJE43/agent-arena/internal/arena"
)

// DefaultTimeout bounds a single call into a script when Options.Timeout is zero.
const DefaultTimeout = time.Second

// ErrScriptTimeout is returned when a script call runs past its timeout.
var ErrScriptTimeout = errors.New("scripting: script timed out")

// Options tunes script execution.
type Options struct {
	// Name labels the script in errors and log lines.
	Name string
	// Timeout bounds every call into the script, top-level code included.
	Timeout time.Duration
	// Logger receives log() and console.log() output. Nil discards it.
	Logger *slog.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) name(fallback string) string {
	if o.Name == "" {
		return fallback
	}
	return o.Name
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Validate compiles src and reports syntax errors without running it.
func Validate(name, src string) error {
	_, err := compile(name, src)
	return err
}

func compile(name, src string) (*goja.Program, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("scripting: compile %s: %w", name, err)
	}
	return prog, nil
}

// vm wraps a goja runtime with sandbox restrictions and per-call timeouts.
// A vm belongs to one agent or game and is only used from the goroutine
// running that run.
type vm struct {
	rt      *goja.Runtime
	name    string
	timeout time.Duration
	logger  *slog.Logger

	// hostErr is the last error a bound Go function threw into the script
	// and hostVal the exception object carrying it. hostErr is reported
	// instead of the JS exception only when hostVal is what escaped.
	hostErr error
	hostVal *goja.Object
}

func newVM(name string, opts Options) *vm {
	v := &vm{
		rt:      goja.New(),
		name:    name,
		timeout: opts.timeout(),
		logger:  opts.logger().With("script", name),
	}
	v.injectGlobals()
	return v
}

// injectGlobals registers log and console.log and removes dangerous globals.
func (v *vm) injectGlobals() {
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		v.logger.Info(strings.Join(parts, " "))
		return goja.Undefined()
	}
	v.rt.Set("log", logFn)
	console := v.rt.NewObject()
	console.Set("log", logFn)
	v.rt.Set("console", console)

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		v.rt.Set(name, goja.Undefined())
	}
}

// run executes the script's top-level code.
func (v *vm) run(prog *goja.Program) error {
	_, err := v.guard(func() (goja.Value, error) { return v.rt.RunProgram(prog) })
	if err != nil {
		return fmt.Errorf("scripting: %s: %w", v.name, err)
	}
	return nil
}

// function returns the script-level function called name, if defined.
func (v *vm) function(name string) (goja.Callable, bool) {
	val := v.rt.Get(name)
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, false
	}
	return goja.AssertFunction(val)
}

func (v *vm) has(name string) bool {
	_, ok := v.function(name)
	return ok
}

// call invokes the script function called name. A missing function fails
// with an UnsupportedOperation error.
func (v *vm) call(name string, args ...any) (goja.Value, error) {
	fn, ok := v.function(name)
	if !ok {
		return nil, pkgerrors.WithStack(&arena.UnsupportedOperationError{Op: name})
	}
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = v.rt.ToValue(a)
	}
	out, err := v.guard(func() (goja.Value, error) { return fn(goja.Undefined(), jsArgs...) })
	if err != nil {
		return nil, fmt.Errorf("scripting: %s: %s(): %w", v.name, name, err)
	}
	return out, nil
}

// guard runs fn under the call timeout and maps script failures back to
// the Go errors that caused them where there is one.
func (v *vm) guard(fn func() (goja.Value, error)) (goja.Value, error) {
	v.hostErr, v.hostVal = nil, nil
	var (
		mu       sync.Mutex
		finished bool
	)
	timer := time.AfterFunc(v.timeout, func() {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			v.rt.Interrupt(ErrScriptTimeout)
		}
	})
	out, err := fn()
	mu.Lock()
	finished = true
	mu.Unlock()
	timer.Stop()
	v.rt.ClearInterrupt()
	hostErr, hostVal := v.hostErr, v.hostVal
	v.hostErr, v.hostVal = nil, nil
	if err == nil {
		return out, nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, fmt.Errorf("%w after %s", ErrScriptTimeout, v.timeout)
	}
	var ex *goja.Exception
	if hostErr != nil && errors.As(err, &ex) && ex.Value() == goja.Value(hostVal) {
		return nil, hostErr
	}
	return nil, err
}

// throw raises err inside the script. It must only be called from a Go
// function bound into the runtime.
func (v *vm) throw(err error) {
	obj := v.rt.NewGoError(err)
	v.hostErr, v.hostVal = err, obj
	panic(obj)
}

// toJS converts engine values into plain values the script can index:
// containers become arrays, byte slices become strings.
func toJS(val any) any {
	switch x := val.(type) {
	case nil:
		return nil
	case *arena.Vector:
		return toJSAll(x.Values())
	case *arena.SafeArray:
		return toJSAll(x.Values())
	case []byte:
		return string(x)
	case []any:
		return toJSAll(x)
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = toJS(rv.Index(i).Interface())
		}
		return out
	}
	return val
}

func toJSAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = toJS(v)
	}
	return out
}

// fromJS exports a script value into Go. Arrays come back as []any, which
// the containers accept, and integers as int64.
func fromJS(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

func optionalInt(n int, ok bool) any {
	if !ok {
		return nil
	}
	return n
}
