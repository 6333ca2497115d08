package arena

import (
	"log/slog"
	"runtime/debug"

	"github.com/pkg/errors"
)

// Option configures a single Run.
type Option func(*runOptions)

type runOptions struct {
	logger   *slog.Logger
	maxTurns int
}

// WithLogger logs phase transitions at debug level and faults at warn level.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxTurns fails the run with ErrTurnLimit once n turns have been played
// without the game ending. Zero means no limit.
func WithMaxTurns(n int) Option {
	return func(o *runOptions) { o.maxTurns = n }
}

// runner carries the per-run bookkeeping. Nothing in it is shared between runs.
type runner struct {
	g      Game
	b      *Base
	name   string
	opts   runOptions
	agents []Agent
	game   *GameResult
	seats  []*AgentResult
	turns  int
}

// Run plays g to completion: it builds the agents, runs the lifecycle hooks,
// drives the turn loop until the game is over and asks the game to fill in
// the results. Every fault raised by game or agent code, including panics,
// is caught here and recorded in the report; Run itself never fails.
// Report.OK is true exactly when the run completed without a fault.
func Run(g Game, opts ...Option) Report {
	o := runOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil {
		r := &runner{opts: o, game: &GameResult{}}
		return r.report(PhaseSetup, errors.New("nil game"))
	}

	b, err := baseOf(g)
	if err != nil {
		r := &runner{opts: o, game: &GameResult{}}
		return r.report(PhaseSetup, err)
	}
	r := &runner{
		g:     g,
		b:     b,
		name:  gameName(g),
		opts:  o,
		game:  &GameResult{},
		seats: make([]*AgentResult, len(b.factories)),
	}
	for i := range r.seats {
		r.seats[i] = &AgentResult{}
	}
	if b.phase != "" {
		return r.report(b.phase, errors.WithStack(ErrGameReused))
	}

	err = r.guard(r.play)
	return r.report(b.phase, err)
}

// baseOf fetches the embedded Base, failing on a nil game pointer.
func baseOf(g Game) (b *Base, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: string(debug.Stack())}
		}
	}()
	return g.base(), nil
}

// guard runs fn and turns a panic into a *PanicError.
func (r *runner) guard(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

func (r *runner) enter(p Phase) {
	r.b.phase = p
	r.opts.logger.Debug("phase", "game", r.name, "phase", p, "turns", r.turns)
}

func (r *runner) play() error {
	// 1. Setup: state skeleton and one agent per seat.
	r.enter(PhaseSetup)
	if len(r.b.factories) == 0 {
		return errors.WithStack(ErrNoSeats)
	}
	if r.b.state == nil {
		r.b.state = NewScalarVector()
	}
	r.agents = make([]Agent, len(r.b.factories))
	for seat, factory := range r.b.factories {
		if factory == nil {
			return errors.Errorf("seat %d has no agent factory", seat)
		}
		agent := factory(&Table{g: r.g, b: r.b, seat: seat})
		if agent == nil {
			return errors.Errorf("agent factory for seat %d returned nil", seat)
		}
		r.agents[seat] = agent
	}

	// 2. Ready: hooks around every agent's Prepare.
	if h, ok := r.g.(BeforeAgentsReadyHook); ok {
		if err := h.BeforeAgentsReady(); err != nil {
			return errors.Wrap(err, "before agents ready")
		}
	}
	for seat, agent := range r.agents {
		if err := agent.Prepare(); err != nil {
			return errors.Wrapf(err, "seat %d prepare", seat)
		}
	}
	if h, ok := r.g.(AfterAgentsReadyHook); ok {
		if err := h.AfterAgentsReady(); err != nil {
			return errors.Wrap(err, "after agents ready")
		}
	}
	r.b.sealed = true
	r.enter(PhaseReady)

	// 3. Playing: one turn per iteration until the game says it is over.
	r.enter(PhasePlaying)
	for !r.b.gameOver {
		if err := r.turn(); err != nil {
			return err
		}
	}

	// 4. Finishing: hooks, every agent's Finish, then the results.
	r.enter(PhaseFinishing)
	if h, ok := r.g.(BeforeAgentsFinishHook); ok {
		if err := h.BeforeAgentsFinish(); err != nil {
			return errors.Wrap(err, "before agents finish")
		}
	}
	for seat, agent := range r.agents {
		if err := agent.Finish(); err != nil {
			return errors.Wrapf(err, "seat %d finish", seat)
		}
	}
	if err := r.g.Finalize(r.game, r.seats); err != nil {
		return errors.Wrap(err, "finalize")
	}
	return nil
}

func (r *runner) turn() error {
	if r.opts.maxTurns > 0 && r.turns >= r.opts.maxTurns {
		return errors.Wrapf(ErrTurnLimit, "%s did not end within %d turns", r.name, r.opts.maxTurns)
	}
	seat := r.b.nextSeat
	if seat < 0 || seat >= len(r.agents) {
		return errors.Errorf("%s chose seat %d, game has %d seats", r.name, seat, len(r.agents))
	}

	reward := r.b.reward
	r.b.reward = nil
	r.b.turnMoves = 0
	r.b.active = seat
	r.turns++
	err := r.agents[seat].TakeTurn(reward)
	r.b.active = -1
	if err != nil {
		return errors.Wrapf(err, "seat %d turn %d", seat, r.turns)
	}

	moves := r.b.turnMoves
	if r.b.minMoves >= 0 && moves < r.b.minMoves {
		return errors.WithStack(&AgentMoveFaultError{
			Game: r.name, Seat: seat, Bound: BoundMin, Limit: r.b.minMoves, Actual: moves,
		})
	}
	if r.b.maxMoves >= 0 && moves > r.b.maxMoves {
		return errors.WithStack(&AgentMoveFaultError{
			Game: r.name, Seat: seat, Bound: BoundMax, Limit: r.b.maxMoves, Actual: moves,
		})
	}
	return nil
}

func (r *runner) report(at Phase, err error) Report {
	rep := Report{Turns: r.turns}
	if err != nil {
		r.game.Outcome = nil
		r.game.Fault = err
		var pe *PanicError
		if errors.As(err, &pe) {
			r.game.Trace = pe.Stack
		} else {
			r.game.Trace = traceOf(err)
		}
		rep.Phase = PhaseFailed
		rep.FailedIn = at
		r.opts.logger.Warn("run failed", "game", r.name, "phase", at, "turns", r.turns, "error", err)
	} else {
		rep.OK = true
		rep.Phase = PhaseDone
	}
	if r.b != nil {
		if r.b.phase != "" {
			r.b.phase = rep.Phase
		}
		rep.Snapshot = snapshotOf(r.b.snapshot)
	}
	rep.Game = *r.game
	rep.Agents = make([]AgentResult, len(r.seats))
	for i, s := range r.seats {
		rep.Agents[i] = *s
	}
	return rep
}

func snapshotOf(v any) any {
	if vec, ok := v.(*Vector); ok {
		return vec.Clone()
	}
	return expose(v)
}
