// Package match turns stored games and agents into runs: it instantiates
// the units, plays them through the arena, records metrics and persists
// the results.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/MJE43/agent-arena/internal/arena"
	"github.com/MJE43/agent-arena/internal/store"
)

// ErrNotAllowed is returned when an agent is not allowed to play a game.
var ErrNotAllowed = errors.New("match: agent not allowed for game")

// ErrSeats is returned when the number of agents does not fit the game.
var ErrSeats = errors.New("match: wrong number of agents")

// Options configures a Runner.
type Options struct {
	Logger *slog.Logger
	// MaxTurns fails runs that have not ended after this many turns. Zero
	// means no limit.
	MaxTurns int
	// ScriptTimeout bounds every call into a script agent or game.
	ScriptTimeout time.Duration
	// Parallelism bounds the runs a tournament plays at once. Zero uses
	// GOMAXPROCS.
	Parallelism int
}

// Runner plays matches. Its methods are safe for concurrent use.
type Runner struct {
	store  *store.Store
	opts   Options
	logger *slog.Logger
}

// New creates a runner. st may be nil for runs that are not persisted.
func New(st *store.Store, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Runner{store: st, opts: opts, logger: opts.Logger}
}

// Match is a stored run together with the report it was built from.
type Match struct {
	Result *store.Result `json:"result"`
	Report arena.Report  `json:"report"`
}

// PlayUnits runs one match without the store.
func (r *Runner) PlayUnits(ctx context.Context, game Unit, agents []Unit, seed uint64) (arena.Report, error) {
	g, err := r.resolveGame(game, 0)
	if err != nil {
		return arena.Report{}, err
	}
	builders := make([]agentBuilder, len(agents))
	for i, u := range agents {
		if builders[i], err = r.resolveAgent(u); err != nil {
			return arena.Report{}, err
		}
	}
	if err := checkSeats(g, len(agents)); err != nil {
		return arena.Report{}, err
	}
	return r.run(ctx, g, builders, seed)
}

// Play runs one match of a stored game between stored agents, in seat
// order, and saves the result.
func (r *Runner) Play(ctx context.Context, gameID string, agentIDs []string, seed uint64) (*Match, error) {
	g, builders, names, err := r.load(ctx, gameID, agentIDs)
	if err != nil {
		return nil, err
	}
	rep, err := r.run(ctx, g, builders, seed)
	if err != nil {
		return nil, err
	}
	res, err := store.NewResult(gameID, agentIDs, rep)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveResult(ctx, res); err != nil {
		return nil, err
	}
	for i := range res.Participants {
		res.Participants[i].AgentName = names[i]
	}
	return &Match{Result: res, Report: rep}, nil
}

// load resolves a stored game and agents, checking seats and permissions.
func (r *Runner) load(ctx context.Context, gameID string, agentIDs []string) (*resolvedGame, []agentBuilder, []string, error) {
	g, err := r.loadGame(ctx, gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkSeats(g, len(agentIDs)); err != nil {
		return nil, nil, nil, err
	}
	units, err := r.loadAgents(ctx, g, agentIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	builders := make([]agentBuilder, len(agentIDs))
	names := make([]string, len(agentIDs))
	for i, id := range agentIDs {
		builders[i], names[i] = units[id].build, units[id].name
	}
	return g, builders, names, nil
}

func (r *Runner) loadGame(ctx context.Context, gameID string) (*resolvedGame, error) {
	if r.store == nil {
		return nil, fmt.Errorf("match: runner has no store")
	}
	sg, err := r.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	g, err := r.resolveGame(GameUnit(sg), len(sg.Seats))
	if err != nil {
		return nil, err
	}
	g.id = sg.ID
	return g, nil
}

// agentUnit is a stored agent resolved for play.
type agentUnit struct {
	build agentBuilder
	name  string
}

// loadAgents resolves each distinct agent once, failing with ErrNotAllowed
// for agents the game does not allow.
func (r *Runner) loadAgents(ctx context.Context, g *resolvedGame, agentIDs []string) (map[string]agentUnit, error) {
	units := make(map[string]agentUnit)
	for _, id := range agentIDs {
		if _, ok := units[id]; ok {
			continue
		}
		a, err := r.store.GetAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		allowed, err := r.store.IsAllowed(ctx, g.id, id)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: agent %q, game %q", ErrNotAllowed, a.Name, g.name)
		}
		b, err := r.resolveAgent(AgentUnit(a))
		if err != nil {
			return nil, err
		}
		units[id] = agentUnit{build: b, name: a.Name}
	}
	return units, nil
}

func checkSeats(g *resolvedGame, n int) error {
	if n == 0 || (g.seats > 0 && n != g.seats) {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrSeats, g.name, g.seats, n)
	}
	return nil
}

// run builds the game and agents for one match and plays it.
func (r *Runner) run(ctx context.Context, g *resolvedGame, builders []agentBuilder, seed uint64) (arena.Report, error) {
	if err := ctx.Err(); err != nil {
		return arena.Report{}, err
	}
	factories := make([]arena.AgentFactory, len(builders))
	for i, b := range builders {
		f, err := b(seed)
		if err != nil {
			return arena.Report{}, err
		}
		factories[i] = f
	}
	game, err := g.build(factories)
	if err != nil {
		return arena.Report{}, err
	}

	start := time.Now()
	rep := arena.Run(game, arena.WithLogger(r.logger), arena.WithMaxTurns(r.opts.MaxTurns))
	elapsed := time.Since(start)

	status := "ok"
	if !rep.OK {
		status = "failed"
	}
	RunsTotal.WithLabelValues(g.name, status).Inc()
	RunTurns.Observe(float64(rep.Turns))
	RunDuration.Observe(elapsed.Seconds())
	r.logger.Info("match finished",
		"game", g.name, "status", status, "turns", rep.Turns, "duration", elapsed)
	return rep, nil
}
