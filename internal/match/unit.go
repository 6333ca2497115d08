package match

import (
	"fmt"

	"github.com/MJE43/agent-arena/internal/arena"
	"github.com/MJE43/agent-arena/internal/games"
	"github.com/MJE43/agent-arena/internal/scripting"
	"github.com/MJE43/agent-arena/internal/scripting/luaagent"
	"github.com/MJE43/agent-arena/internal/store"
)

// Unit is a game or an agent the runner can instantiate. Builtin units name
// a registry entry in Source; script units carry the script.
type Unit struct {
	Name   string
	Kind   string
	Source string
}

// GameUnit describes a stored game.
func GameUnit(g *store.Game) Unit {
	return Unit{Name: g.Name, Kind: g.Kind, Source: g.Source}
}

// AgentUnit describes a stored agent.
func AgentUnit(a *store.Agent) Unit {
	return Unit{Name: a.Name, Kind: a.Kind, Source: a.Source}
}

// agentBuilder returns the factory for one run.
type agentBuilder func(seed uint64) (arena.AgentFactory, error)

// gameBuilder returns a fresh game for one run.
type gameBuilder func(factories []arena.AgentFactory) (arena.Game, error)

// resolvedGame is a game unit checked once and instantiated per run.
type resolvedGame struct {
	// id is the stored game's ID, empty for unstored units.
	id    string
	name  string
	seats int
	build gameBuilder
}

func (r *Runner) resolveAgent(u Unit) (agentBuilder, error) {
	opts := scripting.Options{Name: u.Name, Timeout: r.opts.ScriptTimeout, Logger: r.logger}
	switch u.Kind {
	case store.KindBuiltin:
		if _, err := games.LookupAgent(u.Source, 0); err != nil {
			return nil, err
		}
		return func(seed uint64) (arena.AgentFactory, error) {
			return games.LookupAgent(u.Source, seed)
		}, nil
	case store.KindJS:
		f, err := scripting.NewAgentFactory(u.Source, opts)
		if err != nil {
			return nil, err
		}
		return func(uint64) (arena.AgentFactory, error) { return f, nil }, nil
	case store.KindLua:
		f, err := luaagent.NewFactory(u.Source, opts)
		if err != nil {
			return nil, err
		}
		return func(uint64) (arena.AgentFactory, error) { return f, nil }, nil
	}
	return nil, fmt.Errorf("match: agent %q has unknown kind %q", u.Name, u.Kind)
}

// resolveGame checks a game unit. seats is the declared seat count of a
// script game; zero accepts any number of agents.
func (r *Runner) resolveGame(u Unit, seats int) (*resolvedGame, error) {
	switch u.Kind {
	case store.KindBuiltin:
		kind, ok := games.Lookup(u.Source)
		if !ok {
			return nil, fmt.Errorf("match: unknown game kind %q", u.Source)
		}
		return &resolvedGame{
			name:  u.Name,
			seats: kind.Seats,
			build: func(f []arena.AgentFactory) (arena.Game, error) { return kind.New(f...), nil },
		}, nil
	case store.KindJS:
		if err := scripting.Validate(u.Name, u.Source); err != nil {
			return nil, err
		}
		opts := scripting.Options{Name: u.Name, Timeout: r.opts.ScriptTimeout, Logger: r.logger}
		return &resolvedGame{
			name:  u.Name,
			seats: seats,
			build: func(f []arena.AgentFactory) (arena.Game, error) {
				return scripting.NewGame(u.Source, f, opts)
			},
		}, nil
	}
	return nil, fmt.Errorf("match: game %q has unknown kind %q", u.Name, u.Kind)
}

// CheckGame reports whether a game unit can be played: a registered kind or
// a script that compiles.
func (r *Runner) CheckGame(u Unit) error {
	_, err := r.resolveGame(u, 0)
	return err
}

// CheckAgent reports whether an agent unit can be instantiated.
func (r *Runner) CheckAgent(u Unit) error {
	_, err := r.resolveAgent(u)
	return err
}
