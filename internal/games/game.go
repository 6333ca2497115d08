// Package games holds the built-in game kinds and agents: Connect Four,
// a first-legal-move agent and a seeded random agent.
package games

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/MJE43/agent-arena/internal/arena"
)

// Kind describes a game that can be instantiated by name.
type Kind struct {
	// Name is the registry key, e.g. "connect4".
	Name string `json:"name"`
	// Title is the human-readable name.
	Title string `json:"title"`
	// Seats is the number of agents a game of this kind takes.
	Seats int `json:"seats"`
	// New builds a fresh game with one factory per seat.
	New func(factories ...arena.AgentFactory) arena.Game `json:"-"`
}

// AgentKind describes a built-in agent.
type AgentKind struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// New builds the agent's factory. seed only matters to randomized agents.
	New func(seed uint64) arena.AgentFactory `json:"-"`
}

var (
	mu     sync.RWMutex
	kinds  = make(map[string]Kind)
	agents = make(map[string]AgentKind)
)

// Register adds a game kind to the registry, replacing one of the same name.
func Register(k Kind) {
	mu.Lock()
	defer mu.Unlock()
	kinds[k.Name] = k
}

// Lookup retrieves a game kind by name.
func Lookup(name string) (Kind, bool) {
	mu.RLock()
	defer mu.RUnlock()
	k, ok := kinds[name]
	return k, ok
}

// List returns every registered game kind ordered by name.
func List() []Kind {
	mu.RLock()
	defer mu.RUnlock()
	out := lo.Values(kinds)
	slices.SortFunc(out, func(a, b Kind) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// RegisterAgent adds a built-in agent to the registry.
func RegisterAgent(a AgentKind) {
	mu.Lock()
	defer mu.Unlock()
	agents[a.Name] = a
}

// LookupAgent builds the factory of the built-in agent called name.
func LookupAgent(name string, seed uint64) (arena.AgentFactory, error) {
	mu.RLock()
	a, ok := agents[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("games: unknown built-in agent %q", name)
	}
	return a.New(seed), nil
}

// ListAgents returns every built-in agent ordered by name.
func ListAgents() []AgentKind {
	mu.RLock()
	defer mu.RUnlock()
	out := lo.Values(agents)
	slices.SortFunc(out, func(a, b AgentKind) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func init() {
	Register(Kind{
		Name:  ConnectFourName,
		Title: "Connect Four",
		Seats: 2,
		New: func(factories ...arena.AgentFactory) arena.Game {
			return NewConnectFour(factories...)
		},
	})
	RegisterAgent(AgentKind{
		Name:        "first",
		Description: "always plays the legal move with the lowest id",
		New:         func(uint64) arena.AgentFactory { return FirstLegal },
	})
	RegisterAgent(AgentKind{
		Name:        "random",
		Description: "plays a uniformly random legal move from a seeded stream",
		New:         Random,
	})
}
