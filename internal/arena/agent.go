package arena

// Agent is a competitor bound to one seat for one run. The orchestrator calls
// Prepare once on every agent, TakeTurn once per turn the agent's seat owns,
// and Finish once after the game is over.
type Agent interface {
	// Prepare runs one-time setup. It may read state but must not move.
	Prepare() error
	// TakeTurn must submit between the game's minimum and maximum number of
	// moves through the agent's Table before returning. reward is nil unless
	// the game supplies a learning signal.
	TakeTurn(reward *float64) error
	// Finish is the agent's last chance to act. It must not move.
	Finish() error
}

// AgentFactory builds the agent for one seat, bound to the table it plays at.
type AgentFactory func(t *Table) Agent

// UnimplementedAgent can be embedded by agents; every method fails with an
// UnsupportedOperation error until the agent overrides it.
type UnimplementedAgent struct{}

func (UnimplementedAgent) Prepare() error { return unsupported("Prepare") }

func (UnimplementedAgent) TakeTurn(*float64) error { return unsupported("TakeTurn") }

func (UnimplementedAgent) Finish() error { return unsupported("Finish") }

// AgentFunc adapts a turn function into an Agent with no-op Prepare and Finish.
type AgentFunc func(reward *float64) error

func (f AgentFunc) Prepare() error { return nil }

func (f AgentFunc) TakeTurn(reward *float64) error { return f(reward) }

func (f AgentFunc) Finish() error { return nil }
