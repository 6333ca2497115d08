package arena

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MoveID identifies a move within one turn's legal-move mapping.
type MoveID int

// Moves maps move ids to game-defined descriptions. Ids are only meaningful
// for the turn in which the mapping was produced.
type Moves map[MoveID]any

// Phase is the orchestrator's lifecycle state for one run.
type Phase string

const (
	PhaseSetup     Phase = "setup"
	PhaseReady     Phase = "ready"
	PhasePlaying   Phase = "playing"
	PhaseFinishing Phase = "finishing"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Rules is what every concrete game implements.
type Rules interface {
	// LegalMoves returns the moves available to the seat about to act.
	// It must not change game state.
	LegalMoves() (Moves, error)
	// ApplyMove applies a move picked from the latest LegalMoves result. It
	// updates the state, and sets the game-over flag and the next seat as
	// the rules require. Unknown or stale ids should fail with an
	// IllegalMove error (see NewIllegalMove).
	ApplyMove(id MoveID) error
	// Finalize fills in the results once every agent has finished.
	Finalize(game *GameResult, agents []*AgentResult) error
}

// Game is a concrete game: Rules plus an embedded Base.
type Game interface {
	Rules
	base() *Base
}

// Optional hooks a game may implement. The orchestrator calls them when present.
type (
	// BeforeAgentsReadyHook runs before any agent's Prepare. It is the
	// place for state setup.
	BeforeAgentsReadyHook interface{ BeforeAgentsReady() error }
	// AfterAgentsReadyHook runs after every agent's Prepare.
	AfterAgentsReadyHook interface{ AfterAgentsReady() error }
	// BeforeAgentsFinishHook runs once the game is over, before any
	// agent's Finish.
	BeforeAgentsFinishHook interface{ BeforeAgentsFinish() error }
)

// Namer lets a game choose the name used in fault messages.
type Namer interface{ Name() string }

// UnimplementedRules can be embedded next to Base; every method fails with
// an UnsupportedOperation error until the game overrides it.
type UnimplementedRules struct{}

func (UnimplementedRules) LegalMoves() (Moves, error) {
	return nil, unsupported("LegalMoves")
}

func (UnimplementedRules) ApplyMove(MoveID) error {
	return unsupported("ApplyMove")
}

func (UnimplementedRules) Finalize(*GameResult, []*AgentResult) error {
	return unsupported("Finalize")
}

// Base holds the engine-owned part of a game: authoritative state, the key
// index, seats and turn bookkeeping. Concrete games embed it and mutate it
// only from their hooks and ApplyMove.
type Base struct {
	factories []AgentFactory
	state     Sequence
	keys      map[any]int
	keyOrder  []any
	sealed    bool

	minMoves, maxMoves int
	gameOver           bool
	nextSeat           int
	turnMoves          int
	reward             *float64
	snapshot           any

	phase  Phase
	active int
}

// NewBase returns a Base with one seat per factory, in seat order.
func NewBase(factories ...AgentFactory) Base {
	return Base{
		factories: factories,
		keys:      make(map[any]int),
		minMoves:  -1,
		maxMoves:  -1,
		active:    -1,
	}
}

func (b *Base) base() *Base { return b }

// Seats returns the number of seats.
func (b *Base) Seats() int { return len(b.factories) }

// Phase returns the run's current lifecycle phase.
func (b *Base) Phase() Phase { return b.phase }

// SetState installs the authoritative state container.
func (b *Base) SetState(s Sequence) { b.state = s }

// State returns the authoritative state container. Only the game should
// call it; agents read state through their Table.
func (b *Base) State() Sequence { return b.state }

// Vector returns the state as a *Vector, or nil when the game uses another
// container.
func (b *Base) Vector() *Vector {
	v, _ := b.state.(*Vector)
	return v
}

// SetKey maps key to a state position. Keys may be scalars, strings or
// fixed-size sequences of those (for example [2]int{row, col}). The index
// is sealed once every agent is ready.
func (b *Base) SetKey(key any, index int) error {
	if b.sealed {
		return errors.WithStack(ErrKeysSealed)
	}
	norm, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if b.keys == nil {
		b.keys = make(map[any]int)
	}
	if _, exists := b.keys[norm]; !exists {
		b.keyOrder = append(b.keyOrder, key)
	}
	b.keys[norm] = index
	return nil
}

// Key returns the state position for key.
func (b *Base) Key(key any) (int, bool) {
	norm, err := normalizeKey(key)
	if err != nil {
		return 0, false
	}
	i, ok := b.keys[norm]
	return i, ok
}

// SetTurnBounds declares how many moves an agent must make per turn.
// A negative bound is not enforced.
func (b *Base) SetTurnBounds(min, max int) {
	b.minMoves, b.maxMoves = min, max
}

// TurnBounds returns the declared bounds; the flags report whether each is set.
func (b *Base) TurnBounds() (min int, hasMin bool, max int, hasMax bool) {
	return b.minMoves, b.minMoves >= 0, b.maxMoves, b.maxMoves >= 0
}

// SetGameOver ends (or un-ends) play. The orchestrator checks it after every turn.
func (b *Base) SetGameOver(over bool) { b.gameOver = over }

// GameOver reports whether play has ended.
func (b *Base) GameOver() bool { return b.gameOver }

// SetNextSeat chooses the seat that takes the next turn.
func (b *Base) SetNextSeat(seat int) { b.nextSeat = seat }

// NextSeat returns the seat that takes the next turn.
func (b *Base) NextSeat() int { return b.nextSeat }

// TurnMoves returns the number of moves accepted during the current turn.
func (b *Base) TurnMoves() int { return b.turnMoves }

// SetReward sets the reward passed to the next seat's TakeTurn.
func (b *Base) SetReward(r float64) { b.reward = &r }

// Persist records an opaque snapshot returned to the host in Report.Snapshot.
func (b *Base) Persist(snapshot any) { b.snapshot = snapshot }

func gameName(g Game) string {
	if n, ok := g.(Namer); ok {
		return n.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", g), "*")
}

// normalizeKey turns key into a comparable map key so that [2]int{1, 2},
// []int{1, 2} and []any{1.0, 2.0} all address the same cell.
func normalizeKey(key any) (any, error) {
	switch KindOf(key) {
	case KindNumber:
		return numberKey(key), nil
	case KindNil, KindBool:
		return key, nil
	case KindText:
		return fmt.Sprintf("s:%s", key), nil
	}
	rv := reflect.ValueOf(key)
	if key != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		parts := make([]string, rv.Len())
		for i := range parts {
			part, err := normalizeKey(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			parts[i] = fmt.Sprintf("%v", part)
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	}
	return nil, typeViolation("StateKeyIndex", TextKinds, key)
}

func numberKey(v any) string {
	f, _ := toFloat(v)
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
