package arena

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// countGame is a counter every seat bumps in turn until it reaches target.
type countGame struct {
	Base
	target int
	log    *[]string
}

func newCountGame(target int, factories ...AgentFactory) *countGame {
	return &countGame{Base: NewBase(factories...), target: target}
}

func (g *countGame) record(event string) {
	if g.log != nil {
		*g.log = append(*g.log, event)
	}
}

func (g *countGame) BeforeAgentsReady() error {
	g.record("before ready")
	state, err := VectorFromSlice(ScalarKinds, []any{0})
	if err != nil {
		return err
	}
	g.SetState(state)
	return g.SetKey("count", 0)
}

func (g *countGame) AfterAgentsReady() error {
	g.record("after ready")
	g.SetTurnBounds(1, 1)
	return nil
}

func (g *countGame) BeforeAgentsFinish() error {
	g.record("before finish")
	return nil
}

func (g *countGame) LegalMoves() (Moves, error) {
	return Moves{0: "increment"}, nil
}

func (g *countGame) ApplyMove(id MoveID) error {
	if id != 0 {
		return NewIllegalMove(id, "only 0 is legal")
	}
	count, _ := g.Vector().At(0)
	n := count.(int) + 1
	if err := g.Vector().Set(0, n); err != nil {
		return err
	}
	if n >= g.target {
		g.SetGameOver(true)
	}
	g.SetNextSeat((g.NextSeat() + 1) % g.Seats())
	return nil
}

func (g *countGame) Finalize(game *GameResult, agents []*AgentResult) error {
	g.record("finalize")
	count, _ := g.Vector().At(0)
	g.Persist(g.Vector())
	if err := game.SetOutcome(fmt.Sprintf("reached %d", count)); err != nil {
		return err
	}
	last := (g.NextSeat() + g.Seats() - 1) % g.Seats()
	for i, a := range agents {
		if err := a.SetWon(i == last); err != nil {
			return err
		}
	}
	return nil
}

// moveAgent makes the given number of moves per turn.
func moveAgent(moves int) AgentFactory {
	return func(t *Table) Agent {
		return AgentFunc(func(*float64) error {
			for i := 0; i < moves; i++ {
				if err := t.ApplyMove(0); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

func TestRunCompletes(t *testing.T) {
	g := newCountGame(5, moveAgent(1), moveAgent(1))
	rep := Run(g)

	if !rep.OK {
		t.Fatalf("run failed: %v\n%s", rep.Game.Fault, rep.Game.Trace)
	}
	if rep.Phase != PhaseDone || rep.FailedIn != "" {
		t.Errorf("phase = %s, failedIn = %q", rep.Phase, rep.FailedIn)
	}
	if rep.Game.Outcome == nil || *rep.Game.Outcome != "reached 5" {
		t.Errorf("outcome = %v", rep.Game.Outcome)
	}
	if rep.Turns != 5 {
		t.Errorf("turns = %d, want 5", rep.Turns)
	}
	if got := rep.Winners(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("winners = %v, want [0]", got)
	}
	snap, ok := rep.Snapshot.(*Vector)
	if !ok {
		t.Fatalf("snapshot = %T, want *Vector", rep.Snapshot)
	}
	_ = snap.Set(0, -1)
	if v, _ := g.Vector().At(0); v != 5 {
		t.Errorf("snapshot aliases game state, state now %v", v)
	}
	if g.Phase() != PhaseDone {
		t.Errorf("game phase = %s", g.Phase())
	}
}

type lifecycleAgent struct {
	name string
	log  *[]string
	t    *Table
}

func (a *lifecycleAgent) Prepare() error {
	*a.log = append(*a.log, a.name+" prepare")
	return nil
}

func (a *lifecycleAgent) TakeTurn(*float64) error {
	*a.log = append(*a.log, a.name+" turn")
	return a.t.ApplyMove(0)
}

func (a *lifecycleAgent) Finish() error {
	*a.log = append(*a.log, a.name+" finish")
	return nil
}

func TestRunLifecycleOrder(t *testing.T) {
	var log []string
	agent := func(name string) AgentFactory {
		return func(t *Table) Agent { return &lifecycleAgent{name: name, log: &log, t: t} }
	}
	g := newCountGame(3, agent("a"), agent("b"))
	g.log = &log

	rep := Run(g)
	if !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	want := []string{
		"before ready", "a prepare", "b prepare", "after ready",
		"a turn", "b turn", "a turn",
		"before finish", "a finish", "b finish", "finalize",
	}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("lifecycle order:\n got %v\nwant %v", log, want)
	}
}

func TestRunEnforcesTurnBounds(t *testing.T) {
	tests := []struct {
		name   string
		moves  int
		bound  Bound
		substr string
	}{
		{"too few", 0, BoundMin, "requires at least 1"},
		{"too many", 2, BoundMax, "prohibits more than 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newCountGame(10, moveAgent(tt.moves), moveAgent(1))
			rep := Run(g)

			if rep.OK {
				t.Fatal("expected run to fail")
			}
			var fault *AgentMoveFaultError
			if !errors.As(rep.Game.Fault, &fault) {
				t.Fatalf("fault = %v, want *AgentMoveFaultError", rep.Game.Fault)
			}
			if fault.Bound != tt.bound || fault.Seat != 0 || fault.Actual != tt.moves {
				t.Errorf("fault = %+v", fault)
			}
			if msg := rep.Game.FaultMessage(); !strings.Contains(msg, tt.substr) {
				t.Errorf("fault message %q missing %q", msg, tt.substr)
			}
			if rep.Game.Outcome != nil {
				t.Errorf("failed run has outcome %q", *rep.Game.Outcome)
			}
			if rep.Game.Trace == "" {
				t.Error("failed run has no trace")
			}
			if rep.FailedIn != PhasePlaying || rep.Phase != PhaseFailed {
				t.Errorf("phase = %s, failedIn = %s", rep.Phase, rep.FailedIn)
			}
		})
	}
}

type abstractGame struct {
	Base
	UnimplementedRules
}

func (g *abstractGame) BeforeAgentsReady() error {
	g.SetTurnBounds(1, 1)
	return nil
}

func TestRunCapturesUnsupportedOperation(t *testing.T) {
	g := &abstractGame{Base: NewBase(moveAgent(1))}
	rep := Run(g)

	if rep.OK {
		t.Fatal("expected run to fail")
	}
	var unsupported *UnsupportedOperationError
	if !errors.As(rep.Game.Fault, &unsupported) {
		t.Fatalf("fault = %v, want *UnsupportedOperationError", rep.Game.Fault)
	}
	if unsupported.Op != "ApplyMove" {
		t.Errorf("op = %q", unsupported.Op)
	}
	if rep.Game.Trace == "" {
		t.Error("failed run has no trace")
	}
}

func TestUnimplementedAgentFails(t *testing.T) {
	type lazy struct{ UnimplementedAgent }
	g := newCountGame(1, func(*Table) Agent { return lazy{} })
	rep := Run(g)
	if !errors.Is(rep.Game.Fault, ErrUnsupportedOperation) {
		t.Fatalf("fault = %v, want unsupported operation", rep.Game.Fault)
	}
	if rep.FailedIn != PhaseSetup {
		t.Errorf("failedIn = %s, want setup", rep.FailedIn)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	g := newCountGame(3, func(*Table) Agent {
		return AgentFunc(func(*float64) error { panic("boom") })
	})
	rep := Run(g)

	if rep.OK {
		t.Fatal("expected run to fail")
	}
	var pe *PanicError
	if !errors.As(rep.Game.Fault, &pe) {
		t.Fatalf("fault = %v, want *PanicError", rep.Game.Fault)
	}
	if pe.Value != "boom" {
		t.Errorf("panic value = %v", pe.Value)
	}
	if rep.Game.Trace != pe.Stack || pe.Stack == "" {
		t.Error("trace should hold the panic stack")
	}
}

func TestTableRejectsOutOfTurnMoves(t *testing.T) {
	var tables []*Table
	capture := func(t *Table) Agent {
		tables = append(tables, t)
		return AgentFunc(func(*float64) error { return t.ApplyMove(0) })
	}
	var outOfTurn, duringSetup error
	cheater := func(tb *Table) Agent {
		duringSetup = tb.ApplyMove(0)
		return AgentFunc(func(*float64) error {
			outOfTurn = tables[0].ApplyMove(0)
			return tb.ApplyMove(0)
		})
	}

	rep := Run(newCountGame(2, capture, cheater))
	if !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	if !errors.Is(duringSetup, ErrOutOfTurn) {
		t.Errorf("move during setup: %v", duringSetup)
	}
	if !errors.Is(outOfTurn, ErrOutOfTurn) {
		t.Errorf("move for another seat: %v", outOfTurn)
	}
	if !errors.Is(tables[0].ApplyMove(0), ErrOutOfTurn) {
		t.Error("move after the run was accepted")
	}
}

func TestIllegalMoveFailsRun(t *testing.T) {
	g := newCountGame(3, func(t *Table) Agent {
		return AgentFunc(func(*float64) error { return t.ApplyMove(7) })
	})
	rep := Run(g)
	var illegal *IllegalMoveError
	if !errors.As(rep.Game.Fault, &illegal) || illegal.Move != 7 {
		t.Fatalf("fault = %v, want illegal move 7", rep.Game.Fault)
	}
}

func TestRunTurnLimit(t *testing.T) {
	rep := Run(newCountGame(100, moveAgent(1)), WithMaxTurns(4))
	if !errors.Is(rep.Game.Fault, ErrTurnLimit) {
		t.Fatalf("fault = %v, want turn limit", rep.Game.Fault)
	}
	if rep.Turns != 4 {
		t.Errorf("turns = %d, want 4", rep.Turns)
	}
}

func TestRunRejectsReuseAndEmptyGames(t *testing.T) {
	g := newCountGame(1, moveAgent(1))
	if rep := Run(g); !rep.OK {
		t.Fatalf("first run failed: %v", rep.Game.Fault)
	}
	if rep := Run(g); !errors.Is(rep.Game.Fault, ErrGameReused) {
		t.Errorf("second run: %v", rep.Game.Fault)
	}

	if rep := Run(newCountGame(1)); !errors.Is(rep.Game.Fault, ErrNoSeats) {
		t.Errorf("no seats: %v", rep.Game.Fault)
	}
	if rep := Run(nil); rep.OK {
		t.Error("nil game succeeded")
	}
	var typedNil *countGame
	if rep := Run(typedNil); rep.OK {
		t.Error("nil game pointer succeeded")
	}
}

// rewardGame hands the acting seat the number of moves made so far.
type rewardGame struct {
	countGame
}

func (g *rewardGame) ApplyMove(id MoveID) error {
	if err := g.countGame.ApplyMove(id); err != nil {
		return err
	}
	count, _ := g.Vector().At(0)
	g.SetReward(float64(count.(int)))
	return nil
}

func TestRewardReachesNextTurn(t *testing.T) {
	var rewards []*float64
	g := &rewardGame{countGame: *newCountGame(3, func(t *Table) Agent {
		return AgentFunc(func(r *float64) error {
			rewards = append(rewards, r)
			return t.ApplyMove(0)
		})
	})}

	if rep := Run(g); !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	if len(rewards) != 3 {
		t.Fatalf("got %d turns", len(rewards))
	}
	if rewards[0] != nil {
		t.Errorf("first turn reward = %v, want nil", *rewards[0])
	}
	if rewards[1] == nil || *rewards[1] != 1 || rewards[2] == nil || *rewards[2] != 2 {
		t.Errorf("rewards = %v, %v", rewards[1], rewards[2])
	}
}

type keyGame struct {
	countGame
	sealedErr error
}

func (g *keyGame) BeforeAgentsReady() error {
	state, err := VectorOfSize(ScalarKinds, 4, 0)
	if err != nil {
		return err
	}
	g.SetState(state)
	for i, key := range []any{[2]int{0, 0}, [2]int{0, 1}, []int{1, 0}, []any{1.0, 1.0}} {
		if err := g.SetKey(key, i); err != nil {
			return err
		}
	}
	return nil
}

func (g *keyGame) ApplyMove(id MoveID) error {
	g.sealedErr = g.SetKey("late", 0)
	g.SetGameOver(true)
	return nil
}

func (g *keyGame) Finalize(*GameResult, []*AgentResult) error { return nil }

func TestStateKeysNormalizeAndSeal(t *testing.T) {
	var lookups []int
	g := &keyGame{countGame: *newCountGame(1, func(tb *Table) Agent {
		return AgentFunc(func(*float64) error {
			for _, key := range []any{[]any{0, 1}, [2]float64{1, 1}, []int{1, 0}} {
				_, err := tb.KeyState(key)
				if err != nil {
					return err
				}
				i, _ := tb.b.Key(key)
				lookups = append(lookups, i)
			}
			return tb.ApplyMove(0)
		})
	})}

	if rep := Run(g); !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	if !reflect.DeepEqual(lookups, []int{1, 3, 2}) {
		t.Errorf("key lookups = %v, want [1 3 2]", lookups)
	}
	if !errors.Is(g.sealedErr, ErrKeysSealed) {
		t.Errorf("SetKey after setup: %v", g.sealedErr)
	}
}

// aliasGame keeps its move descriptions and state key in plain Go slices
// and maps it never expects an agent to touch.
type aliasGame struct {
	countGame
	moves Moves
}

func (g *aliasGame) BeforeAgentsReady() error {
	state, err := VectorFromSlice(ScalarKinds, []any{0})
	if err != nil {
		return err
	}
	g.SetState(state)
	return g.SetKey([]int{1, 2}, 0)
}

func (g *aliasGame) LegalMoves() (Moves, error) { return g.moves, nil }

func TestTableCopiesSlicesAndMaps(t *testing.T) {
	g := &aliasGame{
		countGame: *newCountGame(1, func(tb *Table) Agent {
			return AgentFunc(func(*float64) error {
				moves, err := tb.LegalMoves()
				if err != nil {
					return err
				}
				moves[0].([]int)[0] = -1
				moves[1].(map[string][]int)["to"][0] = -1
				moves[1].(map[string][]int)["from"] = []int{-1}
				tb.StateKeys()[0].([]int)[0] = -1
				return tb.ApplyMove(0)
			})
		}),
		moves: Moves{0: []int{3, 4}, 1: map[string][]int{"to": {5}}},
	}

	if rep := Run(g); !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	if !reflect.DeepEqual(g.moves[0], []int{3, 4}) {
		t.Errorf("moves[0] = %v, want [3 4]", g.moves[0])
	}
	if !reflect.DeepEqual(g.moves[1], map[string][]int{"to": {5}}) {
		t.Errorf("moves[1] = %v, want map[to:[5]]", g.moves[1])
	}
	if !reflect.DeepEqual(g.keyOrder[0], []int{1, 2}) {
		t.Errorf("keyOrder[0] = %v, want [1 2]", g.keyOrder[0])
	}
}

func TestResultFieldsFillOnce(t *testing.T) {
	var game GameResult
	if err := game.SetOutcome("draw"); err != nil {
		t.Fatal(err)
	}
	if err := game.SetOutcome("win"); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("second outcome: %v", err)
	}

	var agent AgentResult
	if err := agent.SetScore(3); err != nil {
		t.Fatal(err)
	}
	if err := agent.SetScore(4); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("second score: %v", err)
	}
	if *agent.Score != 3 {
		t.Errorf("score = %d", *agent.Score)
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	const runs = 16
	reports := make([]Report, runs)

	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i] = Run(newCountGame(i+1, moveAgent(1), moveAgent(1), moveAgent(1)))
		}(i)
	}
	wg.Wait()

	for i, rep := range reports {
		if !rep.OK {
			t.Errorf("run %d failed: %v", i, rep.Game.Fault)
			continue
		}
		if rep.Turns != i+1 {
			t.Errorf("run %d played %d turns", i, rep.Turns)
		}
		if want := fmt.Sprintf("reached %d", i+1); *rep.Game.Outcome != want {
			t.Errorf("run %d outcome %q", i, *rep.Game.Outcome)
		}
	}
}
