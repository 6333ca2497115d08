package games

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/MJE43/agent-arena/internal/arena"
)

// scripted returns two factories that play the given columns in order,
// alternating seats.
func scripted(cols ...int) []arena.AgentFactory {
	next := 0
	factory := func(t *arena.Table) arena.Agent {
		return arena.AgentFunc(func(*float64) error {
			col := cols[next]
			next++
			return t.ApplyMove(arena.MoveID(col))
		})
	}
	return []arena.AgentFactory{factory, factory}
}

func play(t *testing.T, cols ...int) (arena.Report, *ConnectFour) {
	t.Helper()
	g := NewConnectFour(scripted(cols...)...)
	return arena.Run(g), g
}

func TestConnectFourWins(t *testing.T) {
	tests := []struct {
		name    string
		cols    []int
		outcome string
		winner  int
	}{
		{"vertical", []int{0, 1, 0, 1, 0, 1, 0}, "player 1 wins", 0},
		{"horizontal", []int{0, 0, 1, 1, 2, 2, 6, 3, 5, 3}, "player 2 wins", 1},
		{"diagonal", []int{0, 1, 1, 2, 2, 3, 2, 3, 3, 5, 3}, "player 1 wins", 0},
		{"anti-diagonal", []int{3, 2, 2, 1, 1, 0, 1, 0, 0, 6, 0}, "player 1 wins", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, _ := play(t, tt.cols...)
			if !rep.OK {
				t.Fatalf("run failed: %v\n%s", rep.Game.Fault, rep.Game.Trace)
			}
			if rep.Turns != len(tt.cols) {
				t.Errorf("turns = %d, want %d", rep.Turns, len(tt.cols))
			}
			if *rep.Game.Outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", *rep.Game.Outcome, tt.outcome)
			}
			if got := rep.Winners(); !reflect.DeepEqual(got, []int{tt.winner}) {
				t.Errorf("winners = %v", got)
			}
			loser := 1 - tt.winner
			if *rep.Agents[tt.winner].Outcome != "win" || *rep.Agents[loser].Outcome != "loss" {
				t.Errorf("agent outcomes = %q, %q", *rep.Agents[0].Outcome, *rep.Agents[1].Outcome)
			}
			if *rep.Agents[tt.winner].Score != 1 || *rep.Agents[loser].Score != 0 {
				t.Errorf("scores = %d, %d", *rep.Agents[0].Score, *rep.Agents[1].Score)
			}
		})
	}
}

func TestConnectFourDraw(t *testing.T) {
	cols := []int{
		5, 3, 2, 3, 1, 5, 3, 1, 0, 1, 4, 1, 2, 5, 0, 5, 6, 6, 2, 0, 6,
		0, 4, 2, 3, 0, 3, 4, 2, 3, 2, 6, 0, 4, 1, 1, 5, 4, 4, 5, 6, 6,
	}
	rep, _ := play(t, cols...)
	if !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	if *rep.Game.Outcome != "draw" {
		t.Fatalf("outcome = %q, want draw", *rep.Game.Outcome)
	}
	for seat, a := range rep.Agents {
		if *a.Outcome != "draw" || *a.Won {
			t.Errorf("seat %d: outcome %q won %v", seat, *a.Outcome, *a.Won)
		}
	}
	if len(rep.Winners()) != 0 {
		t.Errorf("draw has winners %v", rep.Winners())
	}

	board, ok := rep.Snapshot.(*arena.Vector)
	if !ok {
		t.Fatalf("snapshot = %T", rep.Snapshot)
	}
	if board.Len() != 42 {
		t.Fatalf("board has %d cells", board.Len())
	}
	if strings.Contains(RenderBoard(board.Values()), ".") {
		t.Error("full board renders an empty cell")
	}
}

func TestConnectFourIllegalMoves(t *testing.T) {
	tests := []struct {
		name   string
		cols   []int
		move   arena.MoveID
		reason string
	}{
		{"column out of range", []int{9}, 9, "no such column"},
		{"negative column", []int{-1}, -1, "no such column"},
		{"full column", []int{0, 0, 0, 0, 0, 0, 0}, 0, "column full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, _ := play(t, tt.cols...)
			if rep.OK {
				t.Fatal("expected run to fail")
			}
			var illegal *arena.IllegalMoveError
			if !errors.As(rep.Game.Fault, &illegal) {
				t.Fatalf("fault = %v, want illegal move", rep.Game.Fault)
			}
			if illegal.Move != tt.move || illegal.Reason != tt.reason {
				t.Errorf("illegal move = %+v", illegal)
			}
			if rep.Game.Outcome != nil {
				t.Error("failed run kept an outcome")
			}
		})
	}
}

func TestConnectFourNeedsTwoSeats(t *testing.T) {
	rep := arena.Run(NewConnectFour(FirstLegal))
	if rep.OK {
		t.Fatal("one-seat game succeeded")
	}
	if rep.FailedIn != arena.PhaseSetup {
		t.Errorf("failedIn = %s", rep.FailedIn)
	}
	if !strings.Contains(rep.Game.FaultMessage(), "needs 2 seats") {
		t.Errorf("fault = %v", rep.Game.Fault)
	}
}

func TestConnectFourTableView(t *testing.T) {
	var (
		firstMoves arena.Moves
		cellAfter  any
		keys       int
	)
	observer := func(tb *arena.Table) arena.Agent {
		return arena.AgentFunc(func(*float64) error {
			if firstMoves == nil {
				moves, err := tb.LegalMoves()
				if err != nil {
					return err
				}
				firstMoves = moves
				keys = len(tb.StateKeys())
			}
			return FirstLegal(tb).TakeTurn(nil)
		})
	}
	second := func(tb *arena.Table) arena.Agent {
		return arena.AgentFunc(func(*float64) error {
			if cellAfter == nil {
				v, err := tb.KeyState([2]int{0, 0})
				if err != nil {
					return err
				}
				cellAfter = v
			}
			return FirstLegal(tb).TakeTurn(nil)
		})
	}

	rep := arena.Run(NewConnectFour(observer, second))
	if !rep.OK {
		t.Fatalf("run failed: %v", rep.Game.Fault)
	}
	if len(firstMoves) != 7 {
		t.Errorf("opening has %d legal moves", len(firstMoves))
	}
	if firstMoves[3] != [2]int{0, 3} {
		t.Errorf("move 3 lands at %v", firstMoves[3])
	}
	if keys != 42 {
		t.Errorf("state has %d keys", keys)
	}
	if cellAfter != TokenFirst {
		t.Errorf("cell (0,0) after first move = %v", cellAfter)
	}
}

func TestRandomAgentsReplay(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		a := arena.Run(NewConnectFour(Random(seed), Random(seed)))
		b := arena.Run(NewConnectFour(Random(seed), Random(seed)))
		if !a.OK || !b.OK {
			t.Fatalf("seed %d failed: %v / %v", seed, a.Game.Fault, b.Game.Fault)
		}
		if *a.Game.Outcome != *b.Game.Outcome || a.Turns != b.Turns {
			t.Errorf("seed %d did not replay: %q in %d vs %q in %d",
				seed, *a.Game.Outcome, a.Turns, *b.Game.Outcome, b.Turns)
		}
		boardA := a.Snapshot.(*arena.Vector).Values()
		boardB := b.Snapshot.(*arena.Vector).Values()
		if !reflect.DeepEqual(boardA, boardB) {
			t.Errorf("seed %d boards differ", seed)
		}
	}
}

func TestRegistry(t *testing.T) {
	kind, ok := Lookup(ConnectFourName)
	if !ok {
		t.Fatal("connect4 not registered")
	}
	if kind.Seats != 2 {
		t.Errorf("seats = %d", kind.Seats)
	}
	if _, ok := kind.New(FirstLegal, FirstLegal).(*ConnectFour); !ok {
		t.Error("kind.New did not build a ConnectFour")
	}

	names := make([]string, 0)
	for _, a := range ListAgents() {
		names = append(names, a.Name)
	}
	if !reflect.DeepEqual(names, []string{"first", "random"}) {
		t.Errorf("agents = %v", names)
	}
	if _, err := LookupAgent("random", 7); err != nil {
		t.Errorf("LookupAgent(random): %v", err)
	}
	if _, err := LookupAgent("nope", 0); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestFloats(t *testing.T) {
	a := Floats("server", "client", 42, 0, 16)
	b := Floats("server", "client", 42, 0, 16)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seeds gave different floats")
	}
	for i, f := range a {
		if f < 0 || f >= 1 {
			t.Errorf("float %d out of range: %f", i, f)
		}
	}
	if reflect.DeepEqual(a, Floats("server", "client", 43, 0, 16)) {
		t.Error("different nonce gave the same floats")
	}
	// Starting four bytes in skips exactly one float.
	if shifted := Floats("server", "client", 42, 4, 15); !reflect.DeepEqual(shifted, a[1:]) {
		t.Error("cursor offset did not line up with the stream")
	}
}

func TestRenderBoard(t *testing.T) {
	cells := make([]any, 42)
	for i := range cells {
		cells[i] = TokenEmpty
	}
	cells[0] = TokenFirst
	cells[1] = TokenSecond
	out := RenderBoard(cells)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 7 {
		t.Fatalf("rendered %d lines", len(lines))
	}
	if lines[5] != "| X O . . . . . |" {
		t.Errorf("bottom row = %q", lines[5])
	}
}
