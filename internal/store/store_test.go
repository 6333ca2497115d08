package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/agent-arena/internal/arena"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "arena_test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedGame(t *testing.T, s *Store) string {
	t.Helper()
	id, err := s.CreateGame(context.Background(), &Game{
		Name:   "Connect Four",
		Kind:   KindBuiltin,
		Source: "connect4",
		Seats:  []Seat{{Name: "first", Required: true}, {Name: "second", Required: true}},
	})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	return id
}

func seedAgent(t *testing.T, s *Store, name string) string {
	t.Helper()
	id, err := s.CreateAgent(context.Background(), &Agent{Name: name, Kind: KindBuiltin, Source: "first"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	return id
}

func ptr[T any](v T) *T { return &v }

// result builds a successful two-seat result won by winner, or drawn when
// winner is negative.
func result(gameID string, agents [2]string, winner int) *Result {
	r := &Result{GameID: gameID, OK: true, Outcome: ptr("done"), Turns: 7}
	for seat, id := range agents {
		r.Participants = append(r.Participants, Participant{
			AgentID: id,
			Seat:    seat,
			Won:     ptr(seat == winner),
		})
	}
	return r
}

func TestMigrateTwice(t *testing.T) {
	s := testStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestCreateAndGetGame(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := seedGame(t, s)

	got, err := s.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got.Name != "Connect Four" || got.Kind != KindBuiltin || got.Source != "connect4" {
		t.Errorf("game = %+v", got)
	}
	if len(got.Seats) != 2 || got.Seats[1].Position != 1 || got.Seats[1].Name != "second" || !got.Seats[1].Required {
		t.Errorf("seats = %+v", got.Seats)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	if _, err := s.GetGame(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetGame(missing) = %v, want ErrNotFound", err)
	}
}

func TestListGamesPaginates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, name := range []string{"c", "a", "b"} {
		if _, err := s.CreateGame(ctx, &Game{Name: name, Kind: KindJS}); err != nil {
			t.Fatal(err)
		}
	}

	games, total, err := s.ListGames(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if total != 3 || len(games) != 2 || games[0].Name != "a" || games[1].Name != "b" {
		t.Errorf("page 1 = %+v (total %d)", games, total)
	}
	games, _, err = s.ListGames(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 || games[0].Name != "c" {
		t.Errorf("page 2 = %+v", games)
	}
}

func TestDeleteGameInUse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	agentID := seedAgent(t, s, "bot")

	if err := s.AllowAgent(ctx, gameID, agentID); err != nil {
		t.Fatalf("AllowAgent: %v", err)
	}
	if err := s.DeleteGame(ctx, gameID); !errors.Is(err, ErrInUse) {
		t.Fatalf("DeleteGame with agents = %v, want ErrInUse", err)
	}

	other := seedGame(t, s)
	if err := s.DeleteGame(ctx, other); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if _, err := s.GetGame(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted game still found: %v", err)
	}
	if err := s.DeleteGame(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestAgentsForGame(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	b := seedAgent(t, s, "beta")
	a := seedAgent(t, s, "alpha")
	seedAgent(t, s, "gamma")

	for _, id := range []string{b, a, a} {
		if err := s.AllowAgent(ctx, gameID, id); err != nil {
			t.Fatalf("AllowAgent: %v", err)
		}
	}
	agents, err := s.AgentsForGame(ctx, gameID)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 2 || agents[0].Name != "alpha" || agents[1].Name != "beta" {
		t.Errorf("agents = %+v", agents)
	}
	if ok, _ := s.IsAllowed(ctx, gameID, a); !ok {
		t.Error("alpha should be allowed")
	}
	if err := s.AllowAgent(ctx, gameID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AllowAgent(missing) = %v", err)
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a, b := seedAgent(t, s, "a"), seedAgent(t, s, "b")

	outcome := "player 1 wins"
	rep := arena.Report{
		OK:       true,
		Game:     arena.GameResult{Outcome: &outcome},
		Agents:   []arena.AgentResult{{Score: ptr(1), Won: ptr(true)}, {Score: ptr(0), Won: ptr(false)}},
		Snapshot: []any{1, -1, 0},
		Phase:    arena.PhaseDone,
		Turns:    9,
	}
	r, err := NewResult(gameID, []string{a, b}, rep)
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	if err := s.SaveResult(ctx, r); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := s.GetResult(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !got.OK || *got.Outcome != outcome || got.Turns != 9 {
		t.Errorf("result = %+v", got)
	}
	if string(got.Snapshot) != "[1,-1,0]" {
		t.Errorf("snapshot = %s", got.Snapshot)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %+v", got.Participants)
	}
	p := got.Participants[0]
	if p.AgentName != "a" || *p.Score != 1 || !*p.Won || p.Outcome != nil {
		t.Errorf("seat 0 = %+v", p)
	}

	if _, err := s.GetResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResult(missing) = %v", err)
	}
	if _, err := NewResult(gameID, []string{a}, rep); err == nil {
		t.Error("NewResult accepted a seat mismatch")
	}
}

func TestFailedResultKeepsFault(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a := seedAgent(t, s, "a")

	rep := arena.Report{
		Game:     arena.GameResult{Fault: arena.NewIllegalMove(9, "no such column"), Trace: "trace"},
		Agents:   []arena.AgentResult{{}, {}},
		Phase:    arena.PhaseFailed,
		FailedIn: arena.PhasePlaying,
		Turns:    1,
	}
	r, err := NewResult(gameID, []string{a, a}, rep)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveResult(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetResult(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OK || got.Outcome != nil || got.Fault != "illegal move 9: no such column" || got.FailedIn != "playing" {
		t.Errorf("result = %+v", got)
	}
	if got.Snapshot != nil {
		t.Errorf("snapshot = %s", got.Snapshot)
	}
	if got.Participants[1].Won != nil {
		t.Error("failed run recorded a won flag")
	}
}

func TestListResultsNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a, b := seedAgent(t, s, "a"), seedAgent(t, s, "b")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		r := result(gameID, [2]string{a, b}, 0)
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}

	results, total, err := s.ListResults(ctx, gameID, 2, 0)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if total != 3 || len(results) != 2 {
		t.Fatalf("got %d results, total %d", len(results), total)
	}
	if results[0].ID != ids[2] || results[1].ID != ids[1] {
		t.Errorf("order = %s, %s", results[0].ID, results[1].ID)
	}
	if len(results[0].Participants) != 2 {
		t.Errorf("participants = %+v", results[0].Participants)
	}
}

func TestDeleteAgentInUse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a, b := seedAgent(t, s, "a"), seedAgent(t, s, "b")
	idle := seedAgent(t, s, "idle")

	if err := s.SaveResult(ctx, result(gameID, [2]string{a, b}, 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAgent(ctx, a); !errors.Is(err, ErrInUse) {
		t.Errorf("DeleteAgent(a) = %v, want ErrInUse", err)
	}
	if err := s.DeleteGame(ctx, gameID); !errors.Is(err, ErrInUse) {
		t.Errorf("DeleteGame with results = %v, want ErrInUse", err)
	}
	if err := s.AllowAgent(ctx, gameID, idle); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAgent(ctx, idle); err != nil {
		t.Fatalf("DeleteAgent(idle): %v", err)
	}
	if ok, _ := s.IsAllowed(ctx, gameID, idle); ok {
		t.Error("deleted agent still allowed")
	}
}

func TestLeaderboard(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a, b, c := seedAgent(t, s, "a"), seedAgent(t, s, "b"), seedAgent(t, s, "c")

	runs := []*Result{
		result(gameID, [2]string{a, b}, 0),
		result(gameID, [2]string{b, a}, 1),
		result(gameID, [2]string{a, c}, -1),
		result(gameID, [2]string{c, b}, 0),
	}
	failed := result(gameID, [2]string{b, c}, 0)
	failed.OK = false
	runs = append(runs, failed)
	if err := s.SaveResults(ctx, runs); err != nil {
		t.Fatal(err)
	}

	board, err := s.Leaderboard(ctx, gameID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	want := []struct {
		name                        string
		played, wins, losses, draws int
		rate                        string
	}{
		{"a", 3, 2, 0, 1, "0.6667"},
		{"c", 2, 1, 0, 1, "0.5"},
		{"b", 3, 0, 3, 0, "0"},
	}
	if len(board) != len(want) {
		t.Fatalf("board = %+v", board)
	}
	for i, w := range want {
		got := board[i]
		if got.AgentName != w.name || got.Played != w.played || got.Wins != w.wins ||
			got.Losses != w.losses || got.Draws != w.draws {
			t.Errorf("row %d = %+v, want %+v", i, got, w)
		}
		if !got.WinRate.Equal(decimal.RequireFromString(w.rate)) {
			t.Errorf("row %d win rate = %s, want %s", i, got.WinRate, w.rate)
		}
	}
}

func TestRecorderFlushesInBatches(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a, b := seedAgent(t, s, "a"), seedAgent(t, s, "b")

	rec := NewRecorder(s, 2)
	for range 3 {
		rec.Record(ctx, result(gameID, [2]string{a, b}, 0))
	}
	_, total, err := s.ListResults(ctx, gameID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("after one batch: %d results stored, want 2", total)
	}
	if err := rec.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, total, _ = s.ListResults(ctx, gameID, 0, 0); total != 3 {
		t.Errorf("after flush: %d results stored, want 3", total)
	}
}

func TestRecorderKeepsGoodResultsFromABadBatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	gameID := seedGame(t, s)
	a, b := seedAgent(t, s, "a"), seedAgent(t, s, "b")

	rec := NewRecorder(s, 10)
	good := []*Result{result(gameID, [2]string{a, b}, 0), result(gameID, [2]string{b, a}, 1)}
	bad := result(gameID, [2]string{a, "no-such-agent"}, 0)
	rec.Record(ctx, good[0])
	rec.Record(ctx, bad)
	rec.Record(ctx, good[1])

	err := rec.Flush(ctx)
	if err == nil {
		t.Fatal("Flush succeeded with a participant that does not exist")
	}
	if !strings.Contains(err.Error(), bad.ID) {
		t.Errorf("Flush error %v does not name result %s", err, bad.ID)
	}
	for _, r := range good {
		if _, err := s.GetResult(ctx, r.ID); err != nil {
			t.Errorf("GetResult(%s): %v", r.ID, err)
		}
	}
	if _, err := s.GetResult(ctx, bad.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResult(bad) = %v, want ErrNotFound", err)
	}
}
