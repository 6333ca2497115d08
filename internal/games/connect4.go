package games

import (
	"fmt"
	"strings"

	"github.com/MJE43/agent-arena/internal/arena"
)

// ConnectFourName is the registry name of Connect Four.
const ConnectFourName = "connect4"

const (
	connectRows = 6
	connectCols = 7
	connectRun  = 4
)

// Tokens in the board cells.
const (
	TokenEmpty  = 0
	TokenFirst  = 1
	TokenSecond = -1
)

var (
	playerTokens = [2]int{TokenFirst, TokenSecond}
	directions   = [...][2]int{{1, 0}, {0, 1}, {1, 1}, {-1, 1}}
)

// ConnectFour is the two-player game of dropping tokens into a 7x6 grid
// until one player has four in a row. Cell (row, col) lives at state index
// row*7+col with row 0 at the bottom, and is keyed by [2]int{row, col}.
type ConnectFour struct {
	arena.Base

	heights [connectCols]int
	moves   int
	winner  int
}

// NewConnectFour returns a game for exactly two agent factories.
func NewConnectFour(factories ...arena.AgentFactory) *ConnectFour {
	return &ConnectFour{Base: arena.NewBase(factories...), winner: -1}
}

// Name implements arena.Namer.
func (g *ConnectFour) Name() string { return "Connect Four" }

// BeforeAgentsReady lays out the empty board and its cell keys.
func (g *ConnectFour) BeforeAgentsReady() error {
	if g.Seats() != 2 {
		return fmt.Errorf("games: connect four needs 2 seats, got %d", g.Seats())
	}
	board, err := arena.VectorOfSize(arena.ScalarKinds, connectRows*connectCols, TokenEmpty)
	if err != nil {
		return err
	}
	g.SetState(board)
	for row := range connectRows {
		for col := range connectCols {
			if err := g.SetKey([2]int{row, col}, row*connectCols+col); err != nil {
				return err
			}
		}
	}
	g.SetTurnBounds(1, 1)
	g.SetNextSeat(0)
	return nil
}

// LegalMoves maps every column that still has room to the cell the token
// would land in.
func (g *ConnectFour) LegalMoves() (arena.Moves, error) {
	moves := make(arena.Moves, connectCols)
	if g.GameOver() {
		return moves, nil
	}
	for col, height := range g.heights {
		if height < connectRows {
			moves[arena.MoveID(col)] = [2]int{height, col}
		}
	}
	return moves, nil
}

// ApplyMove drops the acting seat's token into column id.
func (g *ConnectFour) ApplyMove(id arena.MoveID) error {
	col := int(id)
	// 1. Validate the column
	switch {
	case g.GameOver():
		return arena.NewIllegalMove(id, "game is over")
	case col < 0 || col >= connectCols:
		return arena.NewIllegalMove(id, "no such column")
	case g.heights[col] >= connectRows:
		return arena.NewIllegalMove(id, "column full")
	}

	// 2. Place the token
	seat := g.NextSeat()
	token := playerTokens[seat]
	row := g.heights[col]
	if err := g.Vector().Set(row*connectCols+col, token); err != nil {
		return err
	}
	g.heights[col]++
	g.moves++

	// 3. Check for a win or a full board
	for _, dir := range directions {
		if g.connected(row, col, dir[0], dir[1], token) {
			g.winner = seat
			g.SetGameOver(true)
			return nil
		}
	}
	if g.moves == connectRows*connectCols {
		g.SetGameOver(true)
		return nil
	}

	// 4. Pass the turn
	g.SetNextSeat(1 - seat)
	return nil
}

// connected reports whether the token at (row, col) is part of a run of four
// along (dr, dc).
func (g *ConnectFour) connected(row, col, dr, dc, token int) bool {
	run := 1 + g.count(row-dr, col-dc, -dr, -dc, token) + g.count(row+dr, col+dc, dr, dc, token)
	return run >= connectRun
}

func (g *ConnectFour) count(row, col, dr, dc, token int) int {
	n := 0
	for row >= 0 && row < connectRows && col >= 0 && col < connectCols && g.cell(row, col) == token {
		n++
		row += dr
		col += dc
	}
	return n
}

func (g *ConnectFour) cell(row, col int) int {
	v, err := g.Vector().At(row*connectCols + col)
	if err != nil {
		return TokenEmpty
	}
	token, _ := v.(int)
	return token
}

// Finalize reports the winner, or a draw, and keeps the final board as the
// run's snapshot.
func (g *ConnectFour) Finalize(game *arena.GameResult, agents []*arena.AgentResult) error {
	outcome := "draw"
	if g.winner >= 0 {
		outcome = fmt.Sprintf("player %d wins", g.winner+1)
	}
	if err := game.SetOutcome(outcome); err != nil {
		return err
	}
	for seat, a := range agents {
		won := seat == g.winner
		label, score := "draw", 0
		if g.winner >= 0 {
			label = "loss"
			if won {
				label, score = "win", 1
			}
		}
		if err := a.SetOutcome(label); err != nil {
			return err
		}
		if err := a.SetScore(score); err != nil {
			return err
		}
		if err := a.SetWon(won); err != nil {
			return err
		}
	}
	g.Persist(g.Vector())
	return nil
}

// RenderBoard draws a Connect Four board, top row first, with X for the
// first player and O for the second. cells is the board in state order, as
// found in a run's snapshot.
func RenderBoard(cells []any) string {
	var b strings.Builder
	for row := connectRows - 1; row >= 0; row-- {
		b.WriteString("|")
		for col := range connectCols {
			i := row*connectCols + col
			mark := " ."
			if i < len(cells) {
				switch toInt(cells[i]) {
				case TokenFirst:
					mark = " X"
				case TokenSecond:
					mark = " O"
				}
			}
			b.WriteString(mark)
		}
		b.WriteString(" |\n")
	}
	b.WriteString("+")
	b.WriteString(strings.Repeat("--", connectCols))
	b.WriteString("-+\n")
	return b.String()
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
