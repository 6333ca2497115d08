package arena

import (
	"github.com/pkg/errors"
)

// GameResult is the game-level outcome of one run. Outcome is filled by the
// game's Finalize on success; Fault and Trace are filled by the orchestrator
// when the run fails. A result never holds both.
type GameResult struct {
	Outcome *string `json:"outcome,omitempty"`
	Fault   error   `json:"-"`
	Trace   string  `json:"trace,omitempty"`
}

// SetOutcome records the outcome text. It may be called once.
func (r *GameResult) SetOutcome(text string) error {
	if r.Outcome != nil {
		return errors.Wrap(ErrAlreadySet, "game outcome")
	}
	r.Outcome = &text
	return nil
}

// FaultMessage returns the fault description, or "" on success.
func (r *GameResult) FaultMessage() string {
	if r.Fault == nil {
		return ""
	}
	return r.Fault.Error()
}

// AgentResult is one seat's outcome. Every field is optional and may be
// filled once.
type AgentResult struct {
	Outcome *string `json:"outcome,omitempty"`
	Score   *int    `json:"score,omitempty"`
	Won     *bool   `json:"won,omitempty"`
}

// SetOutcome records the seat's outcome label.
func (r *AgentResult) SetOutcome(label string) error {
	if r.Outcome != nil {
		return errors.Wrap(ErrAlreadySet, "agent outcome")
	}
	r.Outcome = &label
	return nil
}

// SetScore records the seat's score.
func (r *AgentResult) SetScore(score int) error {
	if r.Score != nil {
		return errors.Wrap(ErrAlreadySet, "agent score")
	}
	r.Score = &score
	return nil
}

// SetWon records whether the seat won.
func (r *AgentResult) SetWon(won bool) error {
	if r.Won != nil {
		return errors.Wrap(ErrAlreadySet, "agent won flag")
	}
	r.Won = &won
	return nil
}

// Report is everything a run hands back to its host: the success flag, the
// result model and the optional snapshot the game asked to persist.
type Report struct {
	// OK is true exactly when Game.Fault is nil.
	OK     bool          `json:"ok"`
	Game   GameResult    `json:"game"`
	Agents []AgentResult `json:"agents"`
	// Snapshot is the value the game passed to Base.Persist, if any.
	Snapshot any `json:"snapshot,omitempty"`
	// Phase is PhaseDone or PhaseFailed.
	Phase Phase `json:"phase"`
	// FailedIn is the phase the fault happened in, empty on success.
	FailedIn Phase `json:"failedIn,omitempty"`
	// Turns counts the turns handed to agents.
	Turns int `json:"turns"`
}

// Winners returns the seats whose Won flag is true.
func (r Report) Winners() []int {
	var seats []int
	for i, a := range r.Agents {
		if a.Won != nil && *a.Won {
			seats = append(seats, i)
		}
	}
	return seats
}
