package api

import (
	"github.com/MJE43/agent-arena/internal/games"
	"github.com/MJE43/agent-arena/internal/match"
	"github.com/MJE43/agent-arena/internal/store"
)

// EngineError is the body of every error response.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e EngineError) Error() string {
	return e.Message
}

// Error types.
const (
	// Input validation errors
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"
	ErrTypeNotAllowed    = "agent_not_allowed"

	// Resource errors
	ErrTypeNotFound = "not_found"
	ErrTypeConflict = "conflict"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryResource   ErrorCategory = "resource"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type.
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation, ErrTypeNotAllowed:
		return CategoryValidation
	case ErrTypeNotFound, ErrTypeConflict:
		return CategoryResource
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information.
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// KindsResponse lists what can be stored without a script.
type KindsResponse struct {
	Games         []games.Kind      `json:"games"`
	Agents        []games.AgentKind `json:"agents"`
	EngineVersion string            `json:"engine_version"`
}

// CreateGameRequest stores a game. Builtin games name a registered kind in
// Source; js games carry the script.
type CreateGameRequest struct {
	Name   string       `json:"name"`
	Kind   string       `json:"kind"`
	Source string       `json:"source"`
	Seats  []store.Seat `json:"seats"`
}

// CreateAgentRequest stores an agent.
type CreateAgentRequest struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// Page wraps a listing with its total row count.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// MatchRequest plays one stored game between stored agents in seat order.
type MatchRequest struct {
	GameID   string   `json:"gameId"`
	AgentIDs []string `json:"agentIds"`
	Seed     uint64   `json:"seed"`
}

// MatchResponse is a stored match with its full report.
type MatchResponse struct {
	*match.Match
	EngineVersion string       `json:"engine_version"`
	Echo          MatchRequest `json:"echo"`
}

// TournamentRequest plays a round robin.
type TournamentRequest struct {
	GameID   string   `json:"gameId"`
	AgentIDs []string `json:"agentIds"`
	Rounds   int      `json:"rounds"`
	Seed     uint64   `json:"seed"`
}

// TournamentResponse is the outcome of a round robin.
type TournamentResponse struct {
	*match.Tournament
	EngineVersion string `json:"engine_version"`
}

// LeaderboardResponse ranks the agents of a game.
type LeaderboardResponse struct {
	GameID      string           `json:"gameId"`
	Standings   []store.Standing `json:"standings"`
	GeneratedAt string           `json:"generated_at"`
}
