package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/agent-arena/internal/games"
	"github.com/MJE43/agent-arena/internal/match"
	"github.com/MJE43/agent-arena/internal/store"
)

const maxRounds = 100

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, KindsResponse{
		Games:         games.List(),
		Agents:        games.ListAgents(),
		EngineVersion: EngineVersion,
	})
}

// ---- games ----

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := decode(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.errorHandler.HandleValidationError(w, r, "name", "name is required")
		return
	}
	if req.Kind != store.KindBuiltin && req.Kind != store.KindJS {
		s.errorHandler.HandleValidationError(w, r, "kind", "kind must be builtin or js")
		return
	}
	if req.Kind == store.KindBuiltin {
		kind, ok := games.Lookup(req.Source)
		if !ok {
			s.errorHandler.HandleValidationError(w, r, "source", fmt.Sprintf("unknown game kind %q", req.Source))
			return
		}
		if len(req.Seats) == 0 {
			req.Seats = defaultSeats(kind.Seats)
		}
		if len(req.Seats) != kind.Seats {
			s.errorHandler.HandleValidationError(w, r, "seats", fmt.Sprintf("%s takes %d seats", kind.Name, kind.Seats))
			return
		}
	}
	unit := match.Unit{Name: req.Name, Kind: req.Kind, Source: req.Source}
	if err := s.runner.CheckGame(unit); err != nil {
		s.errorHandler.HandleUnitError(w, r, "game", err)
		return
	}

	g := &store.Game{Name: req.Name, Kind: req.Kind, Source: req.Source, Seats: req.Seats}
	if _, err := s.store.CreateGame(r.Context(), g); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.logger.Info("game created", "id", g.ID, "name", g.Name, "kind", g.Kind)
	s.writeJSON(w, http.StatusCreated, g)
}

func defaultSeats(n int) []store.Seat {
	seats := make([]store.Seat, n)
	for i := range seats {
		seats[i] = store.Seat{Position: i, Name: fmt.Sprintf("player %d", i+1), Required: true}
	}
	return seats
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)
	items, total, err := s.store.ListGames(r.Context(), limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Page[store.Game]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteGame(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGameAgents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetGame(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	agents, err := s.store.AgentsForGame(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"gameId": id, "agents": agents})
}

func (s *Server) handleAllowAgent(w http.ResponseWriter, r *http.Request) {
	gameID, agentID := chi.URLParam(r, "id"), chi.URLParam(r, "agentID")
	if err := s.store.AllowAgent(r.Context(), gameID, agentID); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"gameId": gameID, "agentId": agentID, "allowed": true})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetGame(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	limit, offset := pageParams(r, 100)
	items, total, err := s.store.ListResults(r.Context(), id, limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Page[store.Result]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetGame(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	standings, err := s.store.Leaderboard(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{
		GameID:      id,
		Standings:   standings,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// ---- agents ----

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := decode(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.errorHandler.HandleValidationError(w, r, "name", "name is required")
		return
	}
	switch req.Kind {
	case store.KindBuiltin, store.KindJS, store.KindLua:
	default:
		s.errorHandler.HandleValidationError(w, r, "kind", "kind must be builtin, js or lua")
		return
	}
	if err := s.runner.CheckAgent(match.Unit{Name: req.Name, Kind: req.Kind, Source: req.Source}); err != nil {
		s.errorHandler.HandleUnitError(w, r, "agent", err)
		return
	}

	a := &store.Agent{Name: req.Name, Kind: req.Kind, Source: req.Source}
	if _, err := s.store.CreateAgent(r.Context(), a); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.logger.Info("agent created", "id", a.ID, "name", a.Name, "kind", a.Kind)
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)
	items, total, err := s.store.ListAgents(r.Context(), limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Page[store.Agent]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- runs ----

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := decode(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON")
		return
	}
	if req.GameID == "" {
		s.errorHandler.HandleValidationError(w, r, "gameId", "gameId is required")
		return
	}
	if len(req.AgentIDs) == 0 {
		s.errorHandler.HandleValidationError(w, r, "agentIds", "at least one agent is required")
		return
	}

	m, err := s.runner.Play(r.Context(), req.GameID, req.AgentIDs, req.Seed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, MatchResponse{Match: m, EngineVersion: EngineVersion, Echo: req})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	var req TournamentRequest
	if err := decode(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON")
		return
	}
	if req.GameID == "" {
		s.errorHandler.HandleValidationError(w, r, "gameId", "gameId is required")
		return
	}
	if len(req.AgentIDs) < 2 {
		s.errorHandler.HandleValidationError(w, r, "agentIds", "a tournament needs at least 2 agents")
		return
	}
	if req.Rounds < 0 || req.Rounds > maxRounds {
		s.errorHandler.HandleValidationError(w, r, "rounds", fmt.Sprintf("rounds must be between 1 and %d", maxRounds))
		return
	}

	t, err := s.runner.Tournament(r.Context(), req.GameID, req.AgentIDs, req.Rounds, req.Seed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, TournamentResponse{Tournament: t, EngineVersion: EngineVersion})
}
