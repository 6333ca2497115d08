// Package api serves the arena over HTTP: stored games and agents, matches,
// tournaments, leaderboards, health probes and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MJE43/agent-arena/internal/match"
	"github.com/MJE43/agent-arena/internal/store"
)

// RequestTimeout bounds every request, tournaments included.
const RequestTimeout = 5 * time.Minute

// Server handles HTTP requests.
type Server struct {
	store        *store.Store
	runner       *match.Runner
	errorHandler *ErrorHandler
	logger       *slog.Logger
	startTime    time.Time
	httpServer   *http.Server
}

// NewServer creates a new API server.
func NewServer(st *store.Store, runner *match.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "api")
	return &Server{
		store:        st,
		runner:       runner,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		startTime:    time.Now(),
	}
}

// Routes sets up the HTTP routes with their middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(RequestTimeout))

	// Health and monitoring endpoints
	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/kinds", s.handleKinds)

		r.Route("/games", func(r chi.Router) {
			r.Post("/", s.handleCreateGame)
			r.Get("/", s.handleListGames)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetGame)
				r.Delete("/", s.handleDeleteGame)
				r.Get("/agents", s.handleGameAgents)
				r.Post("/agents/{agentID}", s.handleAllowAgent)
				r.Get("/results", s.handleListResults)
				r.Get("/leaderboard", s.handleLeaderboard)
			})
		})

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.handleCreateAgent)
			r.Get("/", s.handleListAgents)
			r.Get("/{id}", s.handleGetAgent)
			r.Delete("/{id}", s.handleDeleteAgent)
		})

		r.Post("/matches", s.handlePlay)
		r.Get("/results/{id}", s.handleGetResult)
		r.Post("/tournaments", s.handleTournament)
	})

	return r
}

// Start listens on addr and serves in a goroutine. It returns once the
// socket is bound.
func (s *Server) Start(addr string) (net.Addr, error) {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", ln.Addr().String(), "version", EngineVersion)
	return ln.Addr(), nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes a JSON response with the version header.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

// decode reads a JSON body, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pageParams reads limit and offset, clamped to sane bounds.
func pageParams(r *http.Request, def int) (int, int) {
	limit := clampInt(qInt(r, "limit", def), 1, 500)
	offset := clampInt(qInt(r, "offset", 0), 0, 1_000_000)
	return limit, offset
}
