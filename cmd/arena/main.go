// Command arena hosts the agent arena: "serve" runs the HTTP API over the
// SQLite store, "play" runs matches locally between built-in or script
// agents without touching the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MJE43/agent-arena/internal/api"
	"github.com/MJE43/agent-arena/internal/arena"
	"github.com/MJE43/agent-arena/internal/config"
	"github.com/MJE43/agent-arena/internal/games"
	"github.com/MJE43/agent-arena/internal/match"
	"github.com/MJE43/agent-arena/internal/store"
)

const usage = `usage:
  arena serve [-addr host:port] [-db path]
  arena play [-game connect4|file.js] [-seed n] [-runs n] agent agent...

An agent is a built-in name (%s) or a .js or .lua file.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "arena:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(out, usage, builtinAgents())
		return errors.New("missing command")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	switch args[0] {
	case "serve":
		return serve(cfg, logger, args[1:])
	case "play":
		return play(cfg, logger, args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprintf(out, usage, builtinAgents())
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func builtinAgents() string {
	var names []string
	for _, a := range games.ListAgents() {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func newRunner(cfg config.Config, logger *slog.Logger, st *store.Store) *match.Runner {
	return match.New(st, match.Options{
		Logger:        logger,
		MaxTurns:      cfg.MaxTurns,
		ScriptTimeout: cfg.ScriptTimeout,
		Parallelism:   cfg.Parallelism,
	})
}

func serve(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Open and migrate the store
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// 2. Serve until a signal arrives
	srv := api.NewServer(st, newRunner(cfg, logger, st), logger)
	if _, err := srv.Start(cfg.Addr); err != nil {
		return err
	}
	logger.Info("arena started", "db", cfg.DBPath, "parallelism", cfg.Parallelism, "max_turns", cfg.MaxTurns)
	<-ctx.Done()

	// 3. Drain in-flight requests
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func play(cfg config.Config, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	gameArg := fs.String("game", "connect4", "registered game kind or a .js game file")
	seed := fs.Uint64("seed", 1, "seed for random agents; run i uses seed+i")
	runs := fs.Int("runs", 1, "number of matches to play")
	quiet := fs.Bool("quiet", false, "only print the summary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("play: name at least one agent")
	}

	game, err := gameUnit(*gameArg)
	if err != nil {
		return err
	}
	agents := make([]match.Unit, fs.NArg())
	for i, arg := range fs.Args() {
		if agents[i], err = agentUnit(arg); err != nil {
			return err
		}
	}

	r := newRunner(cfg, logger, nil)
	wins := make([]int, len(agents))
	failed := 0
	for i := range max(*runs, 1) {
		rep, err := r.PlayUnits(context.Background(), game, agents, *seed+uint64(i))
		if err != nil {
			return err
		}
		if !rep.OK {
			failed++
		}
		for _, seat := range rep.Winners() {
			wins[seat]++
		}
		if !*quiet {
			printReport(out, rep, agents)
		}
	}

	if *runs > 1 {
		fmt.Fprintf(out, "%s matches, %s failed\n", humanize.Comma(int64(*runs)), humanize.Comma(int64(failed)))
		for seat, a := range agents {
			fmt.Fprintf(out, "  %s seat  %-20s %s wins\n", humanize.Ordinal(seat+1), a.Name, humanize.Comma(int64(wins[seat])))
		}
	}
	return nil
}

// gameUnit reads a game argument: a registered kind or a script file.
func gameUnit(arg string) (match.Unit, error) {
	if filepath.Ext(arg) == ".js" {
		src, err := os.ReadFile(arg)
		if err != nil {
			return match.Unit{}, err
		}
		return match.Unit{Name: filepath.Base(arg), Kind: store.KindJS, Source: string(src)}, nil
	}
	kind, ok := games.Lookup(arg)
	if !ok {
		return match.Unit{}, fmt.Errorf("unknown game %q", arg)
	}
	return match.Unit{Name: kind.Title, Kind: store.KindBuiltin, Source: kind.Name}, nil
}

// agentUnit reads an agent argument: a built-in name or a script file.
func agentUnit(arg string) (match.Unit, error) {
	kind := ""
	switch filepath.Ext(arg) {
	case ".js":
		kind = store.KindJS
	case ".lua":
		kind = store.KindLua
	default:
		return match.Unit{Name: arg, Kind: store.KindBuiltin, Source: arg}, nil
	}
	src, err := os.ReadFile(arg)
	if err != nil {
		return match.Unit{}, err
	}
	return match.Unit{Name: filepath.Base(arg), Kind: kind, Source: string(src)}, nil
}

func printReport(out io.Writer, rep arena.Report, agents []match.Unit) {
	if vec, ok := rep.Snapshot.(*arena.Vector); ok && vec.Len() == 42 {
		fmt.Fprint(out, games.RenderBoard(vec.Values()))
	}
	if !rep.OK {
		fmt.Fprintf(out, "failed in %s after %s turns: %s\n", rep.FailedIn, humanize.Comma(int64(rep.Turns)), rep.Game.FaultMessage())
		return
	}
	outcome := "no outcome"
	if rep.Game.Outcome != nil {
		outcome = *rep.Game.Outcome
	}
	fmt.Fprintf(out, "%s after %s turns\n", outcome, humanize.Comma(int64(rep.Turns)))
	for seat, a := range rep.Agents {
		label := "-"
		if a.Outcome != nil {
			label = *a.Outcome
		}
		score := ""
		if a.Score != nil {
			score = fmt.Sprintf(" (score %d)", *a.Score)
		}
		fmt.Fprintf(out, "  %s seat  %-20s %s%s\n", humanize.Ordinal(seat+1), agents[seat].Name, label, score)
	}
}
