package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var keys = []string{
	"ARENA_ADDR", "ARENA_DB_PATH", "ARENA_LOG_LEVEL", "ARENA_LOG_JSON",
	"ARENA_SCRIPT_TIMEOUT", "ARENA_MAX_TURNS", "ARENA_PARALLELISM",
}

// clearEnv unsets every ARENA_* key for the test, restoring them after.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.DBPath != "arena.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ScriptTimeout != time.Second || cfg.MaxTurns != 10000 || cfg.Parallelism != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "arena.env")
	content := "ARENA_DB_PATH=/tmp/from-file.db\nARENA_SCRIPT_TIMEOUT=250ms\nARENA_MAX_TURNS=40\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ARENA_MAX_TURNS", "99")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/from-file.db" || cfg.ScriptTimeout != 250*time.Millisecond {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	if cfg.MaxTurns != 99 {
		t.Errorf("MaxTurns = %d, want the environment's 99", cfg.MaxTurns)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"ARENA_SCRIPT_TIMEOUT": "0s",
		"ARENA_MAX_TURNS":      "-1",
		"ARENA_PARALLELISM":    "lots",
		"ARENA_LOG_LEVEL":      "loud",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Errorf("%s=%s accepted", key, val)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	Config{LogLevel: "warn", LogJSON: true}.NewLogger(&buf).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}

	Config{LogLevel: "debug", LogJSON: true}.NewLogger(&buf).Debug("shown", "game", "connect4")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a JSON line: %q", buf.String())
	}
	if line["msg"] != "shown" || line["game"] != "connect4" {
		t.Errorf("line = %v", line)
	}

	buf.Reset()
	Config{LogLevel: "info"}.NewLogger(&buf).Info("colored", "turns", 3)
	if !strings.Contains(buf.String(), "colored") {
		t.Errorf("text output = %q", buf.String())
	}

	if lvl, err := ParseLevel("WARNING"); err != nil || lvl != slog.LevelWarn {
		t.Errorf("ParseLevel(WARNING) = %v, %v", lvl, err)
	}
}
