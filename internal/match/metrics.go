package match

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_runs_total",
			Help: "Total runs played, by game and status",
		},
		[]string{"game", "status"},
	)
	RunTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arena_run_turns",
			Help:    "Turns handed to agents per run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arena_run_duration_seconds",
			Help:    "Wall time of a run, agents and game included",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunTurns)
	prometheus.MustRegister(RunDuration)
}
