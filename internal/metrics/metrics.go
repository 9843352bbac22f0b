// Package metrics holds the manager's Prometheus collectors. They register on
// the default registry and are served by the admin surface at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	GamesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "localai",
		Subsystem: "watcher",
		Name:      "games_active",
		Help:      "Number of game sessions currently tracked",
	})

	GameLaunchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localai",
		Subsystem: "watcher",
		Name:      "game_launches_total",
		Help:      "Total verified game launches observed",
	})

	GameExitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localai",
		Subsystem: "watcher",
		Name:      "game_exits_total",
		Help:      "Total game exits observed",
	})

	ServerStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localai",
		Subsystem: "server",
		Name:      "starts_total",
		Help:      "Total inference server starts requested by the orchestrator",
	})

	ServerStopsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localai",
		Subsystem: "server",
		Name:      "stops_total",
		Help:      "Total inference server stops requested by the orchestrator",
	})

	ServerStartFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localai",
		Subsystem: "server",
		Name:      "start_failures_total",
		Help:      "Server starts that failed or timed out",
	})
)

func init() {
	prometheus.MustRegister(
		GamesActive,
		GameLaunchesTotal,
		GameExitsTotal,
		ServerStartsTotal,
		ServerStopsTotal,
		ServerStartFailures,
	)
}
