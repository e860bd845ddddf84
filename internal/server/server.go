// Package server implements the HTTP Server (C10): a gorilla/mux router
// exposing the scrape surface (/metrics), an operator health check
// (/health), a read-only cardinality view (/cardinality), a plain-text
// operator summary (/status), and, when wired, the engine's own internal
// operational metrics (/internal/metrics) separate from the Meraki scrape
// surface.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/cardinality"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/health"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
)

// SchedulerStatus is the subset of the Scheduler the status endpoint reads.
type SchedulerStatus interface {
	Warming() bool
	Overruns() map[domain.Tier]int
	LastTick() map[domain.Tier]time.Time
}

// Options configures a new Server.
type Options struct {
	Metrics     *registry.Registry
	Health      *health.Evaluator
	Cardinality *cardinality.Monitor
	Scheduler   SchedulerStatus
	// InternalMetrics, if set, is mounted at /internal/metrics. It exposes
	// the engine's own operational counters and gauges (event bus
	// throughput, API call accounting) rather than the exported Meraki
	// series served from /metrics.
	InternalMetrics http.Handler
}

// New builds the router. Handlers read live state from the supplied
// components on every request; nothing here is cached beyond what those
// components cache themselves.
func New(opts Options) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", healthHandler(opts.Health)).Methods(http.MethodGet)
	r.HandleFunc("/cardinality", cardinalityHandler(opts.Cardinality)).Methods(http.MethodGet)
	r.HandleFunc("/status", statusHandler(opts.Scheduler)).Methods(http.MethodGet)
	if opts.InternalMetrics != nil {
		r.Handle("/internal/metrics", opts.InternalMetrics).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(eval *health.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := eval.Evaluate(req.Context())

		w.Header().Set("Content-Type", "application/json")
		if snap.Overall == health.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(snap)
	}
}

type cardinalityResponse struct {
	TotalSeries int                                   `json:"total_series"`
	ComputedAt  time.Time                             `json:"computed_at"`
	Metrics     map[string]cardinality.MetricSnapshot  `json:"metrics"`
	Labels      map[string]cardinality.LabelSnapshot   `json:"labels"`
	Banner      map[cardinality.Classification]int     `json:"banner"`
}

func cardinalityHandler(mon *cardinality.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := mon.Snapshot()
		resp := cardinalityResponse{
			TotalSeries: snap.TotalSeries,
			ComputedAt:  snap.ComputedAt,
			Metrics:     snap.PerMetric,
			Labels:      snap.PerLabel,
			Banner:      snap.Banner,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func statusHandler(sched SchedulerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if sched == nil {
			fmt.Fprintln(w, "scheduler not wired")
			return
		}

		fmt.Fprintf(w, "warming: %t\n", sched.Warming())

		lastTick := sched.LastTick()
		overruns := sched.Overruns()

		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "tier       last_tick                      overruns")
		for _, tier := range domain.Ordered() {
			ts := "never"
			if t, ok := lastTick[tier]; ok {
				ts = t.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%-10s %-30s %d\n", tier.String(), ts, overruns[tier])
		}
	}
}
