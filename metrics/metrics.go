// Package metrics exposes the supervisor's internal counters over its own
// HTTP listener, instrumented with github.com/prometheus/client_golang and
// served through internal/httpgraceful so the metrics endpoint drains
// cleanly alongside the main listener on shutdown.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darkphnx/uninterruptible/internal/httpgraceful"
	"github.com/darkphnx/uninterruptible/logging"
	"github.com/darkphnx/uninterruptible/supervisor"
)

// Recorder owns the Prometheus collectors for a single supervisor
// generation and the HTTP server exposing them.
type Recorder struct {
	registry *prometheus.Registry
	log      *logging.Logger

	activeConns    prometheus.Gauge
	acceptTotal    prometheus.Counter
	rejectTotal    prometheus.Counter
	restartTotal   prometheus.Counter
	stateGauge     *prometheus.GaugeVec
	handoverMillis prometheus.Histogram

	srv *httpgraceful.Server
}

// New builds a Recorder with its own registry (not the global default one,
// so multiple generations in tests never collide on re-registration).
func New(log *logging.Logger) *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		log:      log,
		activeConns: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "uninterruptible_active_connections",
			Help: "Number of connections currently registered with the supervisor.",
		}),
		acceptTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "uninterruptible_accepted_connections_total",
			Help: "Total connections accepted and dispatched to the handler.",
		}),
		rejectTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "uninterruptible_rejected_connections_total",
			Help: "Total connections rejected by the remote allowlist.",
		}),
		restartTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "uninterruptible_restarts_total",
			Help: "Total graceful restarts (handovers) completed.",
		}),
		stateGauge: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "uninterruptible_state",
			Help: "1 for the supervisor's current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		handoverMillis: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "uninterruptible_handover_duration_milliseconds",
			Help:    "Time taken for a restart handover to complete, from spawn to PID file takeover.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}),
	}
	return r
}

// AcceptedConn records one dispatched connection.
func (r *Recorder) AcceptedConn() { r.acceptTotal.Inc() }

// RejectedConn records one allowlist rejection.
func (r *Recorder) RejectedConn() { r.rejectTotal.Inc() }

// RestartCompleted records a completed handover and its duration.
func (r *Recorder) RestartCompleted(d time.Duration) {
	r.restartTotal.Inc()
	r.handoverMillis.Observe(float64(d.Milliseconds()))
}

// SetActiveConns sets the live connection gauge; wire this to
// registry.Registry.Count() on whatever cadence the caller prefers (the
// supervisor's own registry already tracks this, this just republishes it).
func (r *Recorder) SetActiveConns(n int) {
	r.activeConns.Set(float64(n))
}

// OnStateChange adapts to supervisor.Options.OnStateChange, publishing the
// new state as a one-hot gauge vector over the four known states.
func (r *Recorder) OnStateChange(st supervisor.State) {
	for _, name := range []string{"running", "draining", "restarting", "terminating"} {
		v := 0.0
		if name == st.String() {
			v = 1.0
		}
		r.stateGauge.WithLabelValues(name).Set(v)
	}
}

// Serve starts the metrics HTTP endpoint on listener ln and blocks until it
// is shut down. Call Shutdown from another goroutine to stop it.
func (r *Recorder) Serve(ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	r.srv = &httpgraceful.Server{
		Server:  &http.Server{Handler: mux},
		Timeout: 5 * time.Second,
		OnKilled: func(killed int) {
			if r.log != nil {
				r.log.Warnf("metrics server forcibly closed %d lingering connection(s)", killed)
			}
		},
	}
	return r.srv.Serve(ln)
}

// Shutdown drains the metrics HTTP server. Safe to call even if Serve was
// never started.
func (r *Recorder) Shutdown(ctx context.Context) {
	if r.srv == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		r.srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
