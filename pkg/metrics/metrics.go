// Package metrics provides Prometheus metrics export for taskstate.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jvs-project/taskstate/pkg/model"
)

const namespace = "taskstate"

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// Registry holds all taskstate collectors on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	executions  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	changes     *prometheus.CounterVec
	reconciled  prometheus.Histogram
	storeErrors *prometheus.CounterVec
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_executions_total",
			Help:      "Task executions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of Execute by outcome, including capture and save.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_detected_total",
			Help:      "File changes reported by detectors.",
		}, []string{"detector", "type"}),
		reconciled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciled_output_files",
			Help:      "Number of output fingerprints persisted per execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Record store failures by operation.",
		}, []string{"op"}),
	}
	r.reg.MustRegister(r.executions, r.duration, r.changes, r.reconciled, r.storeErrors)
	return r
}

// RecordExecution records one Execute call.
func (r *Registry) RecordExecution(outcome model.Outcome, d time.Duration) {
	r.executions.WithLabelValues(string(outcome)).Inc()
	r.duration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

// RecordChange counts one reported change.
func (r *Registry) RecordChange(detector, changeType string) {
	r.changes.WithLabelValues(detector, changeType).Inc()
}

// RecordReconciled observes the size of a persisted output record.
func (r *Registry) RecordReconciled(files int) {
	r.reconciled.Observe(float64(files))
}

// RecordStoreError counts a failed store operation.
func (r *Registry) RecordStoreError(op string) {
	r.storeErrors.WithLabelValues(op).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes the registry on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
