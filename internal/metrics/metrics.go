// Package metrics exposes reconciliation metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dokzlo13/fedsync/internal/federation"
)

// Metrics holds the reconciliation collectors.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	OperationsTotal *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	Members         prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedsync_reconcile_runs_total",
			Help: "Reconciliation runs by mode and result",
		}, []string{"mode", "result"}), // result: ok|changed|failed

		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedsync_operations_total",
			Help: "Structural operations issued by kind and result",
		}, []string{"kind", "result"}), // result: applied|failed

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fedsync_reconcile_duration_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),

		Members: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedsync_federation_members",
			Help: "Federation members after the last successful run",
		}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedsync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
}

// Register registers the collectors on the given registry (or default if nil).
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.RunsTotal, m.OperationsTotal, m.RunDuration, m.Members, m.LastSuccess} {
		if err := registerCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

var timeSince = time.Since

// Recorder feeds reconciliation progress into the collectors.
type Recorder struct {
	m *Metrics
}

// NewRecorder creates a recorder for m.
func NewRecorder(m *Metrics) *Recorder {
	return &Recorder{m: m}
}

func (r *Recorder) RunStarted(context.Context, federation.Run) {}

func (r *Recorder) OperationDone(_ context.Context, _ federation.Run, _ int, op federation.Operation, err error) {
	result := "applied"
	if err != nil {
		result = "failed"
	}
	r.m.OperationsTotal.WithLabelValues(op.Kind().String(), result).Inc()
}

func (r *Recorder) RunFinished(_ context.Context, run federation.Run, res *federation.Result, err error) {
	mode := string(run.Mode)
	if !run.Started.IsZero() {
		r.m.RunDuration.WithLabelValues(mode).Observe(timeSince(run.Started).Seconds())
	}

	switch {
	case err != nil:
		r.m.RunsTotal.WithLabelValues(mode, "failed").Inc()
		return
	case res != nil && res.Changed:
		r.m.RunsTotal.WithLabelValues(mode, "changed").Inc()
	default:
		r.m.RunsTotal.WithLabelValues(mode, "ok").Inc()
	}

	if res != nil && !res.DryRun && run.Mode.Mutating() {
		r.m.Members.Set(float64(len(res.Current)))
	}
	r.m.LastSuccess.SetToCurrentTime()
}
