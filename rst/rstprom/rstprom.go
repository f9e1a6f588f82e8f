// Package rstprom exposes Supervisor lifecycle metrics to Prometheus
package rstprom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/capatazlib/go-rst/rst"
)

// Metrics holds the collectors that get updated by the Notifier
type Metrics struct {
	Notifications *prometheus.CounterVec
	Restarts      *prometheus.CounterVec
	Shutdowns     *prometheus.CounterVec
	Generation    *prometheus.GaugeVec
	Running       *prometheus.GaugeVec
}

// NewMetrics creates and registers the lifecycle collectors on the given
// Registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rst_notifications_total",
				Help: "Total number of supervisor lifecycle notifications",
			},
			[]string{"supervisor", "tag"},
		),
		Restarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rst_worker_restarts_total",
				Help: "Total number of successful in-place worker restarts",
			},
			[]string{"supervisor"},
		),
		Shutdowns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rst_shutdowns_total",
				Help: "Total number of abnormal worker thread shutdowns",
			},
			[]string{"supervisor", "reason"},
		),
		Generation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rst_thread_generation",
				Help: "Generation of the latest worker thread",
			},
			[]string{"supervisor"},
		),
		Running: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rst_thread_running",
				Help: "1 when a worker thread is running, 0 otherwise",
			},
			[]string{"supervisor"},
		),
	}
}

// Notifier returns a Notifier that updates the collectors
func (m *Metrics) Notifier() rst.Notifier {
	return func(n rst.Notification) {
		name := n.GetSupervisorName()
		m.Notifications.WithLabelValues(name, n.GetTag().String()).Inc()

		switch n.GetTag() {
		case rst.ThreadSpawned:
			m.Generation.WithLabelValues(name).Set(float64(n.GetGeneration()))
			m.Running.WithLabelValues(name).Set(1)
		case rst.ThreadStopped:
			m.Running.WithLabelValues(name).Set(0)
		case rst.WorkerRestarted:
			m.Restarts.WithLabelValues(name).Inc()
		case rst.WorkerFaulted:
			m.Shutdowns.WithLabelValues(name, rst.Fault.String()).Inc()
		case rst.RestartExhausted:
			m.Shutdowns.WithLabelValues(name, rst.RestartPolicyExhausted.String()).Inc()
		}
	}
}

// StatusFn returns a snapshot of a Supervisor; (*rst.Supervisor[E]).Status
// satisfies it
type StatusFn func() rst.Status

// StatusCollector reads the Status of the given supervisors on every scrape
type StatusCollector struct {
	statusFns []StatusFn

	subscribers *prometheus.Desc
	state       *prometheus.Desc
}

// NewStatusCollector creates a collector that reports the subscriber count
// and thread state of the given supervisors
func NewStatusCollector(statusFns ...StatusFn) *StatusCollector {
	return &StatusCollector{
		statusFns: statusFns,
		subscribers: prometheus.NewDesc(
			"rst_subscribers",
			"Number of live subscribers of a supervisor",
			[]string{"supervisor"},
			nil,
		),
		state: prometheus.NewDesc(
			"rst_thread_state",
			"State of the latest worker thread generation",
			[]string{"supervisor", "state", "generation"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscribers
	ch <- c.state
}

// Collect implements prometheus.Collector
func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, statusFn := range c.statusFns {
		st := statusFn()
		ch <- prometheus.MustNewConstMetric(
			c.subscribers,
			prometheus.GaugeValue,
			float64(st.Receivers),
			st.Name,
		)
		ch <- prometheus.MustNewConstMetric(
			c.state,
			prometheus.GaugeValue,
			1,
			st.Name,
			st.State.String(),
			strconv.FormatUint(st.Generation, 10),
		)
	}
}
