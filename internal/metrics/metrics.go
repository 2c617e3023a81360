package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kode4food/flowrun/pkg/api"
)

// Metrics records flow and task execution statistics in a dedicated
// Prometheus registry. A nil *Metrics discards every observation
type Metrics struct {
	registry      *prometheus.Registry
	flowsStarted  prometheus.Counter
	flowsFinished *prometheus.CounterVec
	flowDuration  *prometheus.HistogramVec
	tasksFinished *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	flowsRunning  prometheus.Gauge
	rejected      prometheus.Counter
}

const namespace = "flowrun"

// New creates a Metrics instance with its own registry, including the
// standard Go runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		flowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_runs_started_total",
			Help:      "Flow runs created",
		}),
		flowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_runs_finished_total",
			Help:      "Flow runs that reached a terminal status",
		}, []string{"status"}),
		flowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_run_duration_seconds",
			Help:      "Wall time from flow run creation to terminal status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_finished_total",
			Help:      "Task runs that reached a terminal status",
		}, []string{"task", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_run_duration_seconds",
			Help:      "Task invocation wall time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		flowsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_runs_in_progress",
			Help:      "Flow runs currently executing",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_validation_failures_total",
			Help:      "Flow submissions rejected by validation",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.flowsStarted, m.flowsFinished, m.flowDuration,
		m.tasksFinished, m.taskDuration, m.flowsRunning, m.rejected,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FlowStarted records a newly created flow run
func (m *Metrics) FlowStarted() {
	if m == nil {
		return
	}
	m.flowsStarted.Inc()
	m.flowsRunning.Inc()
}

// FlowFinished records a flow run reaching a terminal status
func (m *Metrics) FlowFinished(status api.FlowStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.flowsRunning.Dec()
	m.flowsFinished.WithLabelValues(string(status)).Inc()
	m.flowDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// TaskFinished records a task run reaching a terminal status
func (m *Metrics) TaskFinished(
	name api.TaskName, status api.TaskStatus, elapsed time.Duration,
) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(string(name), string(status)).Inc()
	m.taskDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())
}

// FlowRejected records a submission that failed validation
func (m *Metrics) FlowRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
