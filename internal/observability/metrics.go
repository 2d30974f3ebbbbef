package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jarvis/internal/core"
	"jarvis/internal/monitor"
)

// Metrics holds the daemon's Prometheus collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// TasksStarted counts task starts.
	// Labels: task
	TasksStarted *prometheus.CounterVec

	// TasksFinished counts finished runs.
	// Labels: status (completed|failed|cancelled)
	TasksFinished *prometheus.CounterVec

	// TaskDuration measures run time of finished tasks in seconds.
	// Labels: status
	TaskDuration *prometheus.HistogramVec

	// ActiveTasks is the number of running tasks.
	ActiveTasks prometheus.Gauge

	// ScheduledJobs is the number of registered jobs.
	ScheduledJobs prometheus.Gauge

	// Commands counts handled commands.
	// Labels: category (search|launch|stop|status|unknown|error)
	Commands *prometheus.CounterVec

	// TurnDuration measures wake-to-reply processing time in seconds.
	TurnDuration prometheus.Histogram

	// HostResources reports the last monitor sample in percent.
	// Labels: resource (cpu|memory|disk)
	HostResources *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// DefaultMetrics returns the process-wide metrics registered with the default registry.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jarvis_tasks_started_total",
				Help: "Total number of task starts by task name",
			},
			[]string{"task"},
		),
		TasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jarvis_tasks_finished_total",
				Help: "Total number of finished task runs by terminal status",
			},
			[]string{"status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jarvis_task_duration_seconds",
				Help:    "Duration of finished task runs in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800},
			},
			[]string{"status"},
		),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_tasks_active",
			Help: "Number of currently running tasks",
		}),
		ScheduledJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_jobs_scheduled",
			Help: "Number of registered scheduled jobs",
		}),
		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jarvis_commands_total",
				Help: "Total number of handled commands by intent category",
			},
			[]string{"category"},
		),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jarvis_turn_duration_seconds",
			Help:    "Time from captured command to spoken reply in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		HostResources: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jarvis_host_resource_percent",
				Help: "Last sampled host resource usage in percent",
			},
			[]string{"resource"},
		),
	}
}

// TaskStarted is an executor start hook.
func (m *Metrics) TaskStarted(name string) {
	if m == nil {
		return
	}
	m.TasksStarted.WithLabelValues(name).Inc()
	m.ActiveTasks.Inc()
}

// TaskFinished is an executor completion hook.
func (m *Metrics) TaskFinished(entry core.HistoryEntry) {
	if m == nil {
		return
	}
	status := string(entry.Status)
	m.TasksFinished.WithLabelValues(status).Inc()
	m.ActiveTasks.Dec()
	if entry.Duration != nil {
		m.TaskDuration.WithLabelValues(status).Observe(entry.Duration.Seconds())
	}
}

// SetScheduledJobs is a scheduler job count hook.
func (m *Metrics) SetScheduledJobs(count int) {
	if m == nil {
		return
	}
	m.ScheduledJobs.Set(float64(count))
}

// CommandHandled records one processed command.
func (m *Metrics) CommandHandled(category string, took time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(category).Inc()
	m.TurnDuration.Observe(took.Seconds())
}

// ObserveResources stores the latest monitor sample.
func (m *Metrics) ObserveResources(st monitor.Status) {
	if m == nil {
		return
	}
	m.HostResources.WithLabelValues("cpu").Set(st.CPUPercent)
	m.HostResources.WithLabelValues("memory").Set(st.MemoryPercent)
	m.HostResources.WithLabelValues("disk").Set(st.DiskPercent)
}
