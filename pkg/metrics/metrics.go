package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Simulation metrics
	SimulatedTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_simulated_time_seconds",
			Help: "Current virtual time of the simulation in seconds",
		},
	)

	ActorsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_actors_total",
			Help: "Total number of actors by state",
		},
		[]string{"state"},
	)

	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_hosts_total",
			Help: "Total number of simulated hosts by power state",
		},
		[]string{"state"},
	)

	MessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_messages_delivered_total",
			Help: "Total number of mailbox messages delivered",
		},
	)

	MessagesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_messages_failed_total",
			Help: "Total number of mailbox operations failed by network errors",
		},
	)

	// Compute metrics
	JobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_jobs_submitted_total",
			Help: "Total number of standard jobs submitted",
		},
	)

	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_jobs_completed_total",
			Help: "Total number of standard jobs completed",
		},
	)

	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_jobs_failed_total",
			Help: "Total number of standard jobs failed",
		},
	)

	WorkUnitsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_workunits_dispatched_total",
			Help: "Total number of work units dispatched to executors",
		},
	)

	WorkUnitsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_workunits_retried_total",
			Help: "Total number of work units re-queued after an executor crash",
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_scheduling_latency_seconds",
			Help:    "Wall-clock time taken by one dispatch pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage metrics
	BytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_storage_bytes_written_total",
			Help: "Total simulated bytes written by storage service",
		},
		[]string{"service"},
	)

	BytesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_storage_bytes_read_total",
			Help: "Total simulated bytes read by storage service",
		},
		[]string{"service"},
	)

	FileCopies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_file_copies_total",
			Help: "Total number of file copies by outcome",
		},
		[]string{"outcome"},
	)

	// Failure fabric metrics
	HostFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_host_failures_total",
			Help: "Total number of simulated host shutdown events",
		},
	)

	LinkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_link_failures_total",
			Help: "Total number of simulated link shutdown events",
		},
	)

	ServiceCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_service_crashes_total",
			Help: "Total number of service crashes observed by termination detectors",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SimulatedTime)
	prometheus.MustRegister(ActorsTotal)
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(MessagesDelivered)
	prometheus.MustRegister(MessagesFailed)
	prometheus.MustRegister(JobsSubmitted)
	prometheus.MustRegister(JobsCompleted)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(WorkUnitsDispatched)
	prometheus.MustRegister(WorkUnitsRetried)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(BytesWritten)
	prometheus.MustRegister(BytesRead)
	prometheus.MustRegister(FileCopies)
	prometheus.MustRegister(HostFailures)
	prometheus.MustRegister(LinkFailures)
	prometheus.MustRegister(ServiceCrashes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
