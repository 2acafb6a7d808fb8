package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fieldsched/internal/opt"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the limiter
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
		[]string{"path"},
	)

	// WeekBuilds counts technician-week builds by strategy and outcome
	WeekBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_week_builds_total", Help: "Technician-week builds by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	// WeekBuildDuration records build wall time in seconds
	WeekBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "schedule_week_build_seconds", Help: "Technician-week build duration in seconds.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}},
		[]string{"strategy"},
	)
	// JobsPlaced counts newly placed jobs
	JobsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_jobs_placed_total", Help: "Jobs placed by week builds."},
		[]string{"strategy"},
	)
	// BuildWarnings counts warnings by reason code
	BuildWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_warnings_total", Help: "Build warnings by reason."},
		[]string{"reason"},
	)
	// AnnealGain tracks the fraction of route miles removed by annealing
	AnnealGain = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "schedule_anneal_gain_ratio", Help: "Share of route miles removed by annealing.", Buckets: []float64{0, 0.01, 0.05, 0.1, 0.2, 0.3, 0.5}},
	)
	// Commits counts commit attempts by outcome
	Commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_commits_total", Help: "Week commits by outcome."},
		[]string{"outcome"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func(){
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RateLimited)
		Registry.MustRegister(WeekBuilds)
		Registry.MustRegister(WeekBuildDuration)
		Registry.MustRegister(JobsPlaced)
		Registry.MustRegister(BuildWarnings)
		Registry.MustRegister(AnnealGain)
		Registry.MustRegister(Commits)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Scheduler records planner activity on the package collectors.
type Scheduler struct{}

func (Scheduler) BuildFinished(strategy string, d time.Duration, jobs int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	WeekBuilds.WithLabelValues(strategy, outcome).Inc()
	WeekBuildDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if err == nil {
		JobsPlaced.WithLabelValues(strategy).Add(float64(jobs))
	}
}

func (Scheduler) Warning(reason string) {
	BuildWarnings.WithLabelValues(reason).Inc()
}

func (Scheduler) Annealed(m opt.Metrics) {
	if m.InitialMiles <= 0 {
		return
	}
	AnnealGain.Observe((m.InitialMiles - m.BestMiles) / m.InitialMiles)
}

func (Scheduler) Committed(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	Commits.WithLabelValues(outcome).Inc()
}
