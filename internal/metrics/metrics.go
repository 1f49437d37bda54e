package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backend"

var (
	// Function call metrics

	CallPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_pickup_latency_seconds",
		Help:      "Time from call insertion to a worker being leased for it.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	CallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Duration of a function call's subprocess roundtrip.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"function_name", "status"})

	CallsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calls_in_flight",
		Help:      "Number of function calls currently RUNNING.",
	})

	CallsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_completed_total",
		Help:      "Total function calls reaching a terminal state, by outcome.",
	}, []string{"function_name", "status"})

	// Process Pool metrics

	PoolWorkersSpawnedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_workers_spawned_total",
		Help:      "Total subprocess workers spawned, by function.",
	}, []string{"function_name"})

	PoolWorkersIdle = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_workers_idle",
		Help:      "Current IDLE worker count per (function, version) pool.",
	}, []string{"function_name", "version_id"})

	PoolLeaseWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pool_lease_wait_seconds",
		Help:      "Time a lease request spent blocked before a worker was available.",
		Buckets:   prometheus.DefBuckets,
	})

	// Counter Store metrics

	CounterRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "counter_rejections_total",
		Help:      "Total try_acquire refusals, by counter key class.",
	}, []string{"key_class"})

	// Scheduler metrics

	SchedulerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_tick_duration_seconds",
		Help:      "Time taken for one scheduler tick's claim-and-fire pass.",
		Buckets:   prometheus.DefBuckets,
	})

	SchedulerFiresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_fires_total",
		Help:      "Total schedules fired by the dispatcher.",
	})

	// Process lifecycle

	ProcessStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp when this process started.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		CallPickupLatency,
		CallDuration,
		CallsInFlight,
		CallsCompletedTotal,
		PoolWorkersSpawnedTotal,
		PoolWorkersIdle,
		PoolLeaseWait,
		CounterRejectionsTotal,
		SchedulerTickDuration,
		SchedulerFiresTotal,
		ProcessStartTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
