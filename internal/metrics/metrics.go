package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Payments
	STKPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_stk_push_total",
			Help: "STK push attempts by outcome",
		},
		[]string{"outcome"}, // accepted|rejected|auth_error
	)
	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_callbacks_total",
			Help: "STK callbacks by the lookup that matched them",
		},
		[]string{"match"}, // merchant_request_id|checkout_request_id|phone_amount|unmatched|malformed|error
	)
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_settled_total",
			Help: "Transactions moved out of pending",
		},
		[]string{"status"},
	)
	ReconciliationMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mpesa_reconciliation_mismatch_total",
			Help: "Callbacks that matched no transaction",
		},
	)
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpesa_gateway_request_seconds",
			Help:    "Daraja request latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"call"}, // oauth|stkpush
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			STKPushes,
			CallbacksTotal,
			SettlementsTotal,
			ReconciliationMismatches,
			GatewayLatency,
			WorkerQueueDepth,
		)
	})
}
