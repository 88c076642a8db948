package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compression metrics
var (
	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_compressions_total",
			Help: "Total number of compression requests by outcome",
		},
		[]string{"status"}, // "success", "failed"
	)

	CompressionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squeeze_compression_duration_seconds",
			Help:    "Wall-clock duration of successful compressions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"encoder"},
	)

	CompressionRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "squeeze_compression_ratio",
			Help:    "Input size divided by output size for successful compressions",
			Buckets: []float64{1, 1.5, 2, 3, 5, 10, 20, 50, 100},
		},
	)

	CompressionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "squeeze_compressions_in_flight",
			Help: "Number of compressions currently running",
		},
	)

	TargetOvershootTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "squeeze_target_overshoot_total",
			Help: "Compressions whose output exceeded the requested size",
		},
	)
)

// Encoder and fallback metrics
var (
	EncoderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_encoder_attempts_total",
			Help: "Encoder attempts by encoder and outcome",
		},
		[]string{"encoder", "status"},
	)

	EncoderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_encoder_failures_total",
			Help: "Recorded encoder failures by encoder",
		},
		[]string{"encoder"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_fallbacks_total",
			Help: "Encoder swaps between attempts",
		},
		[]string{"from", "to"},
	)

	RecoveryStrategiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_recovery_strategies_total",
			Help: "Classified encoder errors by recovery strategy",
		},
		[]string{"strategy"},
	)
)

// Hardware and worker metrics
var (
	EncodersAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "squeeze_encoders_available",
			Help: "Detected encoders (1 when available)",
		},
		[]string{"encoder", "vendor"},
	)

	HardwareProbeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_hardware_probe_errors_total",
			Help: "Vendor probes that failed for a reason other than absent hardware",
		},
		[]string{"probe"},
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "squeeze_job_queue_depth",
			Help: "Number of jobs waiting to be processed",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squeeze_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
