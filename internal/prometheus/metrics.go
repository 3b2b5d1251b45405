package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	callPlacementBucketStart  = 0.1
	callPlacementBucketFactor = 2.0
	callPlacementBucketCount  = 10
)

const (
	turnDurationBucketStart  = 0.01
	turnDurationBucketFactor = 2.5
	turnDurationBucketCount  = 10
)

const (
	ResultPlaced   = "placed"
	ResultFailed   = "failed"
	ResultSkipped  = "skipped"
	ResultOK       = "ok"
	ResultFallback = "fallback"
)

var CallJobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "call_job_duration_seconds",
		Help: "Time taken to execute a call job",
		Buckets: prometheus.ExponentialBuckets(
			callPlacementBucketStart,
			callPlacementBucketFactor,
			callPlacementBucketCount,
		),
	},
	[]string{"result"},
)

var CallJobs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "call_jobs_total",
		Help: "Executed call jobs by outcome",
	},
	[]string{"result"},
)

var AdmissionDenied = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dispatch_admission_denied_total",
		Help: "Jobs requeued because the rate limiter denied admission",
	},
)

var AdmissionRejected = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dispatch_admission_rejected_total",
		Help: "Jobs given up after exhausting admission attempts",
	},
)

var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dispatch_queue_depth",
		Help: "Jobs waiting for admission",
	},
)

var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "dialogue_turn_duration_seconds",
		Help: "Time taken to handle one webhook turn",
		Buckets: prometheus.ExponentialBuckets(
			turnDurationBucketStart,
			turnDurationBucketFactor,
			turnDurationBucketCount,
		),
	},
	[]string{"state"},
)

var Summaries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "conversation_summaries_total",
		Help: "Generated summaries by outcome",
	},
	[]string{"result"},
)

var MinioOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "minio_operation_duration_seconds",
		Help:    "Duration of MinIO operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

var Recordings = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "call_recordings_total",
		Help: "Recording callbacks by outcome",
	},
	[]string{"result"},
)

var DeadLetterRedeliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deadletter_redeliveries_total",
		Help: "Dead lettered call jobs handed back to the dispatcher",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(CallJobDuration)
	prometheus.MustRegister(CallJobs)
	prometheus.MustRegister(AdmissionDenied)
	prometheus.MustRegister(AdmissionRejected)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(Summaries)
	prometheus.MustRegister(DeadLetterRedeliveries)
	prometheus.MustRegister(MinioOperationDuration)
	prometheus.MustRegister(Recordings)
}
