package validator

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusScriptCheckBatch    prometheus.Histogram
	prometheusScriptChecks        prometheus.Counter
	prometheusScriptCheckFailures prometheus.Counter
	prometheusScriptCacheHits     prometheus.Counter
	prometheusCheckInputs         prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusScriptCheckBatch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "validator",
			Name:      "script_check_batch",
			Help:      "Histogram of running a batch of script checks",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusScriptChecks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "validator",
			Name:      "script_checks",
			Help:      "Number of input scripts submitted for verification",
		},
	)

	prometheusScriptCheckFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "validator",
			Name:      "script_check_failures",
			Help:      "Number of script check batches that failed",
		},
	)

	prometheusScriptCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "validator",
			Name:      "script_cache_hits",
			Help:      "Number of transactions whose scripts were skipped thanks to the script cache",
		},
	)

	prometheusCheckInputs = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "validator",
			Name:      "check_inputs",
			Help:      "Histogram of checking the inputs of a transaction against the coin view",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
	)
}
