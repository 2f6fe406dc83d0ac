package mempool

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusMempoolSize     prometheus.Gauge
	prometheusMempoolRemoved  *prometheus.CounterVec
	prometheusMempoolAccepted prometheus.Counter
	prometheusMempoolRejected *prometheus.CounterVec
	prometheusMempoolAccept   prometheus.Histogram
	prometheusOrphanPoolSize  prometheus.Gauge
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "mempool",
			Name:      "size",
			Help:      "Number of transactions in the mempool",
		},
	)

	prometheusMempoolRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "mempool",
			Name:      "removed",
			Help:      "Number of transactions removed from the mempool, by reason",
		},
		[]string{"reason"},
	)

	prometheusMempoolAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "mempool",
			Name:      "accepted",
			Help:      "Number of transactions accepted to the mempool",
		},
	)

	prometheusMempoolRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "mempool",
			Name:      "rejected",
			Help:      "Number of transactions rejected, by the stage they failed in",
		},
		[]string{"stage"},
	)

	prometheusMempoolAccept = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "mempool",
			Name:      "accept",
			Help:      "Histogram of running a transaction through mempool admission",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
	)

	prometheusOrphanPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "mempool",
			Name:      "orphans",
			Help:      "Number of transactions in the orphan pool",
		},
	)
}
