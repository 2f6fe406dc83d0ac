package blockchain

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainStateHeight         prometheus.Gauge
	prometheusChainStateConnectTip     prometheus.Histogram
	prometheusChainStateDisconnectTip  prometheus.Histogram
	prometheusChainStateReorgs         prometheus.Counter
	prometheusChainStateInvalidBlocks  prometheus.Counter
	prometheusChainStateFlushes        *prometheus.CounterVec
	prometheusChainStateCoinCacheBytes prometheus.Gauge
	prometheusChainStatePrunedFiles    prometheus.Counter
	prometheusChainStateFlushDuration  prometheus.Histogram
	prometheusChainStateBlockSize      prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainStateHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "height",
			Help:      "Height of the active chain tip",
		},
	)

	prometheusChainStateConnectTip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "connect_tip",
			Help:      "Histogram of connecting a block to the active chain",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusChainStateDisconnectTip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "disconnect_tip",
			Help:      "Histogram of disconnecting the tip of the active chain",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusChainStateReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "reorgs",
			Help:      "Number of chain reorganisations",
		},
	)

	prometheusChainStateInvalidBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "invalid_blocks",
			Help:      "Number of blocks marked invalid",
		},
	)

	prometheusChainStateFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "flushes",
			Help:      "Number of chain state writes, by kind",
		},
		[]string{"kind"},
	)

	prometheusChainStateCoinCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "coin_cache_bytes",
			Help:      "Approximate memory used by the coin cache",
		},
	)

	prometheusChainStatePrunedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "pruned_files",
			Help:      "Number of block files pruned",
		},
	)

	prometheusChainStateFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "coin_flush_duration",
			Help:      "Histogram of writing the coin cache to the coin database",
			Buckets:   util.MetricsBucketsSeconds,
		},
	)

	prometheusChainStateBlockSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "chain",
			Name:      "connected_block_size",
			Help:      "Size in bytes of blocks connected to the active chain",
			Buckets:   util.MetricsBucketsSize,
		},
	)
}
