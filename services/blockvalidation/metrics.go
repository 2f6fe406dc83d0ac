// Package blockvalidation implements the consensus checks of blocks and the state
// transition a block applies to the UTXO set.
//
// The checks come in two groups. CheckBlockHeader and CheckBlock only look at the
// block itself and run before anything else. ContextualCheckBlockHeader and
// ContextualCheckBlock need the parent entry of the block tree: difficulty, median
// time past, checkpoints, version bits and height based rules.
//
// ConnectBlock resolves every input against a coin view, verifies the scripts of
// the whole block in parallel and, when everything passed, applies the block to
// the view and returns its undo data. DisconnectBlock reverses it from that undo
// data.
package blockvalidation

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBlockValidationCheckBlock      prometheus.Histogram
	prometheusBlockValidationConnectBlock    prometheus.Histogram
	prometheusBlockValidationDisconnectBlock prometheus.Histogram
	prometheusBlockValidationInvalidBlocks   *prometheus.CounterVec
	prometheusBlockValidationConnectedTxs    prometheus.Counter
	prometheusBlockValidationUncleanUndo     prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

// initPrometheusMetrics initializes all the Prometheus metrics for the blockvalidation package.
// It uses sync.Once so metrics are registered once no matter how many validators are created.
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBlockValidationCheckBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "check_block",
			Help:      "Histogram of the context free checks of a block",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationConnectBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "connect_block",
			Help:      "Histogram of connecting a block to the coin view, script checks included",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationDisconnectBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "disconnect_block",
			Help:      "Histogram of disconnecting a block from the coin view",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationInvalidBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "invalid_blocks",
			Help:      "Number of blocks rejected, by reject reason",
		},
		[]string{"reason"},
	)

	prometheusBlockValidationConnectedTxs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "connected_txs",
			Help:      "Number of transactions applied to the coin view by connected blocks",
		},
	)

	prometheusBlockValidationUncleanUndo = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "unclean_disconnects",
			Help:      "Number of disconnected blocks whose undo data did not match the coin view",
		},
	)
}
