package tba

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for monitoring the chain.
var (
	committedTxs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of committed transactions",
			Name:      "committed_transactions_total",
			Namespace: "tba",
		},
		[]string{"method"},
	)
	revertedTxs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of reverted transactions",
			Name:      "reverted_transactions_total",
			Namespace: "tba",
		},
		[]string{"method"},
	)
	accountsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of bound accounts instantiated by registries",
			Name:      "accounts_created_total",
			Namespace: "tba",
		},
	)
	sequenceHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Sequence number of the last committed transaction",
			Name:      "sequence_height",
			Namespace: "tba",
		},
	)
)

func init() {
	prometheus.MustRegister(
		committedTxs,
		revertedTxs,
		accountsCreated,
		sequenceHeight,
	)
}

func updateCommitMetrics(method string, seq uint64) {
	committedTxs.WithLabelValues(method).Inc()
	sequenceHeight.Set(float64(seq))
}

func updateRevertMetrics(method string) {
	revertedTxs.WithLabelValues(method).Inc()
}
