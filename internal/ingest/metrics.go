package ingest

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricPagesDecoded   = "pages_decoded_total"
	MetricBundlesApplied = "bundles_applied_total"
	MetricBundlesSkipped = "bundles_skipped_total"
	MetricBatches        = "batches_total"
	MetricFlushes        = "flushes_total"
	MetricFlushDuration  = "flush_duration_seconds"
	MetricStagingBytes   = "staging_bytes"
)

var pagesDecoded = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "twittersphere",
		Name:      MetricPagesDecoded,
		Help:      "Pages decoded by the worker pool.",
	},
)

var bundlesApplied = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "twittersphere",
		Name:      MetricBundlesApplied,
		Help:      "Bundles written to a staging generation.",
	},
)

var bundlesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "twittersphere",
		Name:      MetricBundlesSkipped,
		Help:      "Pages skipped under the skip error policy.",
	},
	[]string{
		"stage",
	},
)

var batchesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "twittersphere",
		Name:      MetricBatches,
		Help:      "Decoded batches drained by the writer.",
	},
)

var flushesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "twittersphere",
		Name:      MetricFlushes,
		Help:      "Generations merged into the target store.",
	},
)

var flushDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "twittersphere",
		Name:      MetricFlushDuration,
		Help:      "Time spent merging one generation.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	},
)

var stagingBytes = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "twittersphere",
		Name:      MetricStagingBytes,
		Help:      "Size of the open staging generation.",
	},
)

func init() {
	prometheus.MustRegister(pagesDecoded)
	prometheus.MustRegister(bundlesApplied)
	prometheus.MustRegister(bundlesSkipped)
	prometheus.MustRegister(batchesTotal)
	prometheus.MustRegister(flushesTotal)
	prometheus.MustRegister(flushDuration)
	prometheus.MustRegister(stagingBytes)
}
