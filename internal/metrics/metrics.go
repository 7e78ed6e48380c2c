// Package metrics provides Prometheus metrics for the mvad pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Shard status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Dropped segment reason label values.
const (
	ReasonBoundary = "boundary"
	ReasonSilence  = "silence"
)

var (
	// filesTotal counts file records leaving the merge stage.
	// Labels:
	//   - speech: "true" for files with VAD segments, "false" for speechless files
	filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvad_files_total",
			Help: "Total number of file records processed",
		},
		[]string{"speech"},
	)

	// segmentsDroppedTotal counts VAD segments removed by the sample filter.
	// Labels:
	//   - reason: "boundary" or "silence"
	segmentsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvad_segments_dropped_total",
			Help: "Total number of VAD segments dropped before chunk merging",
		},
		[]string{"reason"},
	)

	// chunksTotal counts chunks produced per chunking kind.
	chunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvad_chunks_total",
			Help: "Total number of merged chunks produced",
		},
		[]string{"kind"},
	)

	// chunkDuration records merged chunk durations per chunking kind.
	// Buckets: 1s .. 60s, the range chunk caps operate in.
	chunkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mvad_chunk_duration_seconds",
			Help:    "Duration of merged chunks in seconds",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30, 45, 60},
		},
		[]string{"kind"},
	)

	// shardsTotal counts shard runs by outcome.
	shardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvad_shards_total",
			Help: "Total number of shards processed",
		},
		[]string{"status"},
	)

	// httpRequestsTotal counts job API requests.
	// Labels:
	//   - route: the matched ServeMux pattern, "unmatched" otherwise
	//   - status: HTTP status code
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvad_http_requests_total",
			Help: "Total number of job API requests",
		},
		[]string{"route", "status"},
	)

	// httpRequestDuration records job API latency per route.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mvad_http_request_duration_seconds",
			Help:    "Duration of job API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// shardDuration records wall time per shard run.
	shardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mvad_shard_duration_seconds",
			Help:    "Duration of shard processing in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(filesTotal)
	prometheus.MustRegister(segmentsDroppedTotal)
	prometheus.MustRegister(chunksTotal)
	prometheus.MustRegister(chunkDuration)
	prometheus.MustRegister(shardsTotal)
	prometheus.MustRegister(shardDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

// RecordFile records a merged file record.
func RecordFile(hasSpeech bool) {
	label := "false"
	if hasSpeech {
		label = "true"
	}
	filesTotal.WithLabelValues(label).Inc()
}

// RecordDroppedSegments records n segments dropped for reason.
func RecordDroppedSegments(reason string, n int) {
	if n <= 0 {
		return
	}
	segmentsDroppedTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordChunk records one merged chunk of the given kind.
func RecordChunk(kind string, seconds float64) {
	chunksTotal.WithLabelValues(kind).Inc()
	chunkDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordShard records a finished shard run.
func RecordShard(status string, d time.Duration) {
	shardsTotal.WithLabelValues(status).Inc()
	shardDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records a served job API request.
func RecordHTTPRequest(route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// WriteTextfile writes all registered metrics to path in the text
// exposition format, for pickup by the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
