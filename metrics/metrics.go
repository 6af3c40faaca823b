package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "monsink"

// rotation triggers
const (
	TriggerSize  = "size"
	TriggerTime  = "time"
	TriggerClose = "close"
)

var (
	RecordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records appended to segments.",
		},
		[]string{"topic"},
	)
	RecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Redelivered records dropped by the offset guard.",
		},
		[]string{"topic"},
	)
	SegmentsRotated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rotated_total",
			Help:      "Segments finalized, by trigger.",
		},
		[]string{"topic", "trigger"},
	)
	CommittedOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "committed_offset",
			Help:      "Next offset to consume per topic/partition.",
		},
		[]string{"topic", "partition"},
	)
	WriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Storage errors by stage.",
		},
		[]string{"stage"},
	)
	WriteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_ms",
			Help:      "Duration of one partition write call in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsWritten,
		RecordsSkipped,
		SegmentsRotated,
		CommittedOffset,
		WriteErrors,
		WriteLatency,
	)
}
