package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_ingest_cycles_total",
		Help: "Total number of ingestion cycles that reached a terminal state, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_ingest_stage_duration_seconds",
		Help:    "Duration of ingestion pipeline stages",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesReassembledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_ingest_frames_reassembled_total",
		Help: "Total number of video-derived frames merged into result collections",
	})

	EntriesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_ingest_archive_entries_decoded_total",
		Help: "Archive entries decoded during reassembly, by result",
	}, []string{"result"})

	ActiveCycles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_ingest_active_cycles",
		Help: "Number of ingestion cycles currently submitting or merging",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_ingest_retry_total",
		Help: "Total number of requeued ingestion requests",
	}, []string{"attempt"})

	ExtractionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_extractd_requests_total",
		Help: "Frame extraction requests served, by HTTP status",
	}, []string{"status"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_extractd_frames_extracted_total",
		Help: "Total number of frames extracted across all requests",
	})
)
