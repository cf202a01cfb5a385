// Package metrics exposes Prometheus counters for download jobs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vod-segment-downloader/internal/pipeline"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodseg_jobs_total",
		Help: "Finished download jobs by result and error type",
	}, []string{"result", "error_type"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodseg_jobs_in_flight",
		Help: "Download jobs that have started but not finished",
	})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodseg_state_transitions_total",
		Help: "Job state transitions by target state",
	}, []string{"state"})

	SegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodseg_segments_total",
		Help: "Segment requests by outcome",
	}, []string{"result"})

	SegmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodseg_segment_bytes_total",
		Help: "Bytes of segment payload downloaded",
	})

	SegmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vodseg_segment_fetch_seconds",
		Help:    "Latency of individual segment requests",
		Buckets: prometheus.DefBuckets,
	})

	ManifestProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodseg_manifest_probes_total",
		Help: "Manifest candidate requests by outcome and HTTP status",
	}, []string{"result", "status"})
)

// RecordSegment records one finished segment request
func RecordSegment(bytes int, elapsed time.Duration, err error) {
	SegmentDuration.Observe(elapsed.Seconds())
	if err != nil {
		SegmentsTotal.WithLabelValues("error").Inc()
		return
	}
	SegmentsTotal.WithLabelValues("ok").Inc()
	SegmentBytesTotal.Add(float64(bytes))
}

// RecordProbe records one manifest candidate request
func RecordProbe(_ string, status int, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	ManifestProbesTotal.WithLabelValues(result, strconv.Itoa(status)).Inc()
}

// Observer returns a pipeline observer that keeps job metrics current
func Observer() pipeline.Observer {
	return pipeline.ObserverFunc(func(e pipeline.Event) {
		switch e.Type {
		case pipeline.EventState:
			StateTransitionsTotal.WithLabelValues(e.To.String()).Inc()
			if e.From == pipeline.StateIdle && !e.To.Terminal() {
				JobsInFlight.Inc()
			}
			if e.To.Terminal() && e.From != pipeline.StateIdle {
				JobsInFlight.Dec()
			}
		case pipeline.EventComplete:
			JobsTotal.WithLabelValues("completed", "").Inc()
		case pipeline.EventError:
			errorType := pipeline.ErrorTypeUnknown.String()
			if e.Err != nil {
				errorType = e.Err.Type.String()
			}
			JobsTotal.WithLabelValues("failed", errorType).Inc()
		}
	})
}

// Options returns the downloader options that feed these metrics
func Options() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithObserver(Observer()),
		pipeline.WithSegmentObserver(RecordSegment),
		pipeline.WithProbeObserver(RecordProbe),
	}
}
