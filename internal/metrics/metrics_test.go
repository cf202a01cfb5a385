package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vod-segment-downloader/internal/pipeline"
)

func TestRecordSegment(t *testing.T) {
	okBefore := testutil.ToFloat64(SegmentsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(SegmentsTotal.WithLabelValues("error"))
	bytesBefore := testutil.ToFloat64(SegmentBytesTotal)

	RecordSegment(1024, 20*time.Millisecond, nil)
	RecordSegment(0, 5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(SegmentsTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(SegmentsTotal.WithLabelValues("error")))
	assert.Equal(t, bytesBefore+1024, testutil.ToFloat64(SegmentBytesTotal))
}

func TestRecordProbe(t *testing.T) {
	before := testutil.ToFloat64(ManifestProbesTotal.WithLabelValues("error", "404"))
	RecordProbe("https://cdn.example.com/x/master.m3u8", 404, false)
	assert.Equal(t, before+1, testutil.ToFloat64(ManifestProbesTotal.WithLabelValues("error", "404")))
}

func TestObserverTracksJobLifecycle(t *testing.T) {
	o := Observer()
	inFlight := testutil.ToFloat64(JobsInFlight)
	completed := testutil.ToFloat64(JobsTotal.WithLabelValues("completed", ""))
	failed := testutil.ToFloat64(JobsTotal.WithLabelValues("failed", "SegmentFetchFailed"))

	o.OnEvent(pipeline.Event{Type: pipeline.EventState, From: pipeline.StateIdle, To: pipeline.StateResolving})
	assert.Equal(t, inFlight+1, testutil.ToFloat64(JobsInFlight))

	o.OnEvent(pipeline.Event{Type: pipeline.EventState, From: pipeline.StateAssembling, To: pipeline.StateCompleted})
	o.OnEvent(pipeline.Event{Type: pipeline.EventComplete, ArtifactName: "a.ts"})
	assert.Equal(t, inFlight, testutil.ToFloat64(JobsInFlight))
	assert.Equal(t, completed+1, testutil.ToFloat64(JobsTotal.WithLabelValues("completed", "")))

	// Validation failures never enter flight
	o.OnEvent(pipeline.Event{Type: pipeline.EventState, From: pipeline.StateIdle, To: pipeline.StateFailed})
	assert.Equal(t, inFlight, testutil.ToFloat64(JobsInFlight))

	o.OnEvent(pipeline.Event{
		Type: pipeline.EventError,
		Err:  pipeline.NewPipelineError(pipeline.ErrorTypeSegmentFetchFailed, "", nil),
	})
	assert.Equal(t, failed+1, testutil.ToFloat64(JobsTotal.WithLabelValues("failed", "SegmentFetchFailed")))
}

func TestPromhttpExposure(t *testing.T) {
	RecordProbe("", 200, true)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body strings.Builder
	_, err = io.Copy(&body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "vodseg_manifest_probes_total")
}
