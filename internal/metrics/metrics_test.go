package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
)

func TestStats_Counters(t *testing.T) {
	t.Parallel()

	s := metrics.New(prometheus.NewRegistry())

	s.RecordWritten("response")
	s.RecordWritten("response")
	s.RecordWritten("request")
	s.ResponseStatus(200)
	s.ResponseStatus(404)
	s.ResponseStatus(200)
	s.ContainerUploaded(1024)
	s.Lookup(metrics.LookupHit, time.Millisecond)
	s.Lookup(metrics.LookupNotFound, time.Millisecond)
	s.CrawlSkip(metrics.SkipOffSite)
	s.StartRequest()
	s.IndexLineSkipped()

	assert.InDelta(t, 2, testutil.ToFloat64(s.RecordsTotal.WithLabelValues("response")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.RecordsTotal.WithLabelValues("request")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(s.StatusTotal.WithLabelValues("200")), 0)
	assert.InDelta(t, 1024, testutil.ToFloat64(s.BytesWritten), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.LookupsTotal.WithLabelValues(metrics.LookupHit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.CrawlSkipTotal.WithLabelValues(metrics.SkipOffSite)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.StartRequestsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.IndexLinesSkipped), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(s.LookupDuration))
}

func TestStats_NilIsNoop(t *testing.T) {
	t.Parallel()

	var s *metrics.Stats
	assert.NotPanics(t, func() {
		s.RecordWritten("response")
		s.ResponseStatus(200)
		s.ContainerUploaded(1)
		s.Lookup(metrics.LookupHit, 0)
		s.CrawlSkip(metrics.SkipDisallowed)
		s.StartRequest()
		s.IndexLineSkipped()
	})
}
