// Package metrics provides the Prometheus counters for capture and replay.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace is the namespace for all webarchive metrics.
const MetricsNamespace = "webarchive"

// Lookup results.
const (
	LookupHit           = "hit"
	LookupNotFound      = "not_found"
	LookupNotRecognized = "not_recognized"
	LookupRangeError    = "range_error"
)

// Crawl skip reasons.
const (
	SkipOffSite    = "off_site"
	SkipDisallowed = "disallowed"
)

// Stats holds the capture and replay metrics. A nil *Stats discards
// everything.
type Stats struct {
	// Exporter
	RecordsTotal  *prometheus.CounterVec
	StatusTotal   *prometheus.CounterVec
	BytesWritten  prometheus.Counter
	ArchivesTotal prometheus.Counter

	// Replay
	LookupsTotal       *prometheus.CounterVec
	LookupDuration     prometheus.Histogram
	CrawlSkipTotal     *prometheus.CounterVec
	StartRequestsTotal prometheus.Counter
	IndexLinesSkipped  prometheus.Counter
}

// New creates and registers the metrics on reg.
func New(reg prometheus.Registerer) *Stats {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	s := &Stats{}
	s.initExporterMetrics(factory)
	s.initReplayMetrics(factory)
	return s
}

func (s *Stats) initExporterMetrics(factory promauto.Factory) {
	s.RecordsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "exporter",
			Name:      "records_total",
			Help:      "Total number of WARC records written",
		},
		[]string{"type"},
	)

	s.StatusTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "exporter",
			Name:      "status_total",
			Help:      "Captured responses by HTTP status",
		},
		[]string{"status"},
	)

	s.BytesWritten = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "exporter",
			Name:      "container_bytes_total",
			Help:      "Bytes of packaged containers uploaded",
		},
	)

	s.ArchivesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "exporter",
			Name:      "containers_total",
			Help:      "Total number of containers uploaded",
		},
	)
}

func (s *Stats) initReplayMetrics(factory promauto.Factory) {
	s.LookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "replay",
			Name:      "lookups_total",
			Help:      "Archive lookups by result",
		},
		[]string{"result"},
	)

	s.LookupDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "replay",
			Name:      "lookup_duration_seconds",
			Help:      "Time to find and read an archived response",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
		},
	)

	s.CrawlSkipTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "replay",
			Name:      "crawl_skip_total",
			Help:      "Requests skipped during archive iteration",
		},
		[]string{"reason"},
	)

	s.StartRequestsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "replay",
			Name:      "start_requests_total",
			Help:      "Start requests produced from archive indexes",
		},
	)

	s.IndexLinesSkipped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "index",
			Name:      "lines_skipped_total",
			Help:      "Malformed index lines skipped while loading containers",
		},
	)
}

// RecordWritten counts a written record of the given WARC type.
func (s *Stats) RecordWritten(recordType string) {
	if s == nil {
		return
	}
	s.RecordsTotal.WithLabelValues(recordType).Inc()
}

// ResponseStatus counts a captured response status.
func (s *Stats) ResponseStatus(code int) {
	if s == nil {
		return
	}
	s.StatusTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ContainerUploaded counts an uploaded container of n bytes.
func (s *Stats) ContainerUploaded(n int64) {
	if s == nil {
		return
	}
	s.ArchivesTotal.Inc()
	s.BytesWritten.Add(float64(n))
}

// Lookup counts a lookup result and its duration.
func (s *Stats) Lookup(result string, d time.Duration) {
	if s == nil {
		return
	}
	s.LookupsTotal.WithLabelValues(result).Inc()
	s.LookupDuration.Observe(d.Seconds())
}

// CrawlSkip counts a skipped request.
func (s *Stats) CrawlSkip(reason string) {
	if s == nil {
		return
	}
	s.CrawlSkipTotal.WithLabelValues(reason).Inc()
}

// StartRequest counts an emitted start request.
func (s *Stats) StartRequest() {
	if s == nil {
		return
	}
	s.StartRequestsTotal.Inc()
}

// IndexLineSkipped counts a malformed index line.
func (s *Stats) IndexLineSkipped() {
	if s == nil {
		return
	}
	s.IndexLinesSkipped.Inc()
}
