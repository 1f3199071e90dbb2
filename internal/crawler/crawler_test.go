package crawler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/webarchive/internal/archive"
	archiveconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	crawlerconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/crawler"
	"github.com/jonesrussell/north-cloud/webarchive/internal/crawler"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
	crawlerMock "github.com/jonesrussell/north-cloud/webarchive/testutils/mocks/crawler"
)

// newSite serves three linked pages.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":  `<html><body><a href="/a">a</a> <a href="/b">b</a> <a href="mailto:x@example.com">mail</a></body></html>`,
		"/a": `<html><body><a href="/">home</a></body></html>`,
		"/b": `<html><body><p>leaf</p></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func crawlerConfig() *crawlerconfig.Config {
	cfg := crawlerconfig.New()
	cfg.MaxDepth = 3
	return cfg
}

// captureSite crawls srv into a container and returns its URI.
func captureSite(t *testing.T, resolver *storage.Resolver, srv *httptest.Server) (string, *crawler.Result) {
	t.Helper()
	ctx := context.Background()

	cfg := archiveconfig.NewConfig()
	cfg.ExportURI = "mem://bucket/"
	cfg.StagingURI = "mem://staging/"
	cfg.Collection = "site"
	a, err := archive.NewArchiver(cfg, resolver, nil)
	require.NoError(t, err)

	c, err := crawler.New(crawlerConfig())
	require.NoError(t, err)
	res, conf, err := c.Capture(ctx, a, []string{srv.URL + "/"})
	require.NoError(t, err)
	require.NotNil(t, conf)
	return conf.URI, res
}

func openReplayer(t *testing.T, resolver *storage.Resolver, uri string, opts ...replay.Option) *replay.Replayer {
	t.Helper()
	col, err := wacz.OpenCollection(context.Background(), resolver, []string{uri}, wacz.ReadOptions{})
	require.NoError(t, err)
	r := replay.New(col, opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCrawler_CaptureThenReplay(t *testing.T) {
	t.Parallel()

	resolver := storage.NewResolver(storage.WithBackend(storage.SchemeMemory, storage.NewMemory()))
	srv := newSite(t)
	uri, captured := captureSite(t, resolver, srv)
	assert.Equal(t, 3, captured.Visited)
	assert.Zero(t, captured.Failed)

	archived, err := wacz.Open(context.Background(), resolver, uri, wacz.ReadOptions{})
	require.NoError(t, err)
	defer archived.Close()
	assert.Equal(t, 3, archived.Index().Len())

	// The live site is gone; every page must come from the container.
	srv.Close()

	r := openReplayer(t, resolver, uri, replay.WithStrict(true))
	c, err := crawler.New(crawlerConfig())
	require.NoError(t, err)
	res, err := c.Replay(context.Background(), r, []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Visited)
	assert.Zero(t, res.Failed)
}

func TestCrawler_Iterate(t *testing.T) {
	t.Parallel()

	resolver := storage.NewResolver(storage.WithBackend(storage.SchemeMemory, storage.NewMemory()))
	srv := newSite(t)
	uri, _ := captureSite(t, resolver, srv)
	srv.Close()

	tests := []struct {
		name        string
		filters     replay.Filters
		wantVisited int
		wantSkipped int
	}{
		{name: "every entry", wantVisited: 3},
		{
			name:        "disallowed entry is skipped",
			filters:     replay.Filters{Disallow: regexp.MustCompile(`/b$`)},
			wantVisited: 2,
			wantSkipped: 1,
		},
		{
			name:        "off-site entries are skipped",
			filters:     replay.Filters{AllowedDomains: []string{"example.org"}},
			wantVisited: 0,
			wantSkipped: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stats := metrics.New(prometheus.NewRegistry())
			r := openReplayer(t, resolver, uri, replay.WithFilters(tt.filters), replay.WithStats(stats))
			c, err := crawler.New(crawlerConfig(), crawler.WithFollowLinks(false))
			require.NoError(t, err)

			res, err := c.Iterate(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVisited, res.Visited)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
			assert.Zero(t, res.Failed)
			assert.InDelta(t, tt.wantVisited, testutil.ToFloat64(stats.StartRequestsTotal), 0)
		})
	}
}

func TestCrawler_RequiresStartURLs(t *testing.T) {
	t.Parallel()

	c, err := crawler.New(crawlerConfig())
	require.NoError(t, err)
	_, err = c.Replay(context.Background(), nil, nil)
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *crawlerconfig.Config
	}{
		{name: "nil config", cfg: nil},
		{name: "zero parallelism", cfg: &crawlerconfig.Config{Parallelism: 0}},
		{name: "bad regex", cfg: &crawlerconfig.Config{Parallelism: 1, DisallowRegex: "("}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := crawler.New(tt.cfg)
			require.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

func TestCaptureTransport_RecordsExchange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, "got %s", body)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name       string
		captureErr error
	}{
		{name: "captured"},
		{name: "capture failure does not fail the request", captureErr: apperrors.ErrState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			var tx *domain.Transaction
			capturer := crawlerMock.NewMockCapturer(ctrl)
			capturer.EXPECT().
				Capture(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, got *domain.Transaction) error {
					tx = got
					return tt.captureErr
				}).
				Times(1)
			client := &http.Client{Transport: crawler.NewCaptureTransport(nil, capturer, nil)}

			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/submit?x=1", strings.NewReader("a=1"))
			require.NoError(t, err)
			req.Header.Set("X-Test", "yes")
			resp, err := client.Do(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, "got a=1", string(body))

			require.NotNil(t, tx)
			assert.Equal(t, http.MethodPost, tx.Method)
			assert.Equal(t, srv.URL+"/submit?x=1", tx.URL)
			assert.Equal(t, "a=1", string(tx.RequestBody))
			assert.Equal(t, "Host", tx.RequestHeaders[0].Name)
			assert.Equal(t, "yes", tx.RequestHeaders.Get("X-Test"))
			assert.Equal(t, http.StatusCreated, tx.StatusCode)
			assert.Equal(t, "Created", tx.Reason)
			assert.Equal(t, "HTTP/1.1", tx.Protocol)
			assert.Equal(t, "got a=1", string(tx.ResponseBody))
			assert.Equal(t, "text/plain", tx.ContentType())
			assert.False(t, tx.CapturedAt.IsZero())
		})
	}
}
