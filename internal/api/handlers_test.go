package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/webarchive/internal/api"
	serverconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/server"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

var captureTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	gin.SetMode(gin.ReleaseMode)
	os.Exit(m.Run())
}

func page(url, body string) *domain.Transaction {
	return &domain.Transaction{
		Method:          http.MethodGet,
		URL:             url,
		StatusCode:      http.StatusOK,
		ResponseHeaders: domain.Header{{Name: "Content-Type", Value: "text/html"}},
		ResponseBody:    []byte(body),
		CapturedAt:      captureTime,
	}
}

// newRouter archives three pages and serves them.
func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	ctx := context.Background()
	resolver := storage.NewResolver(storage.WithBackend(storage.SchemeMemory, storage.NewMemory()))

	w, err := wacz.OpenWriter(ctx, resolver, "mem://staging/", wacz.Options{Collection: "api", Hostname: "host"})
	require.NoError(t, err)
	for _, tx := range []*domain.Transaction{
		page("https://example.com/", "<p>home</p>"),
		page("https://example.com/about", "<p>about</p>"),
		page("https://example.com/news?page=1", "<p>news</p>"),
	} {
		_, err = w.Write(ctx, tx)
		require.NoError(t, err)
	}
	m, err := w.Finalize(ctx)
	require.NoError(t, err)
	conf, err := wacz.NewPackager(resolver, wacz.PackOptions{Collection: "api", Start: captureTime}).
		Pack(ctx, m.RecordsURIs(), m.IndexURIs(), "mem://bucket/api.wacz")
	require.NoError(t, err)

	col, err := wacz.OpenCollection(ctx, resolver, []string{conf.URI}, wacz.ReadOptions{})
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	r := replay.New(col, replay.WithStats(metrics.New(reg)))
	t.Cleanup(func() { _ = r.Close() })

	srv := api.NewServer(serverconfig.NewConfig(), logger.NewNop(), api.NewHandler(r, reg, "test", nil).RegisterRoutes)
	return srv.Router()
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, target, http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := get(t, newRouter(t), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.InDelta(t, 3, body["entries"], 0)
	assert.InDelta(t, 1, body["containers"], 0)
}

func TestRequestID_Propagated(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/health", http.NoBody)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	newRouter(t).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestIndex_Paging(t *testing.T) {
	t.Parallel()
	router := newRouter(t)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{name: "default page", query: "", wantCode: http.StatusOK, wantCount: 3},
		{name: "limit", query: "?limit=2", wantCode: http.StatusOK, wantCount: 2},
		{name: "offset", query: "?offset=2&limit=2", wantCode: http.StatusOK, wantCount: 1},
		{name: "offset past end", query: "?offset=10", wantCode: http.StatusOK, wantCount: 0},
		{name: "max int offset", query: "?offset=9223372036854775807&limit=500", wantCode: http.StatusOK, wantCount: 0},
		{name: "max int limit", query: "?offset=1&limit=9223372036854775807", wantCode: http.StatusOK, wantCount: 2},
		{name: "bad offset", query: "?offset=x", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := get(t, router, "/api/v1/index"+tt.query)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp api.IndexResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 3, resp.Total)
			assert.Len(t, resp.Entries, tt.wantCount)
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	router := newRouter(t)

	tests := []struct {
		name         string
		url          string
		wantCode     int
		wantStrategy string
		wantURL      string
	}{
		{name: "exact", url: "https://example.com/about", wantCode: http.StatusOK, wantStrategy: "exact", wantURL: "https://example.com/about"},
		{name: "query ignored", url: "https://example.com/news?page=2", wantCode: http.StatusOK, wantStrategy: "same_url_ignoring_query", wantURL: "https://example.com/news?page=1"},
		{name: "not archived", url: "https://example.org/", wantCode: http.StatusNotFound},
		{name: "missing url", url: "", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			target := "/api/v1/lookup"
			if tt.url != "" {
				target += "?url=" + tt.url
			}
			rec := get(t, router, strings.ReplaceAll(target, "news?page", "news%3Fpage"))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp api.LookupResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStrategy, resp.Strategy)
			assert.Equal(t, tt.wantURL, resp.Entry.URL)
			assert.Equal(t, http.MethodGet, resp.Entry.Method)
		})
	}
}

func TestReplay(t *testing.T) {
	t.Parallel()
	router := newRouter(t)

	rec := get(t, router, "/api/v1/replay?url=https://example.com/")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<p>home</p>", resp.Body)
	assert.Equal(t, []string{"text/html"}, resp.Headers["Content-Type"])
	assert.True(t, captureTime.Equal(resp.CapturedAt))

	rec = get(t, router, "/api/v1/replay?url=https://example.net/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	router := newRouter(t)

	for i := range 2 {
		get(t, router, fmt.Sprintf("/api/v1/replay?url=https://example.com/&n=%d", i))
	}
	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `webarchive_replay_lookups_total{result="hit"} 2`)
}
