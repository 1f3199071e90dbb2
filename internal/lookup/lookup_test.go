package lookup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/lookup"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
	lookupMock "github.com/jonesrussell/north-cloud/webarchive/testutils/mocks/lookup"
)

func entry(t *testing.T, method, url, ts, name string) *cdxj.Entry {
	t.Helper()
	key, err := cdxj.Canonicalize(method, url, nil)
	require.NoError(t, err)
	return &cdxj.Entry{
		SURT:      key.SURT,
		Timestamp: ts,
		URL:       url,
		Method:    key.Method,
		Status:    200,
		Locator:   cdxj.Locator{Filename: name, Offset: 0, Length: 1},
	}
}

func testIndex(t *testing.T) *wacz.Index {
	t.Helper()
	return wacz.NewIndex([]*cdxj.Entry{
		entry(t, "GET", "http://example.com/page", "20240101000000", "page-old"),
		entry(t, "GET", "http://example.com/page", "20240601000000", "page-new"),
		entry(t, "GET", "http://example.com/news?id=7", "20240101000000", "news-7"),
		entry(t, "GET", "http://example.com/docs/intro/getting-started", "20240101000000", "docs-long"),
		entry(t, "GET", "http://example.com/docs/intro", "20240101000000", "docs-short"),
		entry(t, "POST", "http://example.com/search", "20240101000000", "search-post"),
	})
}

func TestPolicy_Find(t *testing.T) {
	t.Parallel()

	policy := lookup.New(testIndex(t))

	tests := []struct {
		name         string
		req          lookup.Request
		wantFile     string
		wantStrategy lookup.Strategy
	}{
		{
			name:         "exact match serves newest capture",
			req:          lookup.Request{Method: "GET", URL: "http://EXAMPLE.com/page"},
			wantFile:     "page-new",
			wantStrategy: lookup.StrategyExact,
		},
		{
			name:         "head is looked up like get",
			req:          lookup.Request{Method: "HEAD", URL: "http://example.com/page/"},
			wantFile:     "page-new",
			wantStrategy: lookup.StrategyExact,
		},
		{
			name:         "extra query falls back to same url",
			req:          lookup.Request{Method: "GET", URL: "http://example.com/page?utm=1"},
			wantFile:     "page-new",
			wantStrategy: lookup.StrategySameURLIgnoringQuery,
		},
		{
			name:         "different query falls back to same url",
			req:          lookup.Request{Method: "GET", URL: "http://example.com/news?id=8"},
			wantFile:     "news-7",
			wantStrategy: lookup.StrategySameURLIgnoringQuery,
		},
		{
			name:         "prefix prefers closest stored url",
			req:          lookup.Request{Method: "GET", URL: "http://example.com/docs/in"},
			wantFile:     "docs-short",
			wantStrategy: lookup.StrategyURLPrefix,
		},
		{
			name:         "post with another body falls back to same url",
			req:          lookup.Request{Method: "POST", URL: "http://example.com/search", Body: []byte("q=go")},
			wantFile:     "search-post",
			wantStrategy: lookup.StrategySameURLIgnoringQuery,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := policy.Find(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, m.Entry.Locator.Filename)
			assert.Equal(t, tt.wantStrategy, m.Strategy)
		})
	}
}

func TestPolicy_NotFound(t *testing.T) {
	t.Parallel()

	policy := lookup.New(testIndex(t))

	tests := []struct {
		name string
		req  lookup.Request
	}{
		{name: "unknown path", req: lookup.Request{Method: "GET", URL: "http://example.com/other"}},
		{name: "other host", req: lookup.Request{Method: "GET", URL: "http://example.org/page"}},
		{name: "method mismatch", req: lookup.Request{Method: "PUT", URL: "http://example.com/search"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := policy.Find(tt.req)
			require.ErrorIs(t, err, lookup.ErrNotFound)
			require.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestPolicy_WithoutComparators(t *testing.T) {
	t.Parallel()

	policy := lookup.New(testIndex(t), lookup.WithComparators())
	_, err := policy.Find(lookup.Request{Method: "GET", URL: "http://example.com/page?utm=1"})
	require.ErrorIs(t, err, lookup.ErrNotFound)
}

func TestPolicy_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := lookup.New(testIndex(t)).Find(lookup.Request{URL: "/relative"})
	require.ErrorIs(t, err, apperrors.ErrCodec)
}

func TestPolicy_FirstInIndexOrderWinsTies(t *testing.T) {
	t.Parallel()

	idx := wacz.NewIndex([]*cdxj.Entry{
		entry(t, "GET", "http://example.com/a?x=2", "20240101000000", "x2"),
		entry(t, "GET", "http://example.com/a?x=1", "20240101000000", "x1"),
	})
	m, err := lookup.New(idx).Find(lookup.Request{URL: "http://example.com/a?y=1"})
	require.NoError(t, err)
	assert.Equal(t, "x1", m.Entry.Locator.Filename, "index order is sorted by key")
}

func TestPolicy_HeadCaptureDoesNotAnswerGet(t *testing.T) {
	t.Parallel()

	get := entry(t, "GET", "http://example.com/page", "20240101000000", "page-get")
	head := entry(t, "HEAD", "http://example.com/page", "20240601000000", "page-head")
	other := entry(t, "HEAD", "http://example.com/other", "20240601000000", "other-head")

	tests := []struct {
		name         string
		req          lookup.Request
		wantFile     string
		wantStrategy lookup.Strategy
	}{
		{
			name:         "get skips newer head capture",
			req:          lookup.Request{Method: "GET", URL: "http://example.com/page"},
			wantFile:     "page-get",
			wantStrategy: lookup.StrategyExact,
		},
		{
			name:         "head takes newest head capture",
			req:          lookup.Request{Method: "HEAD", URL: "http://example.com/page"},
			wantFile:     "page-head",
			wantStrategy: lookup.StrategyExact,
		},
		{
			name:         "fallback get skips head capture",
			req:          lookup.Request{Method: "GET", URL: "http://example.com/page?utm=1"},
			wantFile:     "page-get",
			wantStrategy: lookup.StrategySameURLIgnoringQuery,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			index := lookupMock.NewMockIndex(ctrl)
			index.EXPECT().Candidates(get.SURT).Return([]*cdxj.Entry{get, head}).MinTimes(1)
			index.EXPECT().Candidates(gomock.Any()).Return(nil).AnyTimes()
			index.EXPECT().Entries().Return([]*cdxj.Entry{get, head, other}).AnyTimes()

			m, err := lookup.New(index).Find(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, m.Entry.Locator.Filename)
			assert.Equal(t, tt.wantStrategy, m.Strategy)
		})
	}
}

func TestPolicy_OnlyHeadCaptureLeavesGetUnmatched(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	head := entry(t, "HEAD", "http://example.com/page", "20240601000000", "page-head")
	index := lookupMock.NewMockIndex(ctrl)
	index.EXPECT().Candidates(head.SURT).Return([]*cdxj.Entry{head}).Times(1)
	index.EXPECT().Entries().Return([]*cdxj.Entry{head}).Times(1)

	_, err := lookup.New(index).Find(lookup.Request{Method: "GET", URL: "http://example.com/page"})
	require.ErrorIs(t, err, lookup.ErrNotFound)
}
