package wacz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

func mustLocation(t *testing.T, raw string) storage.Location {
	t.Helper()
	loc, err := storage.ParseLocation(raw)
	require.NoError(t, err)
	return loc
}

func TestSplitSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "single", raw: "mem://a/x.wacz", want: []string{"mem://a/x.wacz"}},
		{name: "spaces around commas", raw: " mem://a/x.wacz ,  s3://b/y.wacz", want: []string{"mem://a/x.wacz", "s3://b/y.wacz"}},
		{name: "blank entries dropped", raw: "a,,b,", want: []string{"a", "b"}},
		{name: "empty", raw: "   ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, wacz.SplitSources(tt.raw))
		})
	}
}

func TestCollection_NewestCaptureWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver, _ := newMemResolver()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a := writeContainer(t, resolver, "mem://c/a.wacz", getTransaction("http://example.com/page", "january", older))
	b := writeContainer(t, resolver, "mem://c/b.wacz", getTransaction("http://example.com/page", "june", newer))
	key, err := cdxj.Canonicalize("GET", "http://example.com/page", nil)
	require.NoError(t, err)

	for _, order := range [][]string{{a.URI, b.URI}, {b.URI, a.URI}} {
		c, err := wacz.OpenCollection(ctx, resolver, order, wacz.ReadOptions{})
		require.NoError(t, err)

		assert.Len(t, c.Index().Candidates(key.SURT), 2)
		e, ok := c.Index().Newest(key.SURT)
		require.True(t, ok)
		resp, err := c.Response(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, "june", string(resp.Body), "order %v", order)

		require.NoError(t, c.Close())
	}
}

func TestCollection_EqualTimestampsPreferFirstSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver, _ := newMemResolver()
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a := writeContainer(t, resolver, "mem://c/a.wacz", getTransaction("http://example.com/page", "from a", at))
	b := writeContainer(t, resolver, "mem://c/b.wacz", getTransaction("http://example.com/page", "from b", at))
	key, err := cdxj.Canonicalize("GET", "http://example.com/page", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		order []string
		want  string
	}{
		{name: "a first", order: []string{a.URI, b.URI}, want: "from a"},
		{name: "b first", order: []string{b.URI, a.URI}, want: "from b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := wacz.OpenCollection(ctx, resolver, tt.order, wacz.ReadOptions{})
			require.NoError(t, err)
			defer c.Close()

			e, ok := c.Index().Newest(key.SURT)
			require.True(t, ok)
			assert.Equal(t, 0, e.Source)
			resp, err := c.Response(ctx, e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(resp.Body))
		})
	}
}

func TestOpenCollection_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	resolver, _ := newMemResolver()
	ok := writeContainer(t, resolver, "mem://c/ok.wacz", getTransaction("http://example.com/", "x", sessionStart))

	_, err := wacz.OpenCollection(ctx, resolver, nil, wacz.ReadOptions{})
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = wacz.OpenCollection(ctx, resolver, []string{ok.URI, "mem://c/missing.wacz"}, wacz.ReadOptions{})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
