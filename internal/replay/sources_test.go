package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archiveconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func putObject(t *testing.T, mem *storage.Memory, raw string, modified time.Time) {
	t.Helper()
	loc, err := storage.ParseLocation(raw)
	require.NoError(t, err)
	mem.Put(loc, []byte("x"), modified)
}

func TestResolveSources(t *testing.T) {
	t.Parallel()

	resolver, mem := newMemResolver()
	putObject(t, mem, "mem://bucket/news/2024/jan.wacz", day(time.January, 1))
	putObject(t, mem, "mem://bucket/news/2024/jun.wacz", day(time.June, 1))
	putObject(t, mem, "mem://bucket/news/2024/notes.txt/extra", day(time.March, 1))
	putObject(t, mem, "mem://bucket/sports/2024/mar.wacz", day(time.March, 1))

	tests := []struct {
		name     string
		export   string
		sources  string
		strategy string
		target   string
		want     []string
		wantErr  error
	}{
		{
			name:    "explicit sources win",
			export:  "mem://bucket/{collection}/{year}/",
			sources: "mem://a/1.wacz, mem://b/2.wacz",
			want:    []string{"mem://a/1.wacz", "mem://b/2.wacz"},
		},
		{
			name:     "before picks newest not after target",
			export:   "mem://bucket/{collection}/{year}/",
			strategy: archiveconfig.StrategyBefore,
			target:   "2024-03-01T00:00:00Z",
			want:     []string{"mem://bucket/news/2024/jan.wacz"},
		},
		{
			name:     "after picks oldest not before target",
			export:   "mem://bucket/{collection}/{year}/",
			strategy: archiveconfig.StrategyAfter,
			target:   "2024-03-01T00:00:00Z",
			want:     []string{"mem://bucket/news/2024/jun.wacz"},
		},
		{
			name:     "after with no later container",
			export:   "mem://bucket/{collection}/{year}/",
			strategy: archiveconfig.StrategyAfter,
			target:   "2024-12-01T00:00:00Z",
			wantErr:  apperrors.ErrNotFound,
		},
		{
			name:   "template without placeholders is used as is",
			export: "mem://bucket/fixed.wacz",
			want:   []string{"mem://bucket/fixed.wacz"},
		},
		{
			name:    "nothing configured",
			wantErr: apperrors.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := archiveconfig.NewConfig()
			cfg.Collection = "news"
			cfg.ExportURI = tt.export
			cfg.SourceURI = tt.sources
			cfg.LookupTarget = tt.target
			if tt.strategy != "" {
				cfg.LookupStrategy = tt.strategy
			}

			got, err := replay.ResolveSources(context.Background(), resolver, cfg, day(time.July, 1), nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickSource(t *testing.T) {
	t.Parallel()

	files := []storage.ObjectInfo{
		{Location: storage.Location{Scheme: "mem", Bucket: "b", Key: "c.wacz"}, LastModified: day(time.March, 1)},
		{Location: storage.Location{Scheme: "mem", Bucket: "b", Key: "a.wacz"}, LastModified: day(time.January, 1)},
		{Location: storage.Location{Scheme: "mem", Bucket: "b", Key: "b.wacz"}, LastModified: day(time.February, 1)},
	}

	tests := []struct {
		name     string
		strategy string
		target   time.Time
		want     string
		ok       bool
	}{
		{name: "before exact", strategy: "before", target: day(time.February, 1), want: "mem://b/b.wacz", ok: true},
		{name: "before between", strategy: "before", target: day(time.February, 15), want: "mem://b/b.wacz", ok: true},
		{name: "before too early", strategy: "before", target: day(time.January, 1).Add(-time.Hour)},
		{name: "after between", strategy: "after", target: day(time.February, 15), want: "mem://b/c.wacz", ok: true},
		{name: "after too late", strategy: "after", target: day(time.April, 1)},
		{name: "unknown strategy", strategy: "nearest", target: day(time.February, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := replay.PickSource(files, tt.strategy, tt.target)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
