package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	storageMock "github.com/jonesrussell/north-cloud/webarchive/testutils/mocks/storage"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want storage.Location
	}{
		{name: "bare path", raw: "/tmp/out.wacz", want: storage.Location{Scheme: "file", Key: "/tmp/out.wacz"}},
		{name: "bare dir", raw: "/tmp/out/", want: storage.Location{Scheme: "file", Key: "/tmp/out/"}},
		{name: "file uri", raw: "file:///var/data/a.wacz", want: storage.Location{Scheme: "file", Key: "/var/data/a.wacz"}},
		{name: "minio", raw: "minio://archives/2025/a.wacz", want: storage.Location{Scheme: "minio", Bucket: "archives", Key: "2025/a.wacz"}},
		{name: "s3 upper scheme", raw: "S3://bucket/k", want: storage.Location{Scheme: "s3", Bucket: "bucket", Key: "k"}},
		{name: "mem prefix", raw: "mem://bucket/", want: storage.Location{Scheme: "mem", Bucket: "bucket", Key: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := storage.ParseLocation(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocation_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "s3:///no-bucket"} {
		_, err := storage.ParseLocation(raw)
		require.ErrorIs(t, err, apperrors.ErrConfiguration, raw)
	}
}

func TestResolver_UnknownScheme(t *testing.T) {
	t.Parallel()

	r := storage.NewResolver()
	_, _, err := r.Resolve("ftp://host/file.wacz")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = r.Open(context.Background(), "gs://bucket/file.wacz")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestResolver_DispatchesByScheme(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ctx := context.Background()
	loc := storage.Location{Scheme: "mock", Bucket: "bucket", Key: "dir/a.txt"}
	writeErr := errors.New("write refused")

	reader := storageMock.NewMockReader(ctrl)
	reader.EXPECT().Size().Return(int64(2)).AnyTimes()
	reader.EXPECT().ReadAt(gomock.Any(), int64(0)).
		DoAndReturn(func(p []byte, _ int64) (int, error) { return copy(p, "hi"), nil }).
		Times(1)
	reader.EXPECT().Close().Return(nil).Times(1)

	writer := storageMock.NewMockWriter(ctrl)
	writer.EXPECT().Write([]byte("data")).Return(0, writeErr).Times(1)
	writer.EXPECT().Abort().Return(nil).Times(1)

	backend := storageMock.NewMockBackend(ctrl)
	backend.EXPECT().Open(gomock.Any(), loc).Return(reader, nil).Times(1)
	backend.EXPECT().Create(gomock.Any(), loc).Return(writer, nil).Times(1)
	backend.EXPECT().List(gomock.Any(), storage.Location{Scheme: "mock", Bucket: "bucket", Key: "dir/"}).
		Return([]storage.ObjectInfo{{Location: loc, Size: 2}}, nil).
		Times(1)

	r := storage.NewResolver()
	r.Register("mock", backend)

	data, err := r.ReadFile(ctx, "mock://bucket/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	require.ErrorIs(t, r.WriteFile(ctx, "mock://bucket/dir/a.txt", []byte("data")), writeErr)

	infos, err := r.List(ctx, "mock://bucket/dir/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, loc, infos[0].Location)
}

func TestMemory_CommitOnCloseAbortDiscards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := storage.NewResolver(storage.WithBackend(storage.SchemeMemory, storage.NewMemory()))

	w, err := r.Create(ctx, "mem://bucket/a/one.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	_, err = r.Open(ctx, "mem://bucket/a/one.bin")
	require.ErrorIs(t, err, apperrors.ErrNotFound, "not visible before commit")

	require.NoError(t, w.Close())
	data, err := r.ReadFile(ctx, "mem://bucket/a/one.bin")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	aborted, err := r.Create(ctx, "mem://bucket/a/two.bin")
	require.NoError(t, err)
	_, err = aborted.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, aborted.Abort())

	infos, err := r.List(ctx, "mem://bucket/a/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "mem://bucket/a/one.bin", infos[0].Location.String())
	assert.Equal(t, int64(5), infos[0].Size)
}

func TestMemory_ReaderIsPositioned(t *testing.T) {
	t.Parallel()

	mem := storage.NewMemory()
	loc := storage.Location{Scheme: storage.SchemeMemory, Bucket: "b", Key: "k"}
	mem.Put(loc, []byte("0123456789"), time.Time{})

	rd, err := mem.Open(context.Background(), loc)
	require.NoError(t, err)
	defer rd.Close()

	buf := make([]byte, 3)
	_, err = rd.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))
	assert.Equal(t, int64(10), rd.Size())
}

func TestFile_CreateListAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	r := storage.NewResolver()

	require.NoError(t, r.WriteFile(ctx, filepath.Join(dir, "sub", "a.wacz"), []byte("abc")))

	w, err := r.Create(ctx, "file://"+filepath.Join(dir, "sub", "b.wacz"))
	require.NoError(t, err)
	_, err = w.Write([]byte("discard"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	infos, err := r.List(ctx, dir+"/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, filepath.Join(dir, "sub", "a.wacz"), infos[0].Location.Key)

	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	_, err = r.Open(ctx, filepath.Join(dir, "missing.wacz"))
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFile_FailedCommitRemovesTemp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	// A non-empty directory at the target makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))

	w, err := storage.NewFile().Create(ctx, storage.Location{Scheme: storage.SchemeFile, Key: target})
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.Error(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "taken", entries[0].Name())
}

func TestExpandTemplate(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

	got, err := storage.ExpandTemplate("mem://bucket/{year}/{month}/{day}/", storage.TemplateVars{Time: start})
	require.NoError(t, err)
	assert.Equal(t, "mem://bucket/2025/03/07/", got)

	got, err = storage.ExpandTemplate("s3://b/{collection}-{timestamp}.wacz", storage.TemplateVars{Time: start, Collection: "news"})
	require.NoError(t, err)
	assert.Equal(t, "s3://b/news-20250307100000.wacz", got)

	_, err = storage.ExpandTemplate("mem://bucket/{spider}/{year}/", storage.TemplateVars{Time: start})
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = storage.ExpandTemplate("mem://bucket/{collection}/", storage.TemplateVars{Time: start})
	require.ErrorIs(t, err, apperrors.ErrConfiguration, "empty value is unresolved")
}

func TestTemplatePrefixAndPattern(t *testing.T) {
	t.Parallel()

	tmpl := "mem://bucket/crawls/{year}/{month}/{collection}-{timestamp}.wacz"
	assert.Equal(t, "mem://bucket/crawls/", storage.TemplatePrefix(tmpl))
	assert.Equal(t, "mem://bucket/x.wacz", storage.TemplatePrefix("mem://bucket/x.wacz"))

	re, err := storage.TemplatePattern(tmpl)
	require.NoError(t, err)
	assert.True(t, re.MatchString("mem://bucket/crawls/2024/06/news-20240601000000.wacz"))
	assert.False(t, re.MatchString("mem://bucket/crawls/2024/06/news-2024.wacz"))

	dirRe, err := storage.TemplatePattern("mem://bucket/{year}/")
	require.NoError(t, err)
	assert.True(t, dirRe.MatchString("mem://bucket/2024/any.wacz"))

	_, err = storage.TemplatePattern("mem://bucket/{nope}/")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}
