//go:build integration

package storage_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	minioconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/minio"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
)

const minioImage = "minio/minio:RELEASE.2024-01-16T16-07-38Z"

func startMinIO(t *testing.T) *storage.MinIO {
	t.Helper()
	ctx := context.Background()

	container, err := tcminio.Run(ctx, minioImage,
		tcminio.WithUsername("webarchive"),
		tcminio.WithPassword("webarchive-secret"),
	)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })
	require.NoError(t, err)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := minioconfig.NewConfig()
	cfg.Enabled = true
	cfg.Endpoint = endpoint
	cfg.AccessKey = container.Username
	cfg.SecretKey = container.Password
	cfg.Timeout = 30 * time.Second

	backend, err := storage.NewMinIO(cfg, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, backend.EnsureBucket(ctx, "archives"))
	return backend
}

func TestMinIO_Integration(t *testing.T) {
	backend := startMinIO(t)
	resolver := storage.NewResolver(storage.WithBackend(storage.SchemeMinIO, backend))
	ctx := context.Background()

	require.NoError(t, resolver.WriteFile(ctx, "minio://archives/2025/03/a.wacz", []byte("0123456789")))
	require.NoError(t, resolver.WriteFile(ctx, "minio://archives/2025/04/b.wacz", []byte("abc")))

	t.Run("read back", func(t *testing.T) {
		data, err := resolver.ReadFile(ctx, "minio://archives/2025/03/a.wacz")
		require.NoError(t, err)
		assert.Equal(t, "0123456789", string(data))
	})

	t.Run("ranged read", func(t *testing.T) {
		r, err := resolver.Open(ctx, "minio://archives/2025/03/a.wacz")
		require.NoError(t, err)
		defer r.Close()
		assert.Equal(t, int64(10), r.Size())

		buf := make([]byte, 4)
		n, err := r.ReadAt(buf, 3)
		require.NoError(t, err)
		assert.Equal(t, "3456", string(buf[:n]))
	})

	t.Run("reads outlive the open context", func(t *testing.T) {
		openCtx, cancel := context.WithCancel(ctx)
		r, err := resolver.Open(openCtx, "minio://archives/2025/03/a.wacz")
		require.NoError(t, err)
		defer r.Close()
		cancel()

		buf := make([]byte, 4)
		n, err := r.ReadAt(buf, 8)
		require.ErrorIs(t, err, io.EOF)
		assert.Equal(t, "89", string(buf[:n]))
	})

	t.Run("list under prefix", func(t *testing.T) {
		infos, err := resolver.List(ctx, "minio://archives/2025/")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "minio://archives/2025/03/a.wacz", infos[0].Location.String())
		assert.Equal(t, int64(3), infos[1].Size)
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := resolver.Open(ctx, "minio://archives/missing.wacz")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
