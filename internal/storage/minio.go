package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/north-cloud/webarchive/internal/config/minio"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/retry"
)

// MinIO is the minio:// backend.
type MinIO struct {
	client *miniogo.Client
	config *minio.Config
	retry  retry.Policy
	logger logger.Logger
}

// NewMinIO creates a MinIO backend from cfg.
func NewMinIO(cfg *minio.Config, log logger.Logger) (*MinIO, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	rc := retry.WithRetries(cfg.MaxRetries)

	log.Info("MinIO backend initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.Bool("ssl", cfg.UseSSL))

	return &MinIO{client: client, config: cfg, retry: rc, logger: log}, nil
}

func isMinIONotFound(err error) bool {
	code := miniogo.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// minioReader serves ReadAt with ranged GetObject calls, each under its own
// deadline.
type minioReader struct {
	backend *MinIO
	loc     Location
	size    int64
}

func (r *minioReader) Size() int64  { return r.size }
func (r *minioReader) Close() error { return nil }

func (r *minioReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := min(off+int64(len(p)), r.size)

	var n int
	err := r.backend.retry.Do(context.Background(), func() error {
		opts := miniogo.GetObjectOptions{}
		if err := opts.SetRange(off, end-1); err != nil {
			return err
		}
		ctx, cancel := readContext(r.backend.config.Timeout)
		defer cancel()
		obj, err := r.backend.client.GetObject(ctx, r.loc.Bucket, r.loc.Key, opts)
		if err != nil {
			return err
		}
		defer obj.Close()
		n, err = io.ReadFull(obj, p[:end-off])
		return err
	})
	if err != nil {
		if isMinIONotFound(err) {
			return n, apperrors.Wrap(apperrors.ErrNotFound, "read "+r.loc.String(), err)
		}
		return n, fmt.Errorf("ranged read %s: %w", r.loc, err)
	}
	if end-off < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Open stats the object and returns a ranged reader over it.
func (m *MinIO) Open(ctx context.Context, loc Location) (Reader, error) {
	var info miniogo.ObjectInfo
	err := m.retry.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
		var statErr error
		info, statErr = m.client.StatObject(callCtx, loc.Bucket, loc.Key, miniogo.StatObjectOptions{})
		return statErr
	})
	if err != nil {
		if isMinIONotFound(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "open "+loc.String(), err)
		}
		return nil, fmt.Errorf("stat %s: %w", loc, err)
	}
	return &minioReader{backend: m, loc: loc, size: info.Size}, nil
}

// Create returns a writer that uploads the object on Close.
func (m *MinIO) Create(ctx context.Context, loc Location) (Writer, error) {
	if loc.IsDir() {
		return nil, apperrors.New(apperrors.ErrConfiguration, "create", "%q names a prefix", loc.String())
	}
	return newSpoolWriter(ctx, func(ctx context.Context, body io.ReadSeeker, size int64) error {
		return m.retry.Do(ctx, func() error {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return err
			}
			callCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
			defer cancel()
			_, err := m.client.PutObject(callCtx, loc.Bucket, loc.Key, body, size, miniogo.PutObjectOptions{
				ContentType: contentTypeFor(loc.Key),
			})
			if err != nil {
				m.logger.Warn("MinIO upload attempt failed", logger.URI(loc.String()), logger.Error(err))
			}
			return err
		})
	})
}

// List lists objects under prefix recursively.
func (m *MinIO) List(ctx context.Context, prefix Location) ([]ObjectInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	var out []ObjectInfo
	for obj := range m.client.ListObjects(callCtx, prefix.Bucket, miniogo.ListObjectsOptions{
		Prefix:    prefix.Key,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{
			Location:     Location{Scheme: prefix.Scheme, Bucket: prefix.Bucket, Key: obj.Key},
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location.Key < out[j].Location.Key })
	return out, nil
}

// HealthCheck verifies that bucket exists.
func (m *MinIO) HealthCheck(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

// EnsureBucket creates bucket when it does not exist.
func (m *MinIO) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err = m.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: m.config.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	m.logger.Info("Created bucket", logger.String("bucket", bucket))
	return nil
}
