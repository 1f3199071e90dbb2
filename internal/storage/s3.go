package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	s3config "github.com/jonesrussell/north-cloud/webarchive/internal/config/s3"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/retry"
)

// S3 is the s3:// backend.
type S3 struct {
	client *awss3.Client
	config *s3config.Config
	retry  retry.Policy
	logger logger.Logger
}

// NewS3 creates an S3 backend from cfg.
func NewS3(cfg *s3config.Config, log logger.Logger) *S3 {
	opts := awss3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	rc := retry.WithRetries(cfg.MaxRetries)

	log.Info("S3 backend initialized",
		logger.String("region", cfg.Region),
		logger.String("endpoint", cfg.Endpoint))

	return &S3{client: awss3.New(opts), config: cfg, retry: rc, logger: log}
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	return errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket)
}

// s3Reader serves ReadAt with ranged GetObject calls, each under its own
// deadline.
type s3Reader struct {
	backend *S3
	loc     Location
	size    int64
}

func (r *s3Reader) Size() int64  { return r.size }
func (r *s3Reader) Close() error { return nil }

func (r *s3Reader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p))
	short := end > r.size
	if short {
		end = r.size
	}

	var n int
	err := r.backend.retry.Do(context.Background(), func() error {
		ctx, cancel := readContext(r.backend.config.Timeout)
		defer cancel()
		out, err := r.backend.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(r.loc.Bucket),
			Key:    aws.String(r.loc.Key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end-1)),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		n, err = io.ReadFull(out.Body, p[:end-off])
		return err
	})
	if err != nil {
		if isS3NotFound(err) {
			return n, apperrors.Wrap(apperrors.ErrNotFound, "read "+r.loc.String(), err)
		}
		return n, fmt.Errorf("ranged read %s: %w", r.loc, err)
	}
	if short {
		return n, io.EOF
	}
	return n, nil
}

// Open heads the object and returns a ranged reader.
func (b *S3) Open(ctx context.Context, loc Location) (Reader, error) {
	var out *awss3.HeadObjectOutput
	err := b.retry.Do(ctx, func() error {
		var headErr error
		out, headErr = b.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		return headErr
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "open "+loc.String(), err)
		}
		return nil, fmt.Errorf("head %s: %w", loc, err)
	}
	return &s3Reader{backend: b, loc: loc, size: aws.ToInt64(out.ContentLength)}, nil
}

// Create returns a writer that uploads the object on Close.
func (b *S3) Create(ctx context.Context, loc Location) (Writer, error) {
	if loc.IsDir() {
		return nil, apperrors.New(apperrors.ErrConfiguration, "create", "%q names a prefix", loc.String())
	}
	return newSpoolWriter(ctx, func(ctx context.Context, body io.ReadSeeker, size int64) error {
		return b.retry.Do(ctx, func() error {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return err
			}
			_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
				Bucket:        aws.String(loc.Bucket),
				Key:           aws.String(loc.Key),
				Body:          body,
				ContentLength: aws.Int64(size),
				ContentType:   aws.String(contentTypeFor(loc.Key)),
			})
			if err != nil {
				b.logger.Warn("S3 upload attempt failed", logger.URI(loc.String()), logger.Error(err))
			}
			return err
		})
	})
}

// List pages through ListObjectsV2 under prefix.
func (b *S3) List(ctx context.Context, prefix Location) ([]ObjectInfo, error) {
	pager := awss3.NewListObjectsV2Paginator(b.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(prefix.Bucket),
		Prefix: aws.String(prefix.Key),
	})

	var out []ObjectInfo
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Location:     Location{Scheme: prefix.Scheme, Bucket: prefix.Bucket, Key: aws.ToString(obj.Key)},
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location.Key < out[j].Location.Key })
	return out, nil
}
