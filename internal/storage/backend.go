package storage

import (
	"context"
	"io"
	"time"
)

// Reader is a random-access handle on a stored object. ReadAt must be safe
// for concurrent use.
type Reader interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Writer is a write stream. Close commits the object, Abort discards it.
// Exactly one of them takes effect.
type Writer interface {
	io.Writer
	Close() error
	Abort() error
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Location     Location
	Size         int64
	LastModified time.Time
}

// Backend is the capability set every storage variant provides.
type Backend interface {
	// Open returns a reader. Missing objects yield errors.ErrNotFound.
	Open(ctx context.Context, loc Location) (Reader, error)
	// Create returns a writer that creates or overwrites loc on Close.
	Create(ctx context.Context, loc Location) (Writer, error)
	// List returns objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix Location) ([]ObjectInfo, error)
}

// DefaultReadTimeout bounds one ranged read when a backend sets no timeout.
const DefaultReadTimeout = 60 * time.Second

// readContext returns the deadline for one remote read. Readers outlive the
// ctx given to Open, so reads never inherit it.
func readContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Stream returns a sequential reader over the whole object.
func Stream(r Reader) io.Reader {
	return io.NewSectionReader(r, 0, r.Size())
}

// ReadAll reads the whole object.
func ReadAll(r Reader) ([]byte, error) {
	buf := make([]byte, r.Size())
	n, err := r.ReadAt(buf, 0)
	if err != nil && !(err == io.EOF && int64(n) == r.Size()) {
		return nil, err
	}
	return buf[:n], nil
}
