package storage

import (
	"context"
	"io"
	"os"
)

// uploadFunc sends a spooled object. body is rewound before each call.
type uploadFunc func(ctx context.Context, body io.ReadSeeker, size int64) error

// spoolWriter buffers an upload in a temporary file so remote writes can
// be retried and committed atomically on Close.
type spoolWriter struct {
	ctx    context.Context
	file   *os.File
	size   int64
	upload uploadFunc
	done   bool
}

func newSpoolWriter(ctx context.Context, upload uploadFunc) (*spoolWriter, error) {
	f, err := os.CreateTemp("", "webarchive-spool-*")
	if err != nil {
		return nil, err
	}
	return &spoolWriter{ctx: ctx, file: f, upload: upload}, nil
}

func (w *spoolWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errWriterClosed
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *spoolWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.cleanup()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return w.upload(w.ctx, w.file, w.size)
}

func (w *spoolWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.cleanup()
	return nil
}

func (w *spoolWriter) cleanup() {
	_ = w.file.Close()
	_ = os.Remove(w.file.Name())
}
