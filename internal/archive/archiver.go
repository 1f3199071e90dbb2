package archive

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	archiveconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
	"github.com/jonesrussell/north-cloud/webarchive/internal/warc"
)

// Option configures an Archiver.
type Option func(*Archiver)

// WithStats records capture counters.
func WithStats(s *metrics.Stats) Option {
	return func(a *Archiver) { a.stats = s }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(a *Archiver) { a.clock = clock }
}

// WithWriterOptions adjusts the options each session's writer is opened with.
func WithWriterOptions(fn func(*wacz.Options)) Option {
	return func(a *Archiver) { a.writerOptions = fn }
}

// session is the state of one running capture session.
type session struct {
	start       time.Time
	destination string
	packager    *wacz.Packager
	writer      *wacz.Writer
	cleanup     func()
}

// Archiver owns the capture session of a crawl.
type Archiver struct {
	config        *archiveconfig.Config
	resolver      *storage.Resolver
	logger        logger.Logger
	stats         *metrics.Stats
	clock         func() time.Time
	writerOptions func(*wacz.Options)

	// mu is held for reading while a capture is handed over, so a session
	// cannot end between the handover and the write.
	mu          sync.RWMutex
	session     *session
	captureChan chan *CaptureTask
	worker      *CaptureWorker
}

// NewArchiver creates an Archiver exporting to cfg.ExportURI.
func NewArchiver(cfg *archiveconfig.Config, resolver *storage.Resolver, log logger.Logger, opts ...Option) (*Archiver, error) {
	const op = "new archiver"
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, op, "archive config is nil")
	}
	if cfg.ExportURI == "" {
		return nil, apperrors.New(apperrors.ErrConfiguration, op, "export_uri is required for capture")
	}
	if len(cfg.Sources()) > 0 {
		return nil, apperrors.New(apperrors.ErrConfiguration, op, "capture is disabled while replaying from source_uri")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	a := &Archiver{
		config:   cfg,
		resolver: resolver,
		logger:   log,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SessionStarted opens a capture session. The destination template is
// expanded against start and validated before anything is written.
func (a *Archiver) SessionStarted(ctx context.Context, start time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return apperrors.New(apperrors.ErrState, "session started", "a capture session is already running")
	}

	start = start.UTC()
	packager := wacz.NewPackager(a.resolver, wacz.PackOptions{
		Collection:  a.config.Collection,
		Title:       a.config.Title,
		Description: a.config.Description,
		Start:       start,
		Clock:       a.clock,
		Logger:      a.logger,
	})
	destination, err := packager.Destination(a.config.ExportURI)
	if err != nil {
		return err
	}

	staging, cleanup, err := a.stagingDir(start)
	if err != nil {
		return err
	}

	opts := wacz.Options{
		Collection:  a.config.Collection,
		Title:       a.config.Title,
		Description: a.config.Description,
		Compress:    a.config.Compress,
		RobotsObey:  a.config.RobotsObey,
		Clock:       a.clock,
		Logger:      a.logger,
	}
	if a.writerOptions != nil {
		a.writerOptions(&opts)
	}
	writer, err := wacz.OpenWriter(ctx, a.resolver, staging, opts)
	if err != nil {
		cleanup()
		return err
	}

	a.session = &session{
		start:       start,
		destination: destination,
		packager:    packager,
		writer:      writer,
		cleanup:     cleanup,
	}

	if a.config.CaptureAsync {
		a.captureChan = make(chan *CaptureTask, a.config.QueueSize)
		a.worker = newCaptureWorker(a, a.session, a.captureChan, a.logger)
		a.worker.Start()
		a.logger.Info("Started async capture worker", logger.Int("queue_size", a.config.QueueSize))
	}

	a.logger.Info("Capture session started",
		logger.URI(destination),
		logger.String("staging", staging),
		logger.Bool("async", a.config.CaptureAsync))
	return nil
}

// stagingDir returns the directory records files are written to.
func (a *Archiver) stagingDir(start time.Time) (string, func(), error) {
	if a.config.StagingURI != "" {
		_, loc, err := a.resolver.Resolve(a.config.StagingURI)
		if err != nil {
			return "", nil, err
		}
		dir := loc.Join(a.config.Collection + "-" + start.Format(storage.TimestampLayout) + "/")
		return dir.String(), func() {}, nil
	}

	dir, err := os.MkdirTemp("", "webarchive-")
	if err != nil {
		return "", nil, apperrors.WrapWithContext(err, "create staging directory")
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// Capture records one exchange. In async mode it is queued for the
// capture worker and Capture blocks while the queue is full.
func (a *Archiver) Capture(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil {
		return errors.New("capture: transaction is nil")
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	s, queue := a.session, a.captureChan
	if s == nil {
		return apperrors.New(apperrors.ErrState, "capture", "no capture session running")
	}

	if queue != nil {
		select {
		case queue <- &CaptureTask{Tx: tx, Ctx: ctx}:
			return nil
		case <-ctx.Done():
			a.logger.Warn("Capture dropped, context done", logger.URL(tx.URL))
			return ctx.Err()
		}
	}
	return a.write(ctx, s, tx)
}

func (a *Archiver) write(ctx context.Context, s *session, tx *domain.Transaction) error {
	loc, err := s.writer.Write(ctx, tx)
	if err != nil {
		return err
	}

	a.stats.RecordWritten(warc.TypeResponse)
	a.stats.ResponseStatus(tx.StatusCode)
	a.stats.RecordWritten(warc.TypeRequest)

	a.logger.Debug("Captured exchange",
		logger.URL(tx.URL),
		logger.String("method", tx.Method),
		logger.Status(tx.StatusCode),
		logger.Locator(loc))
	return nil
}

// SessionEnded drains pending captures, finalizes the records file and
// uploads the container. The session is closed whatever the outcome.
func (a *Archiver) SessionEnded(ctx context.Context) (*wacz.Confirmation, error) {
	a.mu.Lock()
	s, worker := a.session, a.worker
	a.session, a.worker, a.captureChan = nil, nil, nil
	a.mu.Unlock()

	if s == nil {
		return nil, apperrors.New(apperrors.ErrState, "session ended", "no capture session running")
	}
	defer s.cleanup()

	if worker != nil {
		a.logger.Info("Shutting down capture worker")
		worker.Stop()
		if n := worker.Failed(); n > 0 {
			a.logger.Warn("Some captures were not written", logger.Int64("failed", n))
		}
	}

	manifest, err := s.writer.Finalize(ctx)
	if err != nil {
		return nil, err
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	conf, err := s.packager.Pack(ctx, manifest.RecordsURIs(), manifest.IndexURIs(), s.destination)
	if err != nil {
		return nil, err
	}
	a.stats.ContainerUploaded(conf.Bytes)

	a.logger.Info("Capture session ended",
		logger.URI(conf.URI),
		logger.Int("records", s.writer.Count()),
		logger.Duration("duration", a.clock().Sub(s.start)))
	return conf, nil
}

// Abort ends the session without packaging. Queued captures are discarded.
func (a *Archiver) Abort() error {
	a.mu.Lock()
	s, worker := a.session, a.worker
	a.session, a.worker, a.captureChan = nil, nil, nil
	a.mu.Unlock()

	if s == nil {
		return nil
	}
	defer s.cleanup()
	if worker != nil {
		worker.Cancel()
	}
	a.logger.Warn("Capture session aborted")
	return s.writer.Abort()
}

// Destination returns the container URI of the running session.
func (a *Archiver) Destination() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return "", false
	}
	return a.session.destination, true
}
