package archive

import (
	"sync"
	"sync/atomic"

	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// CaptureWorker writes queued captures. It is the only caller of the
// session writer in async mode.
type CaptureWorker struct {
	archiver *Archiver
	session  *session
	queue    chan *CaptureTask
	logger   logger.Logger
	wg       sync.WaitGroup
	stopCh   chan struct{}
	drain    bool
	failed   atomic.Int64
}

func newCaptureWorker(a *Archiver, s *session, queue chan *CaptureTask, log logger.Logger) *CaptureWorker {
	return &CaptureWorker{
		archiver: a,
		session:  s,
		queue:    queue,
		logger:   log,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the capture worker.
func (w *CaptureWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Debug("Capture worker started")

		for {
			select {
			case task := <-w.queue:
				w.processTask(task)
			case <-w.stopCh:
				if w.drain {
					w.logger.Info("Capture worker stopping, draining queue")
					w.drainQueue()
				}
				w.logger.Debug("Capture worker stopped")
				return
			}
		}
	}()
}

// Stop writes every queued capture, then stops the worker.
func (w *CaptureWorker) Stop() {
	w.drain = true
	close(w.stopCh)
	w.wg.Wait()
}

// Cancel stops the worker and discards queued captures.
func (w *CaptureWorker) Cancel() {
	close(w.stopCh)
	w.wg.Wait()
	for {
		select {
		case <-w.queue:
		default:
			return
		}
	}
}

// Failed returns the number of captures that could not be written.
func (w *CaptureWorker) Failed() int64 {
	return w.failed.Load()
}

func (w *CaptureWorker) processTask(task *CaptureTask) {
	if err := w.archiver.write(task.Ctx, w.session, task.Tx); err != nil {
		w.failed.Add(1)
		w.logger.Error("Capture failed",
			logger.Error(err),
			logger.URL(task.Tx.URL))
	}
}

// drainQueue writes whatever is left in the queue.
func (w *CaptureWorker) drainQueue() {
	drained := 0
	for {
		select {
		case task := <-w.queue:
			w.processTask(task)
			drained++
		default:
			if drained > 0 {
				w.logger.Info("Queue drained successfully", logger.Int("tasks_processed", drained))
			}
			return
		}
	}
}
