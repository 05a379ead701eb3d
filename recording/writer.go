package recording

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/metric"
	"github.com/c360/vibstreams/pkg/worker"
)

// appendJob is one queued persist. A job with flush set is a marker:
// the worker closes the channel instead of appending.
type appendJob struct {
	recordingID uint
	frame       *frame.Frame
	recvTime    time.Time
	flush       chan struct{}
}

// Appender is the store surface the writer needs.
type Appender interface {
	Append(recordingID uint, f *frame.Frame, recvTime time.Time) error
	MarkGapped(recordingID uint) error
}

// Writer is the asynchronous append path in front of the Store. The
// router never blocks on persistence: a full writer queue drops the
// frame, counts it, and marks the recording gapped.
type Writer struct {
	store   Appender
	pool    *worker.Pool[appendJob]
	metrics *metric.Metrics
	logger  *slog.Logger
}

// WriterDeps carries Writer dependencies.
type WriterDeps struct {
	Store   Appender
	Metrics *metric.Metrics // optional
	Logger  *slog.Logger    // optional

	// QueueSize is the writer queue capacity; 256 when zero.
	QueueSize int
}

// NewWriter creates the writer pool. Appends are serialized through a
// single worker so each recording observes frames in submission order.
func NewWriter(deps WriterDeps) *Writer {
	if deps.QueueSize <= 0 {
		deps.QueueSize = 256
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	w := &Writer{
		store:   deps.Store,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "recording-writer"),
	}
	w.pool = worker.NewPool(1, deps.QueueSize, w.process)
	return w
}

// Start launches the writer worker.
func (w *Writer) Start(ctx context.Context) error {
	return w.pool.Start(ctx)
}

// Submit queues a frame for persistence. A full queue drops the frame:
// the persist_dropped counter is incremented and the recording is
// marked gapped, per the never-block-the-router contract.
func (w *Writer) Submit(recordingID uint, f *frame.Frame, recvTime time.Time) error {
	err := w.pool.Submit(appendJob{recordingID: recordingID, frame: f, recvTime: recvTime})
	if err == nil {
		return nil
	}
	if stderrors.Is(err, worker.ErrQueueFull) {
		if w.metrics != nil {
			w.metrics.PersistDropped.Inc()
		}
		if gapErr := w.store.MarkGapped(recordingID); gapErr != nil {
			w.logger.Error("failed to mark recording gapped",
				"recording_id", recordingID, "error", gapErr)
		}
		w.logger.Warn("writer queue full, frame dropped",
			"recording_id", recordingID, "frame_index", f.FrameIndex)
		return nil
	}
	return errors.Wrap(err, "Writer", "Submit", "queue frame")
}

// Flush blocks until every append queued before the call has landed.
// The control plane flushes before closing a recording so
// stop_recording is synchronous.
func (w *Writer) Flush(timeout time.Duration) error {
	done := make(chan struct{})
	deadline := time.Now().Add(timeout)
	for {
		err := w.pool.Submit(appendJob{flush: done})
		if err == nil {
			break
		}
		if !stderrors.Is(err, worker.ErrQueueFull) {
			return errors.Wrap(err, "Writer", "Flush", "queue flush marker")
		}
		if time.Now().After(deadline) {
			return errors.WrapTransient(worker.ErrQueueFull, "Writer", "Flush", "writer queue congested")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
		return nil
	case <-time.After(time.Until(deadline)):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Writer", "Flush", "waiting for queued appends")
	}
}

// Stop drains queued appends and stops the worker.
func (w *Writer) Stop(timeout time.Duration) error {
	return w.pool.Stop(timeout)
}

func (w *Writer) process(_ context.Context, job appendJob) error {
	if job.flush != nil {
		close(job.flush)
		return nil
	}
	err := w.store.Append(job.recordingID, job.frame, job.recvTime)
	if err == nil {
		return nil
	}
	if errors.IsInvalid(err) {
		// Duplicate or closed-recording appends are dropped quietly;
		// the store already rejected them.
		w.logger.Debug("append rejected",
			"recording_id", job.recordingID, "frame_index", job.frame.FrameIndex, "error", err)
		return nil
	}
	if w.metrics != nil {
		w.metrics.PersistDropped.Inc()
	}
	if gapErr := w.store.MarkGapped(job.recordingID); gapErr != nil {
		w.logger.Error("failed to mark recording gapped",
			"recording_id", job.recordingID, "error", gapErr)
	}
	w.logger.Error("append failed",
		"recording_id", job.recordingID, "frame_index", job.frame.FrameIndex, "error", err)
	return err
}
