package printqueue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/models"
	"github.com/xelth-com/colocacion/internal/store"
)

// Renderer turns labels into a printable document
type Renderer interface {
	Render(labels []models.PrintLabel) ([]byte, error)
}

// Sink delivers a rendered document to a printer
type Sink interface {
	Send(ctx context.Context, name string, doc []byte) error
}

// Notifier pushes job updates to the device that requested the job
type Notifier interface {
	SendToDevice(deviceID string, msg interface{}) bool
}

// JobEvent is sent to the originating device when a job settles
type JobEvent struct {
	Type   string `json:"type"`
	JobID  string `json:"jobId"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Worker drains the queue: render, send, then complete or fail each job
type Worker struct {
	queue    *Queue
	labels   store.LabelStore
	renderer Renderer
	sink     Sink
	notifier Notifier
	interval time.Duration
	log      zerolog.Logger
}

func NewWorker(q *Queue, labels store.LabelStore, r Renderer, sink Sink, n Notifier) *Worker {
	interval := q.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		queue:    q,
		labels:   labels,
		renderer: r,
		sink:     sink,
		notifier: n,
		interval: interval,
		log:      logger.Component("print-worker"),
	}
}

// Run polls until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("🖨️ print worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("print worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain processes jobs until the queue is empty and returns how many it handled
func (w *Worker) Drain(ctx context.Context) int {
	handled := 0
	for ctx.Err() == nil {
		job, err := w.queue.DequeueNext(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("failed to dequeue print job")
			return handled
		}
		if job == nil {
			return handled
		}
		w.process(ctx, job)
		handled++
	}
	return handled
}

func (w *Worker) process(ctx context.Context, job *Job) {
	if err := w.print(ctx, job); err != nil {
		if _, ferr := w.queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
			w.log.Error().Err(ferr).Str("job_id", job.ID).Msg("failed to record job failure")
		}
	} else if _, cerr := w.queue.Complete(ctx, job.ID); cerr != nil {
		w.log.Error().Err(cerr).Str("job_id", job.ID).Msg("failed to complete job")
	}
	w.notify(ctx, job.ID)
}

func (w *Worker) print(ctx context.Context, job *Job) error {
	labels, err := w.labels.FindByIDs(ctx, job.LabelIDs)
	if err != nil {
		return errs.Wrap(err, "load labels")
	}
	if len(labels) == 0 {
		return errs.Newf("none of the %d labels exist", len(job.LabelIDs))
	}

	doc, err := w.renderer.Render(labels)
	if err != nil {
		return errs.Wrap(err, "render labels")
	}
	if err := w.sink.Send(ctx, job.ID, doc); err != nil {
		return errs.Wrap(err, "send to printer")
	}
	return nil
}

func (w *Worker) notify(ctx context.Context, jobID string) {
	if w.notifier == nil {
		return
	}
	job, err := w.queue.Job(ctx, jobID)
	if err != nil || job.DeviceID == "" {
		return
	}
	w.notifier.SendToDevice(job.DeviceID, JobEvent{
		Type:   "print_job",
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.ErrorMessage,
	})
}
