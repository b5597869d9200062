// Package printqueue is a redis-backed priority queue of label print jobs.
// Dequeued jobs are leased, not removed: a job whose worker disappears is
// picked up again by CleanupExpired once its lease runs low.
package printqueue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/store"
)

const (
	priorityScale = 1e13

	statEnqueued  = "enqueued"
	statCompleted = "completed"
	statFailed    = "failed"
	statRetried   = "retried"
	statCancelled = "cancelled"
)

type Queue struct {
	kv      *kv.Store
	labels  store.LabelStore
	cfg     config.QueueConfig
	clock   clock.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func New(kvStore *kv.Store, labels store.LabelStore, cfg config.QueueConfig, clk clock.Clock, m *metrics.Metrics) *Queue {
	return &Queue{
		kv:      kvStore,
		labels:  labels,
		cfg:     cfg,
		clock:   clk,
		metrics: m,
		log:     logger.Component("printqueue"),
	}
}

// score puts higher classes first and, within a class, older jobs first
func score(p Priority, at time.Time) float64 {
	return p.weight()*priorityScale - float64(at.UnixMilli())
}

func (q *Queue) maxRetries() int {
	if q.cfg.MaxRetries > 0 {
		return q.cfg.MaxRetries
	}
	return 3
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	return q.kv.Put(ctx, kv.PrintJobKey(job.ID), job, q.cfg.JobRetention)
}

func (q *Queue) stat(ctx context.Context, field string) {
	if err := q.kv.HIncr(ctx, kv.PrintStatsKey, field, 1); err != nil {
		q.log.Warn().Err(err).Str("stat", field).Msg("failed to bump queue stat")
	}
}

// Enqueue registers a job for the given labels and returns its id
func (q *Queue) Enqueue(ctx context.Context, labelIDs []int64, actorID, deviceID string, priority Priority) (string, error) {
	if len(labelIDs) == 0 {
		return "", errs.Validation("print job needs at least one label")
	}
	if actorID == "" {
		return "", errs.Validation("print job needs an actor")
	}
	if priority == "" {
		priority = PriorityNormal
	}

	now := q.clock.Now()
	job := &Job{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		DeviceID:   deviceID,
		LabelIDs:   append([]int64(nil), labelIDs...),
		Priority:   priority,
		Status:     StatusQueued,
		MaxRetries: q.maxRetries(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := q.save(ctx, job); err != nil {
		return "", err
	}
	if err := q.kv.SAdd(ctx, kv.PrintUserKey(actorID), job.ID, q.cfg.JobRetention); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to index job by user")
	}
	if err := q.kv.ZAdd(ctx, kv.PrintQueueKey, job.ID, score(priority, now)); err != nil {
		_, _ = q.kv.Delete(ctx, kv.PrintJobKey(job.ID))
		return "", err
	}

	q.stat(ctx, statEnqueued)
	q.metrics.PrintJob(statEnqueued)
	q.log.Info().
		Str("job_id", job.ID).
		Str("actor", actorID).
		Str("priority", string(priority)).
		Int("labels", len(labelIDs)).
		Msg("🖨️ print job queued")
	return job.ID, nil
}

// Job returns a job by id
func (q *Queue) Job(ctx context.Context, jobID string) (*Job, error) {
	job, err := kv.Get[Job](ctx, q.kv, kv.PrintJobKey(jobID))
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("print job", jobID)
		}
		return nil, err
	}
	return job, nil
}

// DequeueNext pops the highest-priority job and leases it. It returns nil
// when the queue is empty.
func (q *Queue) DequeueNext(ctx context.Context) (*Job, error) {
	for {
		id, _, ok, err := q.kv.ZPopMax(ctx, kv.PrintQueueKey)
		if err != nil || !ok {
			return nil, err
		}

		job, err := q.Job(ctx, id)
		if errs.Is(err, errs.ErrNotFound) {
			q.log.Warn().Str("job_id", id).Msg("dropping queue entry without job record")
			continue
		}
		if err != nil {
			return nil, err
		}

		now := q.clock.Now()
		expires := now.Add(q.cfg.LeaseDuration)
		job.Status = StatusProcessing
		job.LeaseExpiresAt = &expires
		job.UpdatedAt = now

		if err := q.kv.Put(ctx, kv.PrintLeaseKey(id), lease{JobID: id, ExpiresAt: expires}, q.cfg.LeaseDuration); err != nil {
			return nil, q.requeue(ctx, job, err)
		}
		if err := q.kv.ZAdd(ctx, kv.PrintLeasesKey, id, float64(expires.UnixMilli())); err != nil {
			return nil, q.requeue(ctx, job, err)
		}
		if err := q.save(ctx, job); err != nil {
			return nil, q.requeue(ctx, job, err)
		}

		q.log.Debug().Str("job_id", id).Time("lease_expires", expires).Msg("print job leased")
		return job, nil
	}
}

// requeue puts a job back after a failed lease attempt so it is not lost
func (q *Queue) requeue(ctx context.Context, job *Job, cause error) error {
	_, _ = q.kv.ZRem(ctx, kv.PrintLeasesKey, job.ID)
	_, _ = q.kv.Delete(ctx, kv.PrintLeaseKey(job.ID))
	if err := q.kv.ZAdd(ctx, kv.PrintQueueKey, job.ID, score(job.Priority, job.CreatedAt)); err != nil {
		q.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to requeue job after lease error")
	}
	return errs.Wrapf(cause, "lease job %s", job.ID)
}

// claim ends a lease. Only one of Complete, Fail, Cancel or the reaper wins it.
func (q *Queue) claim(ctx context.Context, jobID string) (bool, error) {
	ok, err := q.kv.ZRem(ctx, kv.PrintLeasesKey, jobID)
	if err != nil || !ok {
		return false, err
	}
	if _, err := q.kv.Delete(ctx, kv.PrintLeaseKey(jobID)); err != nil {
		q.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to delete lease")
	}
	return true, nil
}

// Complete finishes a leased job and marks its labels printed
func (q *Queue) Complete(ctx context.Context, jobID string) (bool, error) {
	job, err := q.Job(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != StatusProcessing {
		return false, nil
	}

	owned, err := q.claim(ctx, jobID)
	if err != nil || !owned {
		return false, err
	}

	now := q.clock.Now()
	if err := q.labels.MarkPrinted(ctx, job.LabelIDs, now); err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("failed to mark labels printed")
	}

	job.Status = StatusCompleted
	job.LeaseExpiresAt = nil
	job.CompletedAt = &now
	job.UpdatedAt = now
	job.ErrorMessage = ""
	if err := q.save(ctx, job); err != nil {
		return false, err
	}

	q.stat(ctx, statCompleted)
	q.metrics.PrintJob(statCompleted)
	q.log.Info().Str("job_id", jobID).Int("labels", len(job.LabelIDs)).Msg("✅ print job completed")
	return true, nil
}

// Fail records a failed attempt. Under the retry limit the job goes back to
// the queue at normal priority; otherwise it ends as failed.
func (q *Queue) Fail(ctx context.Context, jobID, message string) (bool, error) {
	job, err := q.Job(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != StatusProcessing {
		return false, nil
	}

	owned, err := q.claim(ctx, jobID)
	if err != nil || !owned {
		return false, err
	}
	return true, q.retryOrFail(ctx, job, message)
}

func (q *Queue) retryOrFail(ctx context.Context, job *Job, message string) error {
	now := q.clock.Now()
	job.RetryCount++
	job.ErrorMessage = message
	job.LeaseExpiresAt = nil
	job.UpdatedAt = now

	if job.RetryCount < job.MaxRetries {
		job.Status = StatusQueued
		job.Priority = PriorityNormal
		if err := q.save(ctx, job); err != nil {
			return err
		}
		if err := q.kv.ZAdd(ctx, kv.PrintQueueKey, job.ID, score(job.Priority, now)); err != nil {
			return err
		}

		q.stat(ctx, statRetried)
		q.metrics.PrintJob(statRetried)
		q.log.Warn().
			Str("job_id", job.ID).
			Int("retry", job.RetryCount).
			Str("error", message).
			Msg("print job failed, retrying")
		return nil
	}

	job.Status = StatusFailed
	if err := q.save(ctx, job); err != nil {
		return err
	}

	q.stat(ctx, statFailed)
	q.metrics.PrintJob(statFailed)
	q.log.Error().
		Str("job_id", job.ID).
		Int("retries", job.RetryCount).
		Str("error", message).
		Msg("❌ print job failed permanently")
	return nil
}

// Cancel removes a queued or leased job. Only the owning actor may cancel.
func (q *Queue) Cancel(ctx context.Context, jobID, actorID string) (bool, error) {
	job, err := q.Job(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.ActorID != actorID {
		return false, errs.Mark(errs.Newf("job %s belongs to another user", jobID), errs.ErrForbidden)
	}

	var removed bool
	switch job.Status {
	case StatusQueued:
		removed, err = q.kv.ZRem(ctx, kv.PrintQueueKey, jobID)
	case StatusProcessing:
		removed, err = q.claim(ctx, jobID)
	}
	if err != nil || !removed {
		return false, err
	}

	if _, err := q.kv.Delete(ctx, kv.PrintJobKey(jobID)); err != nil {
		return false, err
	}
	if err := q.kv.SRem(ctx, kv.PrintUserKey(actorID), jobID); err != nil {
		q.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to unindex cancelled job")
	}

	q.stat(ctx, statCancelled)
	q.metrics.PrintJob(statCancelled)
	q.log.Info().Str("job_id", jobID).Str("actor", actorID).Msg("print job cancelled")
	return true, nil
}

// Status reports queue depth, leased jobs and the counters
func (q *Queue) Status(ctx context.Context) (QueueStatus, error) {
	queued, err := q.kv.ZCard(ctx, kv.PrintQueueKey)
	if err != nil {
		return QueueStatus{}, err
	}
	processing, err := q.kv.ZCard(ctx, kv.PrintLeasesKey)
	if err != nil {
		return QueueStatus{}, err
	}
	counters, err := q.kv.HCounters(ctx, kv.PrintStatsKey)
	if err != nil {
		return QueueStatus{}, err
	}

	q.metrics.QueueDepth(queued, processing)
	return QueueStatus{
		QueueLength:     queued,
		ProcessingCount: processing,
		Stats: Stats{
			Enqueued:  counters[statEnqueued],
			Completed: counters[statCompleted],
			Failed:    counters[statFailed],
			Retried:   counters[statRetried],
			Cancelled: counters[statCancelled],
		},
	}, nil
}

// ResetStats zeroes the counters
func (q *Queue) ResetStats(ctx context.Context) error {
	if _, err := q.kv.Delete(ctx, kv.PrintStatsKey); err != nil {
		return err
	}
	q.log.Info().Msg("print queue stats reset")
	return nil
}

// UserJobs lists the actor's jobs still retained, newest first
func (q *Queue) UserJobs(ctx context.Context, actorID string) ([]Job, error) {
	ids, err := q.kv.SMembers(ctx, kv.PrintUserKey(actorID))
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Job(ctx, id)
		if errs.Is(err, errs.ErrNotFound) {
			_ = q.kv.SRem(ctx, kv.PrintUserKey(actorID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// CleanupExpired treats leases close to running out as failed attempts
func (q *Queue) CleanupExpired(ctx context.Context) (int, error) {
	horizon := q.clock.Now().Add(q.cfg.LeaseGrace)
	due, err := q.kv.ZRangeUpTo(ctx, kv.PrintLeasesKey, float64(horizon.UnixMilli()))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range due {
		job, err := q.Job(ctx, id)
		if errs.Is(err, errs.ErrNotFound) {
			_, _ = q.claim(ctx, id)
			continue
		}
		if err != nil {
			q.log.Warn().Err(err).Str("job_id", id).Msg("failed to load leased job")
			continue
		}

		owned, err := q.claim(ctx, id)
		if err != nil || !owned {
			continue
		}
		if err := q.retryOrFail(ctx, job, "lease expired"); err != nil {
			q.log.Error().Err(err).Str("job_id", id).Msg("failed to recover expired lease")
			continue
		}
		count++
	}

	if count > 0 {
		q.log.Warn().Int("count", count).Msg("🧹 recovered print jobs with expired leases")
	}
	return count, nil
}
