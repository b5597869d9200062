// Package scheduler runs the timer-driven cleanup tasks that resolve expired
// ephemeral state outside of request handling.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/logger"
)

// TaskFunc performs one cleanup pass and reports how many items it resolved
type TaskFunc func(ctx context.Context) (int, error)

// Task is a named periodic cleanup
type Task struct {
	Name     string
	Interval time.Duration
	Run      TaskFunc
}

type Reaper struct {
	tasks  []Task
	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReaper(tasks ...Task) *Reaper {
	return &Reaper{tasks: tasks, log: logger.Component("reaper")}
}

// Start launches one goroutine per task. Each task runs once immediately.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, t := range r.tasks {
		if t.Interval <= 0 {
			r.log.Warn().Str("task", t.Name).Msg("task has no interval, skipped")
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, t)
	}
	r.log.Info().Int("tasks", len(r.tasks)).Msg("🧹 reaper started")
}

// Stop cancels every task and waits for in-flight passes to finish
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info().Msg("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, t Task) {
	defer r.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx, t)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single pass of t, logging the outcome
func (r *Reaper) RunOnce(ctx context.Context, t Task) int {
	n, err := t.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error().Err(err).Str("task", t.Name).Msg("cleanup task failed")
		}
		return n
	}
	if n > 0 {
		r.log.Debug().Str("task", t.Name).Int("resolved", n).Msg("cleanup pass done")
	}
	return n
}
