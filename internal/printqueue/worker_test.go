package printqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/models"
)

type stubRenderer struct{}

func (stubRenderer) Render(labels []models.PrintLabel) ([]byte, error) {
	return []byte("%PDF-stub"), nil
}

type stubSink struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (s *stubSink) Send(_ context.Context, name string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, name)
	return nil
}

type stubNotifier struct {
	events []JobEvent
}

func (n *stubNotifier) SendToDevice(_ string, msg interface{}) bool {
	n.events = append(n.events, msg.(JobEvent))
	return true
}

func TestWorkerPrintsAndCompletes(t *testing.T) {
	f := newFixture(t)
	labelID := f.label(t, 10, "user-1")
	id, err := f.queue.Enqueue(f.ctx, []int64{labelID}, "user-1", "dev-1", PriorityNormal)
	require.NoError(t, err)

	sink := &stubSink{}
	notifier := &stubNotifier{}
	w := NewWorker(f.queue, f.labels, stubRenderer{}, sink, notifier)

	assert.Equal(t, 1, w.Drain(f.ctx))
	assert.Equal(t, []string{id}, sink.sent)

	job, err := f.queue.Job(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, StatusCompleted, notifier.events[0].Status)
}

func TestWorkerFailsOnSinkError(t *testing.T) {
	f := newFixture(t)
	labelID := f.label(t, 10, "user-1")
	id, err := f.queue.Enqueue(f.ctx, []int64{labelID}, "user-1", "dev-1", PriorityNormal)
	require.NoError(t, err)

	sink := &stubSink{err: errs.New("connection refused")}
	w := NewWorker(f.queue, f.labels, stubRenderer{}, sink, nil)

	// Each drain retries the job until it fails permanently
	assert.Equal(t, 3, w.Drain(f.ctx))

	job, err := f.queue.Job(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "connection refused")
}

func TestWorkerFailsMissingLabels(t *testing.T) {
	f := newFixture(t)
	id, err := f.queue.Enqueue(f.ctx, []int64{999}, "user-1", "dev-1", PriorityNormal)
	require.NoError(t, err)

	w := NewWorker(f.queue, f.labels, stubRenderer{}, &stubSink{}, nil)
	w.Drain(f.ctx)

	job, err := f.queue.Job(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
}
