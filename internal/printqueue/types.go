package printqueue

import (
	"strings"
	"time"

	"github.com/xelth-com/colocacion/internal/errs"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// weight orders priority classes. Classes never overlap because the
// timestamp component of a score is far smaller than one weight step.
func (p Priority) weight() float64 {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityLow:
		return 1
	default:
		return 5
	}
}

// ParsePriority accepts low, normal and high; empty means normal
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "", PriorityNormal:
		return PriorityNormal, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", errs.Validation("invalid priority %q: expected low, normal or high", s)
}

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one print request for a set of labels
type Job struct {
	ID             string     `json:"id"`
	ActorID        string     `json:"actorId"`
	DeviceID       string     `json:"deviceId"`
	LabelIDs       []int64    `json:"labelIds"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	RetryCount     int        `json:"retryCount"`
	MaxRetries     int        `json:"maxRetries"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// lease is the value stored under print_queue:processing:<id>
type lease struct {
	JobID     string    `json:"jobId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Stats are monotonic counters, reset only through ResetStats
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Cancelled int64 `json:"cancelled"`
}

// QueueStatus is the snapshot returned by Status
type QueueStatus struct {
	QueueLength     int64 `json:"queueLength"`
	ProcessingCount int64 `json:"processingCount"`
	Stats           Stats `json:"stats"`
}
