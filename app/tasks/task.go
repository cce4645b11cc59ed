package tasks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

type TaskType string

const (
	TaskTypeRetryStream    TaskType = "retry_stream"
	TaskTypeExpireSessions TaskType = "expire_sessions"
)

const (
	DefaultMaxRetries = 3
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetStreamKey() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

type Task struct {
	ID         string
	Type       TaskType
	StreamKey  string // empty for tasks not bound to one stream
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetStreamKey() string {
	return t.StreamKey
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, streamKey string) Task {
	return Task{
		ID:         ulid.Make().String(),
		Type:       taskType,
		StreamKey:  streamKey,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// dedupKey identifies tasks that must not be queued twice at once.
func dedupKey(task TaskInterface) string {
	return string(task.GetType()) + ":" + task.GetStreamKey()
}
