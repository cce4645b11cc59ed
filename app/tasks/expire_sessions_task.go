package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/clubfeed/app/session"
)

type ExpireSessionsTask struct {
	Task
	manager     *session.Manager
	idleTimeout time.Duration
}

func NewExpireSessionsTask(manager *session.Manager, idleTimeout time.Duration) *ExpireSessionsTask {
	return &ExpireSessionsTask{
		Task:        NewTask(TaskTypeExpireSessions, ""),
		manager:     manager,
		idleTimeout: idleTimeout,
	}
}

func (t *ExpireSessionsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	expired := t.manager.ExpireIdle(time.Now(), t.idleTimeout)
	if expired == 0 {
		return nil
	}

	slog.Info("Task completed",
		"type", "ExpireSessions",
		"duration", t.GetDuration(),
		"expired", expired,
		"open", t.manager.Count())

	return nil
}
