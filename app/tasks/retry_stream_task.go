package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/clubfeed/app/session"
	"github.com/lysyi3m/clubfeed/app/stream"
)

// RetryStreamTask reloads a stream session that ended in the error state.
type RetryStreamTask struct {
	Task
	Key     stream.Key
	manager *session.Manager
}

func NewRetryStreamTask(key stream.Key, manager *session.Manager) *RetryStreamTask {
	return &RetryStreamTask{
		Task:    NewTask(TaskTypeRetryStream, key.String()),
		Key:     key,
		manager: manager,
	}
}

func (t *RetryStreamTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s, ok := t.manager.Peek(t.Key)
	if !ok {
		slog.Debug("Stream session closed, skipping retry", "stream", t.StreamKey)
		return nil
	}

	if state := s.Controller.State(); state != stream.StateError {
		slog.Debug("Stream recovered, skipping retry", "stream", t.StreamKey, "state", state.String())
		return nil
	}

	if err := t.manager.Reload(ctx, []*session.Session{s}, 1); err != nil {
		return fmt.Errorf("failed to retry stream: %w", err)
	}

	slog.Info("Task completed",
		"type", "RetryStream",
		"stream", t.StreamKey,
		"duration", t.GetDuration(),
		"items", len(s.Controller.Snapshot().Items))

	return nil
}
