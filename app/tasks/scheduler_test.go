package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/clubfeed/app/feed"
	"github.com/lysyi3m/clubfeed/app/session"
	"github.com/lysyi3m/clubfeed/app/stream"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	Task
	failures atomic.Int32 // remaining failures
	runs     atomic.Int32
	done     chan struct{}
}

func newFakeTask(key string, failures int32) *fakeTask {
	t := &fakeTask{Task: NewTask(TaskTypeRetryStream, key), done: make(chan struct{})}
	t.failures.Store(failures)
	return t
}

func (t *fakeTask) Execute(ctx context.Context) error {
	t.runs.Add(1)
	if t.failures.Add(-1) >= 0 {
		return errors.New("temporary failure")
	}
	close(t.done)
	return nil
}

type fakeProvider struct {
	mu   sync.Mutex
	fail bool
}

func (p *fakeProvider) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *fakeProvider) Fetcher(config *feed.Config) (stream.PageFetcher, error) {
	return stream.FetcherFunc(func(ctx context.Context, key stream.Key, pageIndex int) (stream.Page, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.fail {
			return stream.Page{}, &stream.TransportError{Op: "fetch", Err: errors.New("offline")}
		}
		return stream.Page{Index: pageIndex, Items: []stream.Item{{ID: "1"}, {ID: "2"}}}, nil
	}), nil
}

func (p *fakeProvider) Seed() stream.OverlaySource { return nil }

func (p *fakeProvider) Remote(config *feed.Config) stream.Remote { return nil }

func newTestManager(t *testing.T) (*session.Manager, *fakeProvider) {
	t.Helper()
	dir := t.TempDir()
	content := "path: /wall\nsettings:\n  enabled: true\n  retry_failed: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wall.yml"), []byte(content), 0644))

	configs := feed.NewConfigCache(dir)
	require.NoError(t, configs.Run())

	provider := &fakeProvider{}
	return session.NewManager(configs, provider), provider
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry %d", tt.retry), func(t *testing.T) {
			assert.Equal(t, tt.expected, retryDelay(tt.retry))
		})
	}
}

func TestNewTask(t *testing.T) {
	a := NewTask(TaskTypeRetryStream, "wall/1")
	b := NewTask(TaskTypeRetryStream, "wall/1")

	assert.NotEqual(t, a.ID, b.ID)
	_, err := ulid.Parse(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, a.MaxRetries)
	assert.True(t, a.CanRetry())
	assert.Zero(t, a.GetDuration())
}

func TestEnqueueTaskDeduplicates(t *testing.T) {
	s := NewScheduler(nil, time.Hour, 1, 0)
	defer s.cancel()

	require.NoError(t, s.EnqueueTask(newFakeTask("wall/1", 0)))
	require.NoError(t, s.EnqueueTask(newFakeTask("wall/1", 0)))
	require.NoError(t, s.EnqueueTask(newFakeTask("wall/2", 0)))

	assert.Len(t, s.taskQueue, 2)
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	s := NewScheduler(nil, time.Hour, 1, 0)
	defer s.cancel()

	for i := 0; i < cap(s.taskQueue); i++ {
		require.NoError(t, s.EnqueueTask(newFakeTask(fmt.Sprintf("wall/%d", i), 0)))
	}

	overflow := newFakeTask("wall/overflow", 0)
	assert.Error(t, s.EnqueueTask(overflow))

	_, pending := s.pending.Load(dedupKey(overflow))
	assert.False(t, pending, "rejected task must not stay pending")
}

func TestSchedulerRetriesFailedTask(t *testing.T) {
	s := NewScheduler(nil, time.Hour, 1, 0)
	s.Start()
	defer s.Stop()

	task := newFakeTask("wall/1", 1)
	require.NoError(t, s.EnqueueTask(task))

	select {
	case <-task.done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not retried")
	}

	assert.Equal(t, int32(2), task.runs.Load())
	assert.Equal(t, 1, task.GetRetryCount())

	require.Eventually(t, func() bool {
		_, pending := s.pending.Load(dedupKey(task))
		return !pending
	}, time.Second, 10*time.Millisecond)
}

func TestRetryStreamTask(t *testing.T) {
	manager, provider := newTestManager(t)
	ctx := context.Background()
	key := stream.Key{Kind: "wall", Owner: "1"}

	sess, _, err := manager.Open(key)
	require.NoError(t, err)

	provider.setFail(true)
	require.Error(t, sess.Controller.LoadInitial(ctx))
	require.Equal(t, stream.StateError, sess.Controller.State())

	assert.Error(t, NewRetryStreamTask(key, manager).Execute(ctx), "still failing")

	provider.setFail(false)
	require.NoError(t, NewRetryStreamTask(key, manager).Execute(ctx))

	snap := sess.Controller.Snapshot()
	assert.Equal(t, stream.StateReady, snap.State)
	assert.Len(t, snap.Items, 2)

	// Healthy and closed streams are left alone.
	assert.NoError(t, NewRetryStreamTask(key, manager).Execute(ctx))
	manager.Close(key)
	assert.NoError(t, NewRetryStreamTask(key, manager).Execute(ctx))
}

func TestSchedulerEnqueuesRetriesForFailedStreams(t *testing.T) {
	manager, provider := newTestManager(t)
	ctx := context.Background()

	sess, _, err := manager.Open(stream.Key{Kind: "wall", Owner: "1"})
	require.NoError(t, err)
	provider.setFail(true)
	require.Error(t, sess.Controller.LoadInitial(ctx))

	s := NewScheduler(manager, time.Hour, 1, time.Hour)
	defer s.cancel()

	s.enqueueTasks()
	require.Len(t, s.taskQueue, 2)

	var types []TaskType
	for len(s.taskQueue) > 0 {
		types = append(types, (<-s.taskQueue).GetType())
	}
	assert.ElementsMatch(t, []TaskType{TaskTypeExpireSessions, TaskTypeRetryStream}, types)
}

func TestExpireSessionsTask(t *testing.T) {
	manager, _ := newTestManager(t)

	_, _, err := manager.Open(stream.Key{Kind: "wall", Owner: "1"})
	require.NoError(t, err)

	require.NoError(t, NewExpireSessionsTask(manager, time.Hour).Execute(context.Background()))
	assert.Equal(t, 1, manager.Count())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, NewExpireSessionsTask(manager, time.Millisecond).Execute(context.Background()))
	assert.Equal(t, 0, manager.Count())
}
