package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/clubfeed/app/session"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	manager     *session.Manager
	interval    time.Duration
	workerCount int
	idleTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
	pending     sync.Map // dedupKey -> struct{}
}

func NewScheduler(manager *session.Manager, interval time.Duration, workerCount int, idleTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		manager:     manager,
		interval:    interval,
		workerCount: workerCount,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

// EnqueueTask queues a task unless an equivalent one is already queued or
// running.
func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	key := dedupKey(task)
	if _, loaded := s.pending.LoadOrStore(key, struct{}{}); loaded {
		slog.Debug("Task already pending, skipping", "type", string(task.GetType()), "stream", task.GetStreamKey())
		return nil
	}

	if err := s.enqueue(task); err != nil {
		s.pending.Delete(key)
		return err
	}
	return nil
}

func (s *Scheduler) enqueue(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueTasks() {
	if s.idleTimeout > 0 {
		if err := s.EnqueueTask(NewExpireSessionsTask(s.manager, s.idleTimeout)); err != nil {
			slog.Warn("Failed to enqueue ExpireSessionsTask", "error", err)
		}
	}

	failed := s.manager.Failed()
	if len(failed) == 0 {
		return
	}

	slog.Debug("Scheduling retries for failed streams", "count", len(failed))

	for _, sess := range failed {
		if err := s.EnqueueTask(NewRetryStreamTask(sess.Key, s.manager)); err != nil {
			slog.Warn("Failed to enqueue RetryStreamTask", "stream", sess.Key.String(), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.pending.Delete(dedupKey(task))
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		s.pending.Delete(dedupKey(task))
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "stream", task.GetStreamKey(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-timer.C:
			if retryErr := s.enqueue(task); retryErr != nil {
				s.pending.Delete(dedupKey(task))
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// retryDelay doubles from one second and is capped at 30 seconds.
func retryDelay(retryCount int) time.Duration {
	delay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
