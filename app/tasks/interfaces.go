package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background stream maintenance.
// Example usage:
//
//	scheduler := NewScheduler(manager, interval, workerCount, idleTimeout)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewExpireSessionsTask(manager, idleTimeout))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
