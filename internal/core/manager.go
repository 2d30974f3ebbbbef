package core

import (
	"context"
)

// DefaultHistoryWindow is how many history entries GetAllTasks surfaces.
const DefaultHistoryWindow = 10

// Manager is the task facade used by the interaction loop and the outer surfaces. It
// combines the executor, the scheduler and the history log.
type Manager struct {
	executor  *Executor
	scheduler *Scheduler
	history   *History
	window    int
}

// NewManager wires the three task components together. window <= 0 selects
// DefaultHistoryWindow.
func NewManager(executor *Executor, scheduler *Scheduler, history *History, window int) *Manager {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Manager{
		executor:  executor,
		scheduler: scheduler,
		history:   history,
		window:    window,
	}
}

func (m *Manager) Executor() *Executor   { return m.executor }
func (m *Manager) Scheduler() *Scheduler { return m.scheduler }
func (m *Manager) History() *History     { return m.history }

// RunTask runs work under name and waits for its outcome.
func (m *Manager) RunTask(ctx context.Context, name string, work Work) (any, error) {
	return m.executor.RunTask(ctx, name, work)
}

// Go starts work under name without waiting for it.
func (m *Manager) Go(ctx context.Context, name string, work Work) (*Handle, error) {
	return m.executor.Go(ctx, name, work)
}

// Schedule registers a job; see Scheduler.Schedule.
func (m *Manager) Schedule(name string, trigger Trigger, work Work) (string, error) {
	return m.scheduler.Schedule(name, trigger, work)
}

// Unschedule removes a job; unknown names are ignored.
func (m *Manager) Unschedule(name string) bool {
	return m.scheduler.Unschedule(name)
}

// CancelTask cancels the active task called name and removes its schedule, whichever
// exist. It reports whether anything was affected; unknown names are not an error.
func (m *Manager) CancelTask(name string) bool {
	cancelled := m.executor.Cancel(name)
	unscheduled := m.scheduler.Unschedule(name)
	return cancelled || unscheduled
}

// GetTaskStatus looks name up in the active set, then the job table, then history.
// Unknown names return ErrNotFound together with a StatusNotFound info.
func (m *Manager) GetTaskStatus(name string) (TaskInfo, error) {
	if info, ok := m.executor.Lookup(name); ok {
		return info, nil
	}
	if job, ok := m.scheduler.Job(name); ok {
		return TaskInfo{
			Name:        name,
			Status:      StatusScheduled,
			NextRunTime: job.NextRunTime,
			Trigger:     job.Trigger,
		}, nil
	}
	if entry, ok := m.history.Latest(name); ok {
		return TaskInfo{
			Name:   name,
			Status: entry.Status,
			Entry:  &entry,
		}, nil
	}
	return TaskInfo{Name: name, Status: StatusNotFound}, ErrNotFound
}

// GetAllTasks returns the active tasks, the scheduled jobs and the history window.
func (m *Manager) GetAllTasks() Snapshot {
	return Snapshot{
		Active:    m.executor.Active(),
		Scheduled: m.scheduler.ListJobs(),
		History:   m.history.Tail(m.window),
	}
}

// HistoryTail returns the last n history entries.
func (m *Manager) HistoryTail(n int) []HistoryEntry {
	return m.history.Tail(n)
}

// Shutdown stops the scheduler timer, cancels every active task and waits for task
// goroutines to return until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	stopCtx := m.scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		m.executor.CancelAll()
		return ctx.Err()
	}
	m.executor.CancelAll()
	return m.executor.Wait(ctx)
}
