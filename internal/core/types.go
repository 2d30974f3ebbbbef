package core

import (
	"context"
	"time"
)

// Status describes where a named task currently is in its lifecycle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusNotFound is reported for names that are neither active, scheduled nor in history.
	StatusNotFound Status = "not_found"
)

// IsTerminal reports whether the status belongs to a finished run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Work is a unit of asynchronous work. The context is cancelled when the task is
// cancelled or times out; work must check it at its own safe points.
type Work func(ctx context.Context) (any, error)

// HistoryEntry is the immutable record of a finished run.
type HistoryEntry struct {
	ID        string
	Name      string
	Status    Status
	Timestamp time.Time
	Duration  *time.Duration
	Result    *string
	Error     *string
}

// TaskInfo is the answer to a status query for one name.
type TaskInfo struct {
	Name        string
	Status      Status
	StartedAt   *time.Time
	NextRunTime *time.Time
	Trigger     string
	Entry       *HistoryEntry
}

// JobInfo summarises a scheduled job.
type JobInfo struct {
	Name        string
	Kind        TriggerKind
	Trigger     string
	NextRunTime *time.Time
	Recurring   bool
}

// JobSpec is the persisted definition of a scheduled job. Exactly one of Launcher or
// Command names what the job runs.
type JobSpec struct {
	Name       string
	Trigger    Trigger
	Launcher   string
	Command    string
	WorkingDir string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Snapshot groups the three views returned by Manager.GetAllTasks.
type Snapshot struct {
	Active    []TaskInfo
	Scheduled []JobInfo
	History   []HistoryEntry
}

func ptrString(v string) *string {
	return &v
}

func ptrTime(v time.Time) *time.Time {
	return &v
}
