package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	history := NewHistory(0)
	executor := NewExecutor(history)
	scheduler := NewScheduler(executor, WithLocation(time.UTC))
	return NewManager(executor, scheduler, history, 0)
}

func TestGetTaskStatusPrecedence(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.RunTask(ctx, "x", func(ctx context.Context) (any, error) {
		return nil, errors.New("first attempt broke")
	})
	require.Error(t, err)
	info, err := manager.GetTaskStatus("x")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err = manager.Go(ctx, "x", blockingWork(started, release, "ok"))
	require.NoError(t, err)
	<-started

	info, err = manager.GetTaskStatus("x")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	assert.NotNil(t, info.StartedAt)

	_, err = manager.Schedule("x", IntervalTrigger(time.Hour), noopWork)
	require.NoError(t, err)
	info, err = manager.GetTaskStatus("x")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status, "active beats scheduled")

	close(release)
	require.NoError(t, manager.Executor().Wait(ctx))

	info, err = manager.GetTaskStatus("x")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, info.Status, "scheduled beats history")
	assert.NotNil(t, info.NextRunTime)
	assert.Equal(t, "interval[1h0m0s]", info.Trigger)

	manager.Unschedule("x")
	info, err = manager.GetTaskStatus("x")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, info.Status)
	require.NotNil(t, info.Entry)
}

func TestGetTaskStatusNotFoundSentinel(t *testing.T) {
	manager := newTestManager(t)

	info, err := manager.GetTaskStatus("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusNotFound, info.Status)
	assert.False(t, info.Status.IsTerminal())
}

func TestCancelTaskUnknownNameIsNoop(t *testing.T) {
	manager := newTestManager(t)
	assert.False(t, manager.CancelTask("launch_nothing"))
	assert.Empty(t, manager.HistoryTail(10))
}

func TestCancelTaskStopsActiveRunAndSchedule(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Schedule("launch_radio", IntervalTrigger(time.Hour), noopWork)
	require.NoError(t, err)
	handle, err := manager.Go(ctx, "launch_radio", blockingWork(nil, nil, nil))
	require.NoError(t, err)

	assert.True(t, manager.CancelTask("launch_radio"))
	<-handle.Done()

	info, err := manager.GetTaskStatus("launch_radio")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, info.Status)
	assert.Empty(t, manager.Scheduler().ListJobs())
}

func TestGetAllTasksReturnsThreeViews(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := manager.RunTask(ctx, fmt.Sprintf("quick-%02d", i), noopWork)
		require.NoError(t, err)
	}
	release := make(chan struct{})
	defer close(release)
	_, err := manager.Go(ctx, "long", blockingWork(nil, release, nil))
	require.NoError(t, err)
	_, err = manager.Schedule("daily_backup", CronTrigger("0 2 * * *"), noopWork)
	require.NoError(t, err)

	snapshot := manager.GetAllTasks()
	require.Len(t, snapshot.Active, 1)
	assert.Equal(t, "long", snapshot.Active[0].Name)
	require.Len(t, snapshot.Scheduled, 1)
	assert.Equal(t, "daily_backup", snapshot.Scheduled[0].Name)
	require.Len(t, snapshot.History, DefaultHistoryWindow)
	assert.Equal(t, "quick-05", snapshot.History[0].Name)
	assert.Equal(t, "quick-14", snapshot.History[DefaultHistoryWindow-1].Name)
}

func TestShutdownCancelsActiveTasks(t *testing.T) {
	manager := newTestManager(t)
	manager.Scheduler().Start()

	_, err := manager.Go(context.Background(), "launch_browser", blockingWork(nil, nil, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(ctx))

	assert.Empty(t, manager.Executor().Active())
	entry, ok := manager.History().Latest("launch_browser")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, entry.Status)
}
