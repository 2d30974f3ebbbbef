package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts ...ExecutorOption) (*Executor, *History) {
	t.Helper()
	history := NewHistory(0)
	return NewExecutor(history, opts...), history
}

// blockingWork returns work that signals started and then waits for release or cancellation.
func blockingWork(started chan<- struct{}, release <-chan struct{}, result any) Work {
	return func(ctx context.Context) (any, error) {
		if started != nil {
			close(started)
		}
		select {
		case <-release:
			return result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestRunTaskRecordsCompletedEntry(t *testing.T) {
	executor, history := newTestExecutor(t)

	openApp := func(app string) Work {
		return func(ctx context.Context) (any, error) {
			return app + " opened", nil
		}
	}
	result, err := executor.RunTask(context.Background(), "launch_calculator", openApp("calculator"))
	require.NoError(t, err)
	assert.Equal(t, "calculator opened", result)

	entries := history.Tail(10)
	require.Len(t, entries, 1)
	assert.Equal(t, "launch_calculator", entries[0].Name)
	assert.Equal(t, StatusCompleted, entries[0].Status)
	require.NotNil(t, entries[0].Result)
	assert.Equal(t, "calculator opened", *entries[0].Result)
	assert.Nil(t, entries[0].Error)
	assert.NotNil(t, entries[0].Duration)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, executor.IsActive("launch_calculator"))
}

func TestRunTaskRejectsSecondRunWithSameName(t *testing.T) {
	executor, history := newTestExecutor(t)

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		_, err := executor.RunTask(context.Background(), "launch_calculator", blockingWork(started, release, "ok"))
		firstDone <- err
	}()
	<-started

	_, err := executor.RunTask(context.Background(), "launch_calculator", blockingWork(nil, release, "ok"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskAlreadyRunning)
	var execErr *TaskExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "launch_calculator", execErr.Name)
	assert.Contains(t, err.Error(), "launch_calculator")

	close(release)
	require.NoError(t, <-firstDone)

	entries := history.Tail(10)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusCompleted, entries[0].Status)
}

func TestGoAllowsOneActiveRunPerName(t *testing.T) {
	executor, _ := newTestExecutor(t)
	release := make(chan struct{})
	defer close(release)

	const callers = 32
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := executor.Go(context.Background(), "shared", blockingWork(nil, release, nil))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrTaskAlreadyRunning):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
	assert.Len(t, executor.Active(), 1)
}

func TestNameCanBeReusedAfterCompletion(t *testing.T) {
	executor, history := newTestExecutor(t)
	work := func(ctx context.Context) (any, error) { return "done", nil }

	for i := 0; i < 3; i++ {
		_, err := executor.RunTask(context.Background(), "again", work)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, history.Len())
}

func TestRunTaskFailureIsRecordedAndSurfaced(t *testing.T) {
	executor, history := newTestExecutor(t)
	boom := errors.New("disk full")

	_, err := executor.RunTask(context.Background(), "backup", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var execErr *TaskExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "backup", execErr.Name)

	entry, ok := history.Latest("backup")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, entry.Status)
	require.NotNil(t, entry.Error)
	assert.Equal(t, "disk full", *entry.Error)
	assert.Nil(t, entry.Result)
}

func TestPanicInWorkBecomesFailure(t *testing.T) {
	executor, history := newTestExecutor(t)

	_, err := executor.RunTask(context.Background(), "fragile", func(ctx context.Context) (any, error) {
		panic("unexpected state")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected state")

	entry, ok := history.Latest("fragile")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, entry.Status)
}

func TestCancelIsCooperativeAndRecordedOnce(t *testing.T) {
	executor, history := newTestExecutor(t)

	started := make(chan struct{})
	observed := make(chan struct{})
	handle, err := executor.Go(context.Background(), "launch_music", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		close(observed)
		return "stopped late", nil
	})
	require.NoError(t, err)
	<-started

	assert.True(t, executor.Cancel("launch_music"))
	assert.False(t, executor.IsActive("launch_music"))

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("work did not observe cancellation")
	}

	_, waitErr := handle.Wait(context.Background())
	assert.ErrorIs(t, waitErr, ErrTaskCancelled)

	require.NoError(t, executor.Wait(context.Background()))
	entries := history.Tail(10)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusCancelled, entries[0].Status)
}

func TestCancelUnknownNameIsNoop(t *testing.T) {
	executor, history := newTestExecutor(t)
	assert.False(t, executor.Cancel("nothing"))
	assert.Equal(t, 0, history.Len())
}

func TestCancelRacingCompletionAppendsOnce(t *testing.T) {
	executor, history := newTestExecutor(t)

	const runs = 200
	for i := 0; i < runs; i++ {
		name := fmt.Sprintf("race-%d", i)
		handle, err := executor.Go(context.Background(), name, func(ctx context.Context) (any, error) {
			return "fast", nil
		})
		require.NoError(t, err)
		go executor.Cancel(name)
		<-handle.Done()
	}
	require.NoError(t, executor.Wait(context.Background()))
	// let late Cancel calls land
	time.Sleep(20 * time.Millisecond)

	entries := history.Tail(runs * 2)
	require.Len(t, entries, runs)
	seen := make(map[string]int, runs)
	for _, entry := range entries {
		seen[entry.Name]++
		assert.Contains(t, []Status{StatusCompleted, StatusCancelled}, entry.Status)
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, name)
	}
}

func TestHistoryFollowsCompletionOrder(t *testing.T) {
	executor, history := newTestExecutor(t)

	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	handleB, err := executor.Go(context.Background(), "B", blockingWork(nil, releaseB, "b"))
	require.NoError(t, err)
	handleA, err := executor.Go(context.Background(), "A", blockingWork(nil, releaseA, "a"))
	require.NoError(t, err)

	close(releaseA)
	<-handleA.Done()
	close(releaseB)
	<-handleB.Done()

	entries := history.Tail(10)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Name)
	assert.Equal(t, "B", entries[1].Name)
}

func TestTaskTimeoutIsRecordedAsFailure(t *testing.T) {
	executor, history := newTestExecutor(t, WithTaskTimeout(20*time.Millisecond))

	_, err := executor.RunTask(context.Background(), "slow", blockingWork(nil, nil, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskTimeout)

	entry, ok := history.Latest("slow")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, entry.Status)
}

func TestRunTaskCallerCancellationCancelsTask(t *testing.T) {
	executor, history := newTestExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	_, err := executor.RunTask(ctx, "interrupted", blockingWork(started, nil, nil))
	assert.ErrorIs(t, err, context.Canceled)

	entry, ok := history.Latest("interrupted")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, entry.Status)
}

func TestHooksSeeStartAndCompletion(t *testing.T) {
	var (
		mu       sync.Mutex
		started  []string
		finished []HistoryEntry
	)
	executor, _ := newTestExecutor(t,
		WithStartHook(func(name string) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, name)
		}),
		WithCompletionHook(func(entry HistoryEntry) {
			mu.Lock()
			defer mu.Unlock()
			finished = append(finished, entry)
		}),
	)

	_, err := executor.RunTask(context.Background(), "hooked", func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hooked"}, started)
	require.Len(t, finished, 1)
	assert.Equal(t, StatusCompleted, finished[0].Status)
}

func TestCompletionHooksFollowHistoryOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	executor, history := newTestExecutor(t, WithCompletionHook(func(entry HistoryEntry) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, entry.ID)
	}))

	const n = 40
	release := make(chan struct{})
	for i := 0; i < n; i++ {
		_, err := executor.Go(context.Background(), fmt.Sprintf("task-%d", i), blockingWork(nil, release, i))
		require.NoError(t, err)
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i += 2 {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			executor.Cancel(name)
		}(fmt.Sprintf("task-%d", i))
	}
	close(release)
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, executor.Wait(ctx))

	entries := history.Tail(n)
	require.Len(t, entries, n)
	want := make([]string, 0, n)
	for _, entry := range entries {
		want = append(want, entry.ID)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, ids)
}

func TestCancelAllStopsEveryActiveTask(t *testing.T) {
	executor, history := newTestExecutor(t)
	for _, name := range []string{"one", "two", "three"} {
		_, err := executor.Go(context.Background(), name, blockingWork(nil, nil, nil))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, executor.CancelAll())
	assert.Empty(t, executor.Active())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, executor.Wait(ctx))
	assert.Equal(t, 3, history.Len())
}

func TestGoValidatesInput(t *testing.T) {
	executor, _ := newTestExecutor(t)

	_, err := executor.Go(context.Background(), "", func(ctx context.Context) (any, error) { return nil, nil })
	assert.Error(t, err)
	_, err = executor.Go(context.Background(), "nil-work", nil)
	assert.Error(t, err)
}
