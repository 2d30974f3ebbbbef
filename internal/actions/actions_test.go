package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/core"
	"jarvis/internal/store"
)

type memoryJobs struct {
	mu      sync.Mutex
	specs   map[string]*core.JobSpec
	failPut bool
}

func newMemoryJobs() *memoryJobs { return &memoryJobs{specs: map[string]*core.JobSpec{}} }

func (m *memoryJobs) UpsertJob(_ context.Context, spec *core.JobSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("database is locked")
	}
	copied := *spec
	m.specs[spec.Name] = &copied
	return nil
}

func (m *memoryJobs) DeleteJob(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.specs[name]; !ok {
		return store.ErrJobNotFound
	}
	delete(m.specs, name)
	return nil
}

func (m *memoryJobs) ListJobSpecs(context.Context) ([]*core.JobSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.JobSpec, 0, len(m.specs))
	for _, s := range m.specs {
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryJobs) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.specs[name]
	return ok
}

func newTestJobs(t *testing.T) (*Jobs, *core.Manager, *memoryJobs) {
	t.Helper()
	history := core.NewHistory(0)
	executor := core.NewExecutor(history)
	scheduler := core.NewScheduler(executor, core.WithLocation(time.UTC))
	scheduler.Start()
	manager := core.NewManager(executor, scheduler, history, 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	st := newMemoryJobs()
	launchers := NewLaunchers(map[string]string{"Calculator": "sleep 30", "empty": "  "})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(manager, st, launchers, logger), manager, st
}

func TestLaunchers(t *testing.T) {
	l := NewLaunchers(map[string]string{" Calculator ": "gnome-calculator", "broken": ""})
	l.lookPath = func(name string) (string, error) {
		if name == "firefox" {
			return "/usr/bin/firefox", nil
		}
		return "", errors.New("not found")
	}

	assert.Equal(t, []string{"calculator"}, l.Names())
	cmd, err := l.Resolve("CALCULATOR")
	require.NoError(t, err)
	assert.Equal(t, "gnome-calculator", cmd)

	cmd, err = l.Resolve("firefox")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/firefox", cmd)

	_, err = l.Resolve("broken")
	assert.ErrorIs(t, err, ErrUnknownLauncher)
	_, err = l.Work("")
	assert.ErrorIs(t, err, ErrUnknownLauncher)

	l.Replace(map[string]string{"music": "mpv"})
	assert.Equal(t, []string{"music"}, l.Names())
	assert.Equal(t, "launch_calculator", LaunchTaskName(" Calculator"))
}

func TestJobsAddAndRemove(t *testing.T) {
	jobs, manager, st := newTestJobs(t)
	ctx := context.Background()

	info, err := jobs.Add(ctx, &core.JobSpec{Name: "daily_backup", Trigger: core.CronTrigger("0 2 * * *"), Command: "true"})
	require.NoError(t, err)
	assert.Equal(t, "daily_backup", info.Name)
	require.NotNil(t, info.NextRunTime)
	assert.True(t, st.has("daily_backup"))

	_, err = jobs.Add(ctx, &core.JobSpec{Name: "calc", Trigger: core.IntervalTrigger(time.Hour), Launcher: "calculator"})
	require.NoError(t, err)
	assert.Len(t, manager.Scheduler().ListJobs(), 2)

	require.NoError(t, jobs.Remove(ctx, "daily_backup"))
	assert.False(t, st.has("daily_backup"))
	err = jobs.Remove(ctx, "daily_backup")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestJobsCancelForgetsStoredJob(t *testing.T) {
	jobs, manager, st := newTestJobs(t)
	ctx := context.Background()

	_, err := jobs.Add(ctx, &core.JobSpec{Name: "backup", Trigger: core.IntervalTrigger(time.Hour), Command: "true"})
	require.NoError(t, err)

	cancelled, err := jobs.Cancel(ctx, "backup")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Zero(t, manager.Scheduler().Len())
	assert.False(t, st.has("backup"))

	restarted, restartedManager, _ := newTestJobs(t)
	restarted.store = st
	restored, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.Zero(t, restartedManager.Scheduler().Len())
}

func TestJobsCancelActiveAndUnknown(t *testing.T) {
	jobs, manager, _ := newTestJobs(t)
	ctx := context.Background()

	work, err := jobs.launchers.Work("calculator")
	require.NoError(t, err)
	_, err = manager.Go(ctx, LaunchTaskName("calculator"), work)
	require.NoError(t, err)

	cancelled, err := jobs.Cancel(ctx, LaunchTaskName("calculator"))
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.False(t, manager.Executor().IsActive(LaunchTaskName("calculator")))

	cancelled, err = jobs.Cancel(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestJobsAddValidation(t *testing.T) {
	jobs, manager, st := newTestJobs(t)
	ctx := context.Background()

	var schedErr *core.SchedulingError
	_, err := jobs.Add(ctx, &core.JobSpec{Name: "both", Trigger: core.IntervalTrigger(time.Hour), Command: "true", Launcher: "calculator"})
	require.ErrorAs(t, err, &schedErr)

	_, err = jobs.Add(ctx, &core.JobSpec{Name: "neither", Trigger: core.IntervalTrigger(time.Hour)})
	require.ErrorAs(t, err, &schedErr)

	_, err = jobs.Add(ctx, &core.JobSpec{Name: "ghost", Trigger: core.IntervalTrigger(time.Hour), Launcher: "no-such-program-xyz"})
	assert.ErrorIs(t, err, ErrUnknownLauncher)

	_, err = jobs.Add(ctx, &core.JobSpec{Name: "past", Trigger: core.OnceTrigger(time.Now().Add(-time.Hour)), Command: "true"})
	require.ErrorAs(t, err, &schedErr)

	_, err = jobs.Add(ctx, &core.JobSpec{Name: "bad_cron", Trigger: core.CronTrigger("61 * * * *"), Command: "true"})
	assert.ErrorIs(t, err, core.ErrInvalidTrigger)

	st.failPut = true
	_, err = jobs.Add(ctx, &core.JobSpec{Name: "unsaved", Trigger: core.IntervalTrigger(time.Hour), Command: "true"})
	require.Error(t, err)
	_, ok := manager.Scheduler().Job("unsaved")
	assert.False(t, ok, "a job that could not be stored is not left scheduled")
	assert.Empty(t, manager.Scheduler().ListJobs())
}

func TestJobsRestore(t *testing.T) {
	jobs, manager, st := newTestJobs(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.UpsertJob(ctx, &core.JobSpec{Name: "expired", Trigger: core.OnceTrigger(now.Add(-time.Minute)), Command: "true"}))
	require.NoError(t, st.UpsertJob(ctx, &core.JobSpec{Name: "future", Trigger: core.OnceTrigger(now.Add(time.Hour)), Command: "true"}))
	require.NoError(t, st.UpsertJob(ctx, &core.JobSpec{Name: "hourly", Trigger: core.CronTrigger("0 * * * *"), Launcher: "calculator"}))
	require.NoError(t, st.UpsertJob(ctx, &core.JobSpec{Name: "invalid", Trigger: core.CronTrigger("bogus"), Command: "true"}))

	restored, err := jobs.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.False(t, st.has("expired"))
	assert.True(t, st.has("invalid"))

	names := []string{}
	for _, job := range manager.Scheduler().ListJobs() {
		names = append(names, job.Name)
	}
	assert.ElementsMatch(t, []string{"future", "hourly"}, names)
}

func TestOneShotJobIsForgottenAfterRunning(t *testing.T) {
	jobs, manager, st := newTestJobs(t)
	ctx := context.Background()

	_, err := jobs.Add(ctx, &core.JobSpec{Name: "reminder", Trigger: core.OnceTrigger(time.Now().Add(1100 * time.Millisecond)), Command: "echo hi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entry, ok := manager.History().Latest("reminder")
		return ok && entry.Status == core.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return !st.has("reminder") }, time.Second, 10*time.Millisecond)
	_, ok := manager.Scheduler().Job("reminder")
	assert.False(t, ok)
}
