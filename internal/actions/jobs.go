package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jarvis/internal/core"
	"jarvis/internal/store"
)

// JobStore persists job definitions across restarts.
type JobStore interface {
	UpsertJob(ctx context.Context, spec *core.JobSpec) error
	DeleteJob(ctx context.Context, name string) error
	ListJobSpecs(ctx context.Context) ([]*core.JobSpec, error)
}

// Jobs registers persisted jobs with the task manager.
type Jobs struct {
	manager   *core.Manager
	store     JobStore
	launchers *Launchers
	logger    *slog.Logger
	now       func() time.Time
}

func NewJobs(manager *core.Manager, st JobStore, launchers *Launchers, logger *slog.Logger) *Jobs {
	return &Jobs{
		manager:   manager,
		store:     st,
		launchers: launchers,
		logger:    logger.With("component", "jobs"),
		now:       time.Now,
	}
}

// Add schedules spec and stores it. An existing job with the same name is replaced.
func (j *Jobs) Add(ctx context.Context, spec *core.JobSpec) (core.JobInfo, error) {
	work, err := j.work(spec)
	if err != nil {
		return core.JobInfo{}, err
	}
	if _, err := j.manager.Schedule(spec.Name, spec.Trigger, work); err != nil {
		return core.JobInfo{}, err
	}
	if err := j.store.UpsertJob(ctx, spec); err != nil {
		j.manager.Unschedule(spec.Name)
		return core.JobInfo{}, fmt.Errorf("persist job %s: %w", spec.Name, err)
	}
	info, _ := j.manager.Scheduler().Job(spec.Name)
	j.logger.Info("job scheduled", "job", spec.Name, "trigger", spec.Trigger.String())
	return info, nil
}

// Remove unschedules and forgets the job called name. It reports core.ErrNotFound when
// neither the scheduler nor the store knew it.
func (j *Jobs) Remove(ctx context.Context, name string) error {
	unscheduled := j.manager.Unschedule(name)
	err := j.store.DeleteJob(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrJobNotFound):
		if !unscheduled {
			return fmt.Errorf("job %s: %w", name, core.ErrNotFound)
		}
	default:
		return err
	}
	j.logger.Info("job removed", "job", name)
	return nil
}

// Cancel stops the active task called name and removes its job, including the stored
// definition so it does not come back on restart. Unknown names report false without
// an error.
func (j *Jobs) Cancel(ctx context.Context, name string) (bool, error) {
	affected := j.manager.CancelTask(name)
	err := j.store.DeleteJob(ctx, name)
	switch {
	case err == nil:
		affected = true
	case errors.Is(err, store.ErrJobNotFound):
	default:
		return affected, fmt.Errorf("delete job %s: %w", name, err)
	}
	if affected {
		j.logger.Info("task cancelled", "task", name)
	}
	return affected, nil
}

// Restore schedules every stored job. One-shot jobs whose time has passed are deleted.
// Jobs that fail to schedule are logged and skipped.
func (j *Jobs) Restore(ctx context.Context) (int, error) {
	specs, err := j.store.ListJobSpecs(ctx)
	if err != nil {
		return 0, err
	}
	now := j.now()
	restored := 0
	for _, spec := range specs {
		if spec.Trigger.Kind == core.TriggerOnce && !spec.Trigger.At.After(now) {
			if err := j.store.DeleteJob(ctx, spec.Name); err != nil && !errors.Is(err, store.ErrJobNotFound) {
				j.logger.Warn("delete expired job", "job", spec.Name, "err", err)
			}
			j.logger.Info("dropped expired one-shot job", "job", spec.Name, "at", spec.Trigger.At)
			continue
		}
		work, err := j.work(spec)
		if err != nil {
			j.logger.Warn("skip stored job", "job", spec.Name, "err", err)
			continue
		}
		if _, err := j.manager.Schedule(spec.Name, spec.Trigger, work); err != nil {
			j.logger.Warn("skip stored job", "job", spec.Name, "err", err)
			continue
		}
		restored++
	}
	return restored, nil
}

func (j *Jobs) work(spec *core.JobSpec) (core.Work, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, &core.SchedulingError{Err: errors.New("job name is required")}
	}
	hasLauncher := strings.TrimSpace(spec.Launcher) != ""
	hasCommand := strings.TrimSpace(spec.Command) != ""
	if hasLauncher == hasCommand {
		return nil, &core.SchedulingError{Name: spec.Name, Err: errors.New("exactly one of launcher or command is required")}
	}

	var work core.Work
	if hasLauncher {
		w, err := j.launchers.Work(spec.Launcher)
		if err != nil {
			return nil, &core.SchedulingError{Name: spec.Name, Err: err}
		}
		work = w
	} else {
		work = core.CommandWork(core.CommandSpec{Command: spec.Command, WorkingDir: spec.WorkingDir})
	}

	if spec.Trigger.Kind != core.TriggerOnce {
		return work, nil
	}
	name := spec.Name
	return func(ctx context.Context) (any, error) {
		defer j.forget(name)
		return work(ctx)
	}, nil
}

// forget drops a fired one-shot job from the store.
func (j *Jobs) forget(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.store.DeleteJob(ctx, name); err != nil && !errors.Is(err, store.ErrJobNotFound) {
		j.logger.Warn("forget one-shot job", "job", name, "err", err)
	}
}
