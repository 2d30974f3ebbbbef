package core

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Dispatcher starts named work. Executor satisfies it.
type Dispatcher interface {
	Go(ctx context.Context, name string, work Work) (*Handle, error)
}

type scheduledJob struct {
	name     string
	trigger  Trigger
	schedule cron.Schedule
	work     Work
	entryID  cron.EntryID
	seq      uint64
}

// Scheduler fires named jobs on cron, interval or one-shot triggers. It runs on robfig/cron's
// own timer goroutine and hands due work to the dispatcher.
type Scheduler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	location   *time.Location
	now        func() time.Time

	cron *cron.Cron

	mu   sync.RWMutex
	jobs map[string]*scheduledJob
	seq  uint64

	onChange func(count int)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithLocation(location *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if location != nil {
			s.location = location
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobCountHook is called with the number of scheduled jobs after every change.
func WithJobCountHook(hook func(count int)) SchedulerOption {
	return func(s *Scheduler) {
		s.onChange = hook
	}
}

// NewScheduler constructs a scheduler that dispatches through d.
func NewScheduler(d Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		dispatcher: d,
		logger:     slog.Default(),
		location:   time.Local,
		now:        time.Now,
		jobs:       make(map[string]*scheduledJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	return s
}

// Start begins the timer loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the timer. The returned context is done once in-flight dispatches returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Schedule registers work under name, replacing any job with the same name, and returns
// the job id.
func (s *Scheduler) Schedule(name string, trigger Trigger, work Work) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &SchedulingError{Err: errors.New("job name is required")}
	}
	if work == nil {
		return "", &SchedulingError{Name: name, Err: errors.New("job has no work")}
	}
	schedule, err := trigger.Schedule(s.now().In(s.location))
	if err != nil {
		return "", &SchedulingError{Name: name, Err: err}
	}

	s.mu.Lock()
	if prev, ok := s.jobs[name]; ok {
		s.cron.Remove(prev.entryID)
		delete(s.jobs, name)
	}
	s.seq++
	job := &scheduledJob{
		name:     name,
		trigger:  trigger,
		schedule: schedule,
		work:     work,
		seq:      s.seq,
	}
	job.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(job) }))
	s.jobs[name] = job
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("job scheduled", "job", name, "trigger", trigger.String())
	s.notifyChange(count)
	return name, nil
}

// Unschedule removes the job called name. Tasks it already spawned keep running.
func (s *Scheduler) Unschedule(name string) bool {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if ok {
		s.cron.Remove(job.entryID)
		delete(s.jobs, name)
	}
	count := len(s.jobs)
	s.mu.Unlock()
	if ok {
		s.logger.Info("job unscheduled", "job", name)
		s.notifyChange(count)
	}
	return ok
}

func (s *Scheduler) fire(job *scheduledJob) {
	s.mu.RLock()
	current, ok := s.jobs[job.name]
	s.mu.RUnlock()
	if !ok || current != job {
		return
	}
	if !job.trigger.Recurring() {
		s.removeIfCurrent(job)
	}

	_, err := s.dispatcher.Go(context.Background(), job.name, job.work)
	switch {
	case err == nil:
		s.logger.Debug("job fired", "job", job.name)
	case errors.Is(err, ErrTaskAlreadyRunning):
		s.logger.Info("skipping run because task is already running", "job", job.name)
	default:
		s.logger.Error("dispatch scheduled job", "job", job.name, "err", err)
	}
}

func (s *Scheduler) removeIfCurrent(job *scheduledJob) {
	s.mu.Lock()
	current, ok := s.jobs[job.name]
	removed := ok && current == job
	if removed {
		s.cron.Remove(job.entryID)
		delete(s.jobs, job.name)
	}
	count := len(s.jobs)
	s.mu.Unlock()
	if removed {
		s.notifyChange(count)
	}
}

// Job returns the summary of the job called name.
func (s *Scheduler) Job(name string) (JobInfo, bool) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobInfo{}, false
	}
	info := s.describe(job, s.now().In(s.location))
	if info.NextRunTime == nil {
		return JobInfo{}, false
	}
	return info, true
}

// ListJobs returns live jobs ordered by next fire time, ties by registration order.
// Exhausted one-shot jobs are left out.
func (s *Scheduler) ListJobs() []JobInfo {
	now := s.now().In(s.location)
	s.mu.RLock()
	jobs := make([]*scheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.RUnlock()

	type ranked struct {
		info JobInfo
		seq  uint64
	}
	list := make([]ranked, 0, len(jobs))
	for _, job := range jobs {
		info := s.describe(job, now)
		if info.NextRunTime == nil {
			continue
		}
		list = append(list, ranked{info: info, seq: job.seq})
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].info.NextRunTime, list[j].info.NextRunTime
		if a.Equal(*b) {
			return list[i].seq < list[j].seq
		}
		return a.Before(*b)
	})

	out := make([]JobInfo, 0, len(list))
	for _, item := range list {
		out = append(out, item.info)
	}
	return out
}

func (s *Scheduler) describe(job *scheduledJob, now time.Time) JobInfo {
	info := JobInfo{
		Name:      job.name,
		Kind:      job.trigger.Kind,
		Trigger:   job.trigger.String(),
		Recurring: job.trigger.Recurring(),
	}
	next := s.cron.Entry(job.entryID).Next
	if next.IsZero() || next.Before(now) {
		next = job.schedule.Next(now)
	}
	if !next.IsZero() {
		info.NextRunTime = ptrTime(next)
	}
	return info
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Scheduler) notifyChange(count int) {
	if s.onChange != nil {
		s.onChange(count)
	}
}
