package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerKind tags which field of a Trigger is meaningful.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerOnce     TriggerKind = "once"
)

// MinInterval is the shortest period accepted for interval triggers. Intervals are
// whole seconds because the scheduler and the jobs table both count in seconds.
const MinInterval = time.Second

// Trigger specifies when a scheduled job fires. Exactly one of Cron, Every or At is
// used, selected by Kind.
type Trigger struct {
	Kind  TriggerKind
	Cron  string
	Every time.Duration
	At    time.Time
}

func CronTrigger(expr string) Trigger {
	return Trigger{Kind: TriggerCron, Cron: strings.TrimSpace(expr)}
}

func IntervalTrigger(every time.Duration) Trigger {
	return Trigger{Kind: TriggerInterval, Every: every}
}

func OnceTrigger(at time.Time) Trigger {
	return Trigger{Kind: TriggerOnce, At: at}
}

// Recurring reports whether the trigger can fire more than once.
func (t Trigger) Recurring() bool {
	return t.Kind == TriggerCron || t.Kind == TriggerInterval
}

func (t Trigger) String() string {
	switch t.Kind {
	case TriggerCron:
		return "cron[" + t.Cron + "]"
	case TriggerInterval:
		return "interval[" + t.Every.String() + "]"
	case TriggerOnce:
		return "date[" + t.At.UTC().Format(time.RFC3339) + "]"
	default:
		return "unknown"
	}
}

// Schedule validates the trigger against now and converts it into a cron.Schedule.
func (t Trigger) Schedule(now time.Time) (cron.Schedule, error) {
	switch t.Kind {
	case TriggerCron:
		if t.Cron == "" {
			return nil, fmt.Errorf("%w: cron expression is required", ErrInvalidTrigger)
		}
		schedule, err := ParseCron(t.Cron)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		return schedule, nil
	case TriggerInterval:
		if err := checkInterval(t.Every); err != nil {
			return nil, err
		}
		return cron.Every(t.Every), nil
	case TriggerOnce:
		if t.At.IsZero() {
			return nil, fmt.Errorf("%w: run time is required", ErrInvalidTrigger)
		}
		if !t.At.After(now) {
			return nil, fmt.Errorf("%w: run time %s is in the past", ErrInvalidTrigger, t.At.Format(time.RFC3339))
		}
		return onceSchedule{at: t.At}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
}

func checkInterval(every time.Duration) error {
	if every < MinInterval {
		return fmt.Errorf("%w: interval must be at least %s", ErrInvalidTrigger, MinInterval)
	}
	if every%time.Second != 0 {
		return fmt.Errorf("%w: interval %s is not a whole number of seconds", ErrInvalidTrigger, every)
	}
	return nil
}

// onceSchedule fires a single time. robfig/cron never runs an entry whose next time is zero.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// ParseTrigger builds a trigger from user input. Exactly one of cronExpr, every (a Go
// duration) or at (RFC3339) must be set.
func ParseTrigger(cronExpr, every, at string) (Trigger, error) {
	cronExpr, every, at = strings.TrimSpace(cronExpr), strings.TrimSpace(every), strings.TrimSpace(at)
	set := 0
	for _, v := range []string{cronExpr, every, at} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return Trigger{}, fmt.Errorf("%w: exactly one of cron, every or at is required", ErrInvalidTrigger)
	}
	switch {
	case cronExpr != "":
		return CronTrigger(cronExpr), nil
	case every != "":
		d, err := time.ParseDuration(every)
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		if err := checkInterval(d); err != nil {
			return Trigger{}, err
		}
		return IntervalTrigger(d), nil
	default:
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		return OnceTrigger(t), nil
	}
}
