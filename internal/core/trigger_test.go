package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerString(t *testing.T) {
	at := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	assert.Equal(t, "cron[0 2 * * *]", CronTrigger(" 0 2 * * * ").String())
	assert.Equal(t, "interval[10m0s]", IntervalTrigger(10*time.Minute).String())
	assert.Equal(t, "date[2026-03-01T07:30:00Z]", OnceTrigger(at).String())
}

func TestOnceScheduleIsExhaustedAfterItsTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	at := now.Add(30 * time.Minute)
	schedule, err := OnceTrigger(at).Schedule(now)
	require.NoError(t, err)

	assert.Equal(t, at, schedule.Next(now))
	assert.True(t, schedule.Next(at).IsZero())
	assert.Equal(t, []time.Time{at}, NextOccurrences(schedule, now, 5))
}

func TestParseCronNextOccurrences(t *testing.T) {
	schedule, err := ParseCron("0 9 * * 1-5")
	require.NoError(t, err)

	base := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC) // Friday
	times := NextOccurrences(schedule, base, 2)
	require.Len(t, times, 2)
	assert.True(t, times[0].Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)), "got %s", times[0])
	assert.True(t, times[1].Equal(time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)), "got %s", times[1])

	_, err = ParseCron("@hourly")
	assert.Error(t, err)
}

func TestParseTrigger(t *testing.T) {
	trigger, err := ParseTrigger("*/5 * * * *", "", "")
	require.NoError(t, err)
	assert.Equal(t, TriggerCron, trigger.Kind)

	trigger, err = ParseTrigger("", "90s", "")
	require.NoError(t, err)
	assert.Equal(t, IntervalTrigger(90*time.Second), trigger)

	trigger, err = ParseTrigger("", "", "2026-03-01T07:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, TriggerOnce, trigger.Kind)
	assert.True(t, trigger.At.Equal(time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)))

	for _, args := range [][3]string{{"", "", ""}, {"* * * * *", "1m", ""}, {"", "soon", ""}, {"", "", "tomorrow"}, {"", "1500ms", ""}, {"", "500ms", ""}} {
		_, err := ParseTrigger(args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidTrigger, args)
	}
}

func TestIntervalMustBeWholeSeconds(t *testing.T) {
	_, err := IntervalTrigger(1500 * time.Millisecond).Schedule(time.Now())
	assert.ErrorIs(t, err, ErrInvalidTrigger)

	schedule, err := IntervalTrigger(2 * time.Second).Schedule(time.Now())
	require.NoError(t, err)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(2*time.Second), schedule.Next(base))
}

func TestPreviewCronClampsCount(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	times, err := PreviewCron("0 * * * *", base, 0)
	require.NoError(t, err)
	assert.Len(t, times, 5)

	times, err = PreviewCron("0 * * * *", base, 50)
	require.NoError(t, err)
	assert.Len(t, times, 5)
	assert.Equal(t, base.Add(time.Hour), times[0])

	_, err = PreviewCron("@daily", base, 1)
	assert.Error(t, err)
}
