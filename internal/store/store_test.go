package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/conversation"
	"jarvis/internal/core"
	"jarvis/internal/nlp"
)

func openTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), keep)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(ctx, dir, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryKeep, s.HistoryKeep)
	require.NoError(t, s.Close())

	s, err = Open(ctx, dir, 5)
	require.NoError(t, err)
	defer s.Close()
	var count int
	require.NoError(t, s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func historyEntry(name string, status core.Status, at time.Time) core.HistoryEntry {
	d := 1500 * time.Millisecond
	entry := core.HistoryEntry{
		ID:        core.NewID(),
		Name:      name,
		Status:    status,
		Timestamp: at,
		Duration:  &d,
	}
	if status == core.StatusFailed {
		msg := "boom"
		entry.Error = &msg
	} else {
		res := "ok"
		entry.Result = &res
	}
	return entry
}

func TestHistoryRoundTripAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := core.StatusCompleted
		if i == 3 {
			status = core.StatusFailed
		}
		require.NoError(t, s.InsertHistoryEntry(ctx, historyEntry(fmt.Sprintf("task_%d", i), status, base.Add(time.Duration(i)*time.Minute))))
	}

	entries, err := s.RecentHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "task_3", entries[0].Name)
	assert.Equal(t, "task_4", entries[1].Name)
	require.NotNil(t, entries[0].Error)
	assert.Equal(t, "boom", *entries[0].Error)
	assert.Nil(t, entries[0].Result)
	require.NotNil(t, entries[1].Duration)
	assert.Equal(t, 1500*time.Millisecond, *entries[1].Duration)
	assert.True(t, entries[1].Timestamp.Equal(base.Add(4*time.Minute)))

	removed, err := s.PruneHistory(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	entries, err = s.RecentHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "task_2", entries[0].Name)

	byName, err := s.HistoryForName(ctx, "task_4", 0)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, core.StatusCompleted, byName[0].Status)
}

func TestHistoryHookPersists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	hook := s.HistoryHook(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hook(historyEntry("launch_calculator", core.StatusCancelled, time.Now()))

	entries, err := s.RecentHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.StatusCancelled, entries[0].Status)
}

func TestJobsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	specs := []*core.JobSpec{
		{Name: "daily_backup", Trigger: core.CronTrigger("0 2 * * *"), Command: "tar czf backup.tgz ."},
		{Name: "heartbeat", Trigger: core.IntervalTrigger(90 * time.Second), Launcher: "monitor"},
		{Name: "reminder", Trigger: core.OnceTrigger(at), Command: "echo hi", WorkingDir: "/tmp"},
	}
	for _, spec := range specs {
		require.NoError(t, s.UpsertJob(ctx, spec))
		assert.False(t, spec.CreatedAt.IsZero())
	}

	got, err := s.GetJob(ctx, "daily_backup")
	require.NoError(t, err)
	assert.Equal(t, core.TriggerCron, got.Trigger.Kind)
	assert.Equal(t, "0 2 * * *", got.Trigger.Cron)
	assert.Equal(t, "tar czf backup.tgz .", got.Command)

	got, err = s.GetJob(ctx, "heartbeat")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, got.Trigger.Every)
	assert.Equal(t, "monitor", got.Launcher)
	assert.Empty(t, got.Command)

	got, err = s.GetJob(ctx, "reminder")
	require.NoError(t, err)
	assert.True(t, got.Trigger.At.Equal(at))
	assert.Equal(t, "/tmp", got.WorkingDir)

	updated := &core.JobSpec{Name: "daily_backup", Trigger: core.CronTrigger("30 3 * * *"), Command: "true"}
	require.NoError(t, s.UpsertJob(ctx, updated))
	all, err := s.ListJobSpecs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	got, err = s.GetJob(ctx, "daily_backup")
	require.NoError(t, err)
	assert.Equal(t, "30 3 * * *", got.Trigger.Cron)

	require.NoError(t, s.DeleteJob(ctx, "heartbeat"))
	assert.ErrorIs(t, s.DeleteJob(ctx, "heartbeat"), ErrJobNotFound)
	_, err = s.GetJob(ctx, "heartbeat")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTurnsAndDocuments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0)
	now := time.Now().UTC()

	require.NoError(t, s.InsertTurn(ctx, conversation.Turn{Timestamp: now, Speaker: conversation.SpeakerUser, Message: "open calculator", Mood: conversation.MoodNeutral}))
	require.NoError(t, s.InsertTurn(ctx, conversation.Turn{Timestamp: now.Add(time.Second), Speaker: conversation.SpeakerAssistant, Message: "Done."}))
	require.NoError(t, s.InsertTurn(ctx, conversation.Turn{Timestamp: now.Add(2 * time.Second), Speaker: conversation.SpeakerUser, Message: "awesome", Mood: conversation.MoodHappy}))

	turns, err := s.RecentTurns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Done.", turns[0].Message)
	assert.Equal(t, conversation.Mood(""), turns[0].Mood)
	assert.Equal(t, conversation.MoodHappy, turns[1].Mood)

	require.NoError(t, s.InsertDocument(ctx, nlp.Document{ID: "a", Text: "first", Source: "api"}))
	require.NoError(t, s.InsertDocument(ctx, nlp.Document{ID: "b", Text: "second"}))
	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "api", docs[0].Source)
	assert.Equal(t, "second", docs[1].Text)

	ix := nlp.NewIndex(s)
	require.NoError(t, ix.Load(ctx))
	assert.Equal(t, 2, ix.Len())
}
