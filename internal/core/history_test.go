package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryNamed(name string) HistoryEntry {
	return HistoryEntry{ID: NewID(), Name: name, Status: StatusCompleted}
}

func TestHistoryTailReturnsChronologicalWindow(t *testing.T) {
	history := NewHistory(0)
	for i := 0; i < 5; i++ {
		history.Record(entryNamed(fmt.Sprintf("task-%d", i)))
	}

	tail := history.Tail(3)
	require.Len(t, tail, 3)
	assert.Equal(t, "task-2", tail[0].Name)
	assert.Equal(t, "task-4", tail[2].Name)

	assert.Len(t, history.Tail(50), 5)
	assert.Empty(t, history.Tail(0))
}

func TestHistoryRetentionDropsOldest(t *testing.T) {
	history := NewHistory(3)
	for i := 0; i < 5; i++ {
		history.Record(entryNamed(fmt.Sprintf("task-%d", i)))
	}
	assert.Equal(t, 3, history.Len())
	assert.Equal(t, "task-2", history.Tail(3)[0].Name)
}

func TestHistoryLatestPrefersNewest(t *testing.T) {
	history := NewHistory(0)
	history.Record(HistoryEntry{Name: "x", Status: StatusFailed})
	history.Record(entryNamed("y"))
	history.Record(HistoryEntry{Name: "x", Status: StatusCompleted})

	entry, ok := history.Latest("x")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, entry.Status)

	_, ok = history.Latest("z")
	assert.False(t, ok)
}

func TestHistorySeedKeepsOrder(t *testing.T) {
	history := NewHistory(4)
	history.Record(entryNamed("live"))
	history.Seed([]HistoryEntry{entryNamed("old-1"), entryNamed("old-2"), entryNamed("old-3"), entryNamed("old-4")})

	tail := history.Tail(4)
	names := []string{tail[0].Name, tail[1].Name, tail[2].Name, tail[3].Name}
	assert.Equal(t, []string{"old-2", "old-3", "old-4", "live"}, names)
}

func TestHistoryConcurrentRecordLosesNothing(t *testing.T) {
	history := NewHistory(10000)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				history.Record(entryNamed(fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 2000, history.Len())
}
