//go:build linux

package core

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// processGone reports whether pid no longer exists or is only a zombie awaiting its reaper.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	// The state field follows the parenthesised command name.
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestCommandWorkCancelStopsChildProcesses(t *testing.T) {
	live := &lockedBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := CommandWork(CommandSpec{Command: "sleep 30 & echo $!; wait", Output: live})(ctx)
		done <- err
	}()

	var pid int
	require.Eventually(t, func() bool {
		line := strings.TrimSpace(live.String())
		if line == "" {
			return false
		}
		n, err := strconv.Atoi(line)
		pid = n
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("command did not return after cancel")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Eventually(t, func() bool { return processGone(pid) }, 2*time.Second, 20*time.Millisecond)
}
