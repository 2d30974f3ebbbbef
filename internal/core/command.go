package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// commandKillDelay is how long a cancelled command's process group gets between SIGTERM
// and SIGKILL.
const commandKillDelay = 5 * time.Second

// maxCommandOutput caps how much combined output is kept as the task result.
const maxCommandOutput = 4 << 10

// CommandSpec describes a shell command bound to a task.
type CommandSpec struct {
	Command    string
	WorkingDir string
	// Output optionally receives the live combined output.
	Output io.Writer
}

// CommandWork returns Work that runs the command through the platform shell in its own
// process group. Cancelling the task terminates the whole group.
func CommandWork(spec CommandSpec) Work {
	return func(ctx context.Context) (any, error) {
		if strings.TrimSpace(spec.Command) == "" {
			return nil, errors.New("command is empty")
		}
		cmd := commandForTask(ctx, spec.Command)
		if spec.WorkingDir != "" {
			cmd.Dir = spec.WorkingDir
		}
		setProcessGroup(cmd)
		cmd.Cancel = func() error {
			terminateGroup(cmd.Process)
			return nil
		}
		cmd.WaitDelay = commandKillDelay

		tail := &tailBuffer{limit: maxCommandOutput}
		var out io.Writer = tail
		if spec.Output != nil {
			out = io.MultiWriter(tail, spec.Output)
		}
		writer := &syncWriter{w: out}
		cmd.Stdout = writer
		cmd.Stderr = writer

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start command: %w", err)
		}
		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			killGroup(cmd.Process)
		}
		output := strings.TrimSpace(tail.String())
		if waitErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				return nil, fmt.Errorf("command exited with code %d: %s", exitErr.ExitCode(), output)
			}
			return nil, waitErr
		}
		return output, nil
	}
}

func commandForTask(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command) // #nosec G204
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
