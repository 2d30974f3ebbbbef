package actions

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"jarvis/internal/core"
)

// LaunchPrefix is prepended to a target to form its task name.
const LaunchPrefix = "launch_"

// ErrUnknownLauncher is returned when a target has no configured command and no
// executable of that name is on PATH.
var ErrUnknownLauncher = errors.New("unknown launcher")

// LaunchTaskName returns the task name used for target, e.g. "launch_calculator".
func LaunchTaskName(target string) string {
	return LaunchPrefix + strings.ToLower(strings.TrimSpace(target))
}

// Launchers maps spoken targets to shell commands.
type Launchers struct {
	mu       sync.RWMutex
	commands map[string]string
	lookPath func(string) (string, error)
}

func NewLaunchers(commands map[string]string) *Launchers {
	l := &Launchers{lookPath: exec.LookPath}
	l.Replace(commands)
	return l
}

// Replace swaps the target table, used on configuration reload.
func (l *Launchers) Replace(commands map[string]string) {
	normalized := make(map[string]string, len(commands))
	for target, command := range commands {
		target = strings.ToLower(strings.TrimSpace(target))
		if target == "" || strings.TrimSpace(command) == "" {
			continue
		}
		normalized[target] = command
	}
	l.mu.Lock()
	l.commands = normalized
	l.mu.Unlock()
}

// Names lists the configured targets.
func (l *Launchers) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.commands))
	for name := range l.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the command for target, falling back to an executable of the same name.
func (l *Launchers) Resolve(target string) (string, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return "", fmt.Errorf("%w: empty target", ErrUnknownLauncher)
	}
	l.mu.RLock()
	command, ok := l.commands[target]
	l.mu.RUnlock()
	if ok {
		return command, nil
	}
	if path, err := l.lookPath(target); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownLauncher, target)
}

// Work returns the task body that runs target until it exits or is cancelled.
func (l *Launchers) Work(target string) (core.Work, error) {
	command, err := l.Resolve(target)
	if err != nil {
		return nil, err
	}
	return core.CommandWork(core.CommandSpec{Command: command}), nil
}
