package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jarvis/internal/core"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans a notification out to every wrapped notifier.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send tries every notifier and returns their joined errors.
func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpNotifier does nothing.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}

// Cooldown drops notifications whose title was already sent within the window.
type Cooldown struct {
	next   Notifier
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

func NewCooldown(next Notifier, window time.Duration) *Cooldown {
	return &Cooldown{next: next, window: window, now: time.Now, sent: map[string]time.Time{}}
}

func (c *Cooldown) Send(ctx context.Context, title, body string) error {
	c.mu.Lock()
	now := c.now()
	if last, ok := c.sent[title]; ok && now.Sub(last) < c.window {
		c.mu.Unlock()
		return nil
	}
	c.sent[title] = now
	c.mu.Unlock()
	return c.next.Send(ctx, title, body)
}

// FailureHook returns a completion hook that notifies about failed runs.
func FailureHook(n Notifier, logger *slog.Logger) func(core.HistoryEntry) {
	return func(entry core.HistoryEntry) {
		if entry.Status != core.StatusFailed {
			return
		}
		body := "unknown error"
		if entry.Error != nil {
			body = *entry.Error
		}
		// The hook runs on the task goroutine; keep the send off it.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := n.Send(ctx, fmt.Sprintf("Task %s failed", entry.Name), body); err != nil {
				logger.Warn("send failure notification", "task", entry.Name, "err", err)
			}
		}()
	}
}
