package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("jarvis/core")

// Handle is the ownership token of an in-flight task.
type Handle struct {
	name      string
	startedAt time.Time
	cancel    context.CancelFunc

	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

func (h *Handle) Name() string         { return h.name }
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the task reached a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) finish(result any, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTaskTimeout bounds every task run. Zero disables the bound.
func WithTaskTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = timeout
	}
}

// WithStartHook registers a callback invoked when a task starts.
func WithStartHook(hook func(name string)) ExecutorOption {
	return func(e *Executor) {
		e.startHooks = append(e.startHooks, hook)
	}
}

// WithCompletionHook registers a callback invoked with every recorded history entry, in
// history order. Hooks must not call back into the Executor.
func WithCompletionHook(hook func(HistoryEntry)) ExecutorOption {
	return func(e *Executor) {
		e.completionHooks = append(e.completionHooks, hook)
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor runs named work asynchronously and allows at most one active run per name.
type Executor struct {
	history         *History
	logger          *slog.Logger
	timeout         time.Duration
	now             func() time.Time
	startHooks      []func(string)
	completionHooks []func(HistoryEntry)

	mu     sync.Mutex
	active map[string]*Handle
	wg     sync.WaitGroup

	// hookMu is taken before mu is released so completion hooks observe entries in
	// history order.
	hookMu sync.Mutex
}

// NewExecutor creates an executor that records outcomes into history.
func NewExecutor(history *History, opts ...ExecutorOption) *Executor {
	e := &Executor{
		history: history,
		logger:  slog.Default(),
		now:     time.Now,
		active:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e
}

// RunTask starts work under name and waits for it to finish. If ctx ends first the
// task is cancelled.
func (e *Executor) RunTask(ctx context.Context, name string, work Work) (any, error) {
	h, err := e.Go(ctx, name, work)
	if err != nil {
		return nil, err
	}
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		e.cancelHandle(name, h)
		return nil, ctx.Err()
	}
}

// Go starts work under name without waiting. ctx only contributes values such as the
// trace span; cancellation goes through Cancel.
func (e *Executor) Go(ctx context.Context, name string, work Work) (*Handle, error) {
	if name == "" {
		return nil, &TaskExecutionError{Name: name, Err: errors.New("task name is required")}
	}
	if work == nil {
		return nil, &TaskExecutionError{Name: name, Err: errors.New("task has no work")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if _, ok := e.active[name]; ok {
		e.mu.Unlock()
		return nil, &TaskExecutionError{Name: name, Err: ErrTaskAlreadyRunning}
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if e.timeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(runCtx, e.timeout)
		parentCancel := cancel
		runCtx = timeoutCtx
		cancel = func() {
			timeoutCancel()
			parentCancel()
		}
	}
	h := &Handle{
		name:      name,
		startedAt: e.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	e.active[name] = h
	e.wg.Add(1)
	e.mu.Unlock()

	for _, hook := range e.startHooks {
		hook(name)
	}
	e.logger.Debug("task started", "task", name)
	go e.execute(runCtx, h, work)
	return h, nil
}

func (e *Executor) execute(ctx context.Context, h *Handle, work Work) {
	defer e.wg.Done()
	defer h.cancel()

	ctx, span := tracer.Start(ctx, "task.run")
	span.SetAttributes(attribute.String("task.name", h.name))
	defer span.End()

	if e.timeout > 0 {
		stop := context.AfterFunc(ctx, func() {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				e.logger.Warn("task exceeded timeout, cancelling", "task", h.name, "timeout", e.timeout)
			}
		})
		defer stop()
	}

	result, err := invoke(ctx, work)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrTaskTimeout, e.timeout, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.complete(h, result, err)
}

func invoke(ctx context.Context, work Work) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return work(ctx)
}

// complete records the natural end of a run unless a cancellation already claimed it.
func (e *Executor) complete(h *Handle, result any, err error) {
	entry := HistoryEntry{
		ID:        NewID(),
		Name:      h.name,
		Status:    StatusCompleted,
		Timestamp: e.now(),
	}
	duration := entry.Timestamp.Sub(h.startedAt)
	entry.Duration = &duration
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = ptrString(err.Error())
	} else if result != nil {
		entry.Result = ptrString(fmt.Sprint(result))
	}

	e.mu.Lock()
	if current, ok := e.active[h.name]; !ok || current != h {
		e.mu.Unlock()
		return
	}
	delete(e.active, h.name)
	e.history.Record(entry)
	e.hookMu.Lock()
	e.mu.Unlock()
	e.fireCompletion(entry)

	if err != nil {
		e.logger.Error("task failed", "task", h.name, "err", err)
		err = &TaskExecutionError{Name: h.name, Err: err}
	} else {
		e.logger.Info("task completed", "task", h.name, "duration", duration)
	}
	h.finish(result, err)
}

// Cancel requests cooperative cancellation of the active task called name and removes it
// from the active set. It returns false when no such task is active.
func (e *Executor) Cancel(name string) bool {
	return e.cancelHandle(name, nil)
}

func (e *Executor) cancelHandle(name string, want *Handle) bool {
	e.mu.Lock()
	h, ok := e.active[name]
	if !ok || (want != nil && h != want) {
		e.mu.Unlock()
		return false
	}
	delete(e.active, name)
	now := e.now()
	duration := now.Sub(h.startedAt)
	entry := HistoryEntry{
		ID:        NewID(),
		Name:      name,
		Status:    StatusCancelled,
		Timestamp: now,
		Duration:  &duration,
	}
	e.history.Record(entry)
	e.hookMu.Lock()
	e.mu.Unlock()
	e.fireCompletion(entry)

	h.cancel()
	e.logger.Info("task cancelled", "task", name)
	h.finish(nil, &TaskExecutionError{Name: name, Err: ErrTaskCancelled})
	return true
}

// CancelAll cancels every active task.
func (e *Executor) CancelAll() int {
	e.mu.Lock()
	names := make([]string, 0, len(e.active))
	for name := range e.active {
		names = append(names, name)
	}
	e.mu.Unlock()

	cancelled := 0
	for _, name := range names {
		if e.Cancel(name) {
			cancelled++
		}
	}
	return cancelled
}

// Wait blocks until every task goroutine returned or ctx is done. Cancelled work that
// ignores its context keeps its goroutine alive until it returns on its own.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether a task called name is in flight.
func (e *Executor) IsActive(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[name]
	return ok
}

// Lookup returns the status of the active task called name.
func (e *Executor) Lookup(name string) (TaskInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.active[name]
	if !ok {
		return TaskInfo{}, false
	}
	return TaskInfo{Name: name, Status: StatusRunning, StartedAt: ptrTime(h.startedAt)}, true
}

// Active lists in-flight tasks ordered by start time.
func (e *Executor) Active() []TaskInfo {
	e.mu.Lock()
	infos := make([]TaskInfo, 0, len(e.active))
	for name, h := range e.active {
		infos = append(infos, TaskInfo{Name: name, Status: StatusRunning, StartedAt: ptrTime(h.startedAt)})
	}
	e.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(*infos[j].StartedAt) {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].StartedAt.Before(*infos[j].StartedAt)
	})
	return infos
}

// fireCompletion runs the completion hooks and releases hookMu, which the caller holds.
func (e *Executor) fireCompletion(entry HistoryEntry) {
	defer e.hookMu.Unlock()
	for _, hook := range e.completionHooks {
		hook(entry)
	}
}
