package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jarvis/internal/conversation"
	"jarvis/internal/core"
	"jarvis/internal/monitor"
	"jarvis/internal/notify"
	"jarvis/internal/observability"
	"jarvis/internal/voice"
)

var tracer = otel.Tracer("jarvis/assistant")

// Timing and threshold defaults.
const (
	DefaultPollTimeout     = 5 * time.Second
	DefaultCaptureTimeout  = 10 * time.Second
	DefaultIdleDelay       = 100 * time.Millisecond
	DefaultCriticalPercent = monitor.DefaultCritical
)

// Options tunes the loop. Zero values take the defaults, except CaptureTimeout where a
// negative value disables the bound.
type Options struct {
	PollTimeout     time.Duration
	CaptureTimeout  time.Duration
	IdleDelay       time.Duration
	CriticalPercent float64
	MaxTurns        int
}

func (o Options) withDefaults() Options {
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.CaptureTimeout == 0 {
		o.CaptureTimeout = DefaultCaptureTimeout
	}
	if o.IdleDelay <= 0 {
		o.IdleDelay = DefaultIdleDelay
	}
	if o.CriticalPercent <= 0 {
		o.CriticalPercent = DefaultCriticalPercent
	}
	return o
}

// Deps are the loop's collaborators. Manager, Listener, Transcriber, Speaker, Classifier
// and Responder are required; the rest may be nil.
type Deps struct {
	Manager     *core.Manager
	Listener    Listener
	Transcriber Transcriber
	Speaker     Speaker
	Classifier  Classifier
	Responder   Responder
	Searcher    Searcher
	Monitor     Monitor
	Launcher    Launcher
	Canceller   Canceller
	Notifier    notify.Notifier
	Turns       TurnRecorder
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

type submission struct {
	text  string
	reply chan reply
}

type reply struct {
	text string
	err  error
}

// wakeErrorInterval is how often an unchanged wake failure is spoken again.
const wakeErrorInterval = time.Minute

// errorRun tracks a run of identical errors so only the first is reported.
type errorRun struct {
	last    string
	since   time.Time
	repeats int
}

// first reports whether err starts a new run, either because it differs from the last
// one or because wakeErrorInterval has passed since the run was last reported.
func (r *errorRun) first(err error, now time.Time) bool {
	msg := err.Error()
	if msg == r.last && now.Sub(r.since) < wakeErrorInterval {
		r.repeats++
		return false
	}
	r.last = msg
	r.since = now
	r.repeats = 0
	return true
}

func (r *errorRun) reset() {
	*r = errorRun{}
}

type pollResult struct {
	audio voice.Audio
	err   error
}

// Loop is the wake → capture → process cycle.
type Loop struct {
	deps    Deps
	opts    Options
	session *Session

	commands chan submission
	inflight chan pollResult

	voiceClosed bool
	wakeErrors  errorRun
	stopping    atomic.Bool
	running     atomic.Bool
	done        chan struct{}

	mu     sync.RWMutex
	status Status
}

// New validates deps and returns an idle loop.
func New(deps Deps, opts Options) (*Loop, error) {
	switch {
	case deps.Manager == nil:
		return nil, errors.New("assistant: manager is required")
	case deps.Listener == nil, deps.Transcriber == nil, deps.Speaker == nil:
		return nil, errors.New("assistant: listener, transcriber and speaker are required")
	case deps.Classifier == nil:
		return nil, errors.New("assistant: classifier is required")
	case deps.Responder == nil:
		return nil, errors.New("assistant: responder is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = &notify.NoOpNotifier{}
	}
	opts = opts.withDefaults()
	logger := deps.Logger.With("component", "assistant")
	l := &Loop{
		deps: deps,
		opts: opts,
		session: &Session{
			Conversation: conversation.NewContext(opts.MaxTurns),
			Logger:       logger,
			State:        StateIdle,
			StartedAt:    time.Now(),
		},
		commands: make(chan submission),
		done:     make(chan struct{}),
	}
	l.publish()
	return l, nil
}

// Status returns the latest published session state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) publish() {
	st := l.session.snapshot(l.voiceClosed)
	l.mu.Lock()
	l.status = st
	l.mu.Unlock()
}

func (l *Loop) setState(state State) {
	if l.session.State == state {
		return
	}
	l.session.Logger.Debug("state change", "from", l.session.State, "state", state)
	l.session.State = state
	l.publish()
}

// Run greets the user and cycles until ctx is cancelled. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("assistant: already running")
	}
	defer close(l.done)

	greeting := l.respond(conversation.CategoryGreetings, "", conversation.MoodEnergetic, "Hello.")
	if err := l.speak(ctx, greeting); err != nil {
		l.session.Logger.Warn("greeting failed", "err", err)
	}
	l.record(ctx, conversation.SpeakerAssistant, greeting)

	for {
		if ctx.Err() != nil || l.stopping.Load() {
			return nil
		}
		l.setState(StateIdle)
		l.checkResources(ctx)

		audio, sub, err := l.waitWake(ctx)
		if err == nil && sub == nil {
			l.wakeErrors.reset()
		}
		switch {
		case sub != nil:
			if ctx.Err() != nil {
				sub.reply <- reply{err: ErrStopped}
				return nil
			}
			text, err := l.process(ctx, sub.text)
			sub.reply <- reply{text: text, err: err}
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, voice.ErrClosed):
			l.session.Logger.Info("voice input closed, accepting API commands only")
			l.voiceClosed = true
			l.publish()
			continue
		case err != nil:
			if l.wakeErrors.first(err, time.Now()) {
				l.fail(ctx, &VoiceIOError{Op: "wake", Err: err})
			} else {
				l.session.Logger.Debug("wake poll still failing", "err", err, "repeats", l.wakeErrors.repeats)
			}
			l.sleep(ctx)
			continue
		case audio == nil:
			l.sleep(ctx)
			continue
		}

		l.setState(StateListening)
		captured, err := l.capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.fail(ctx, &VoiceIOError{Op: "capture", Err: err})
			continue
		}
		if len(captured) == 0 {
			continue
		}
		text, err := l.deps.Transcriber.Transcribe(ctx, captured)
		if err != nil {
			l.fail(ctx, &VoiceIOError{Op: "transcribe", Err: err})
			continue
		}
		if text == "" {
			continue
		}
		_, _ = l.process(ctx, text)
	}
}

// waitWake polls the listener for at most PollTimeout. A submitted command interrupts the
// wait. A listener that overruns its timeout keeps its poll in flight and is awaited on the
// next iteration instead of being polled twice.
func (l *Loop) waitWake(ctx context.Context) (voice.Audio, *submission, error) {
	if l.inflight == nil && !l.voiceClosed {
		pollCtx, cancel := context.WithTimeout(ctx, l.opts.PollTimeout)
		ch := make(chan pollResult, 1)
		go func() {
			defer cancel()
			audio, err := l.deps.Listener.PollWake(pollCtx, l.opts.PollTimeout)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = nil
			}
			ch <- pollResult{audio: audio, err: err}
		}()
		l.inflight = ch
	}

	timer := time.NewTimer(l.opts.PollTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case sub := <-l.commands:
		return nil, &sub, nil
	case res := <-l.inflight:
		l.inflight = nil
		return res.audio, nil, res.err
	case <-timer.C:
		return nil, nil, nil
	}
}

// capture reads the command after a wake, bounded by CaptureTimeout.
func (l *Loop) capture(ctx context.Context) (voice.Audio, error) {
	captureCtx := ctx
	var timeout <-chan time.Time
	if l.opts.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, l.opts.CaptureTimeout)
		defer cancel()
		timer := time.NewTimer(l.opts.CaptureTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	ch := make(chan pollResult, 1)
	go func() {
		audio, err := l.deps.Listener.CaptureCommand(captureCtx)
		ch <- pollResult{audio: audio, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		l.session.Logger.Info("no command captured before timeout", "timeout", l.opts.CaptureTimeout)
		return nil, nil
	case res := <-ch:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			l.session.Logger.Info("no command captured before timeout", "timeout", l.opts.CaptureTimeout)
			return nil, nil
		}
		return res.audio, res.err
	}
}

func (l *Loop) sleep(ctx context.Context) {
	timer := time.NewTimer(l.opts.IdleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// process handles one command end to end and returns the spoken reply.
func (l *Loop) process(ctx context.Context, text string) (string, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "assistant.turn")
	defer span.End()
	l.setState(StateProcessing)

	conv := l.session.Conversation
	conv.SetMood(conversation.AnalyzeMood(text), time.Now())
	l.record(ctx, conversation.SpeakerUser, text)

	intent, err := l.deps.Classifier.Classify(ctx, text)
	if err != nil {
		return l.failTurn(ctx, span, start, fmt.Errorf("classify: %w", err))
	}
	span.SetAttributes(
		attribute.String("intent.category", string(intent.Category)),
		attribute.String("intent.target", intent.Target),
	)
	l.session.Logger.Info("command", "category", intent.Category, "action", intent.Action, "target", intent.Target, "mood", conv.CurrentMood)

	answer, err := l.dispatch(ctx, intent)
	if err != nil {
		return l.failTurn(ctx, span, start, err)
	}
	if err := l.speak(ctx, answer); err != nil {
		return l.failTurn(ctx, span, start, err)
	}
	l.record(ctx, conversation.SpeakerAssistant, answer)
	l.deps.Metrics.CommandHandled(string(intent.Category), time.Since(start))
	l.setState(StateIdle)
	return answer, nil
}

func (l *Loop) failTurn(ctx context.Context, span trace.Span, start time.Time, err error) (string, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	answer := l.fail(ctx, err)
	l.deps.Metrics.CommandHandled("error", time.Since(start))
	return answer, err
}

// fail passes through the error state: it logs err, speaks an error response and returns
// to idle.
func (l *Loop) fail(ctx context.Context, err error) string {
	l.setState(StateError)
	l.session.Logger.Error("turn failed", "err", err)
	sub := ""
	var vErr *VoiceIOError
	if errors.As(err, &vErr) {
		sub = "voice"
	}
	answer := l.respond(conversation.CategoryErrors, sub, l.session.Conversation.CurrentMood, "Sorry, something went wrong.")
	if speakErr := l.speak(ctx, answer); speakErr != nil {
		l.session.Logger.Warn("speak error response", "err", speakErr)
	} else {
		l.record(ctx, conversation.SpeakerAssistant, answer)
	}
	l.setState(StateIdle)
	return answer
}

func (l *Loop) respond(category, subcategory string, mood conversation.Mood, fallback string) string {
	text, err := l.deps.Responder.Response(category, subcategory, mood)
	if err != nil {
		l.session.Logger.Warn("missing response template", "category", category, "err", err)
		return fallback
	}
	return text
}

func (l *Loop) speak(ctx context.Context, text string) error {
	if err := l.deps.Speaker.Speak(ctx, text); err != nil {
		return &VoiceIOError{Op: "speak", Err: err}
	}
	return nil
}

func (l *Loop) record(ctx context.Context, speaker conversation.Speaker, text string) {
	turn := l.session.Conversation.AddTurn(speaker, text, time.Now())
	l.publish()
	if l.deps.Turns == nil {
		return
	}
	if err := l.deps.Turns.InsertTurn(ctx, turn); err != nil {
		l.session.Logger.Warn("persist turn", "err", err)
	}
}

func (l *Loop) checkResources(ctx context.Context) {
	if l.deps.Monitor == nil {
		return
	}
	st, err := l.deps.Monitor.Status(ctx)
	if err != nil {
		l.session.Logger.Debug("resource sample incomplete", "err", err)
	}
	l.session.Resources = &st
	l.deps.Metrics.ObserveResources(st)
	l.publish()
	if !st.Critical(l.opts.CriticalPercent) {
		return
	}
	l.session.Logger.Warn("system resources critical", "cpu", st.CPUPercent, "memory", st.MemoryPercent)
	body := fmt.Sprintf("cpu %.0f%%, memory %.0f%%", st.CPUPercent, st.MemoryPercent)
	if err := l.deps.Notifier.Send(ctx, "System resources critical", body); err != nil {
		l.session.Logger.Warn("send resource notification", "err", err)
	}
}

// Submit hands a text command to the running loop and waits for the spoken reply.
func (l *Loop) Submit(ctx context.Context, text string) (string, error) {
	if l.stopping.Load() {
		return "", ErrStopped
	}
	sub := submission{text: text, reply: make(chan reply, 1)}
	select {
	case l.commands <- sub:
	case <-l.done:
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-sub.reply:
		return r.text, r.err
	case <-l.done:
		select {
		case r := <-sub.reply:
			return r.text, r.err
		default:
			return "", ErrStopped
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Say speaks text directly without treating it as a command.
func (l *Loop) Say(ctx context.Context, text string) error {
	return l.speak(ctx, text)
}

// Shutdown stops accepting wakes, waits for Run to return, cancels active tasks, stops the
// scheduler and speaks a farewell.
func (l *Loop) Shutdown(ctx context.Context) error {
	if !l.stopping.CompareAndSwap(false, true) {
		return nil
	}
	if l.running.Load() {
		select {
		case <-l.done:
		case <-ctx.Done():
			return fmt.Errorf("wait for interaction loop: %w", ctx.Err())
		}
	}
	err := l.deps.Manager.Shutdown(ctx)

	farewell := l.respond(conversation.CategoryGoodbye, "", conversation.MoodNeutral, "Goodbye.")
	if speakErr := l.speak(ctx, farewell); speakErr != nil {
		l.session.Logger.Warn("farewell failed", "err", speakErr)
	}
	l.record(ctx, conversation.SpeakerAssistant, farewell)
	return err
}
