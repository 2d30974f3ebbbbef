package assistant

import (
	"context"
	"time"

	"jarvis/internal/conversation"
	"jarvis/internal/core"
	"jarvis/internal/monitor"
	"jarvis/internal/nlp"
	"jarvis/internal/voice"
)

// Listener detects the wake phrase and captures the command that follows.
type Listener interface {
	PollWake(ctx context.Context, timeout time.Duration) (voice.Audio, error)
	CaptureCommand(ctx context.Context) (voice.Audio, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio voice.Audio) (string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Classifier interface {
	Classify(ctx context.Context, text string) (nlp.Intent, error)
}

type Searcher interface {
	Search(ctx context.Context, text string) ([]nlp.Result, error)
}

type Monitor interface {
	Status(ctx context.Context) (monitor.Status, error)
}

type Responder interface {
	Response(category, subcategory string, mood conversation.Mood) (string, error)
}

// Launcher resolves a spoken target into task work.
type Launcher interface {
	Work(target string) (core.Work, error)
}

// Canceller stops a task and forgets its job. It reports whether anything existed. Stop
// commands fall back to Manager.CancelTask when no Canceller is set.
type Canceller interface {
	Cancel(ctx context.Context, name string) (bool, error)
}

// TurnRecorder persists conversation turns.
type TurnRecorder interface {
	InsertTurn(ctx context.Context, turn conversation.Turn) error
}
