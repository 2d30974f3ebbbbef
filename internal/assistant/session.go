package assistant

import (
	"log/slog"
	"time"

	"jarvis/internal/conversation"
	"jarvis/internal/monitor"
)

// State is the interaction loop's position in its cycle.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateError      State = "error"
)

// Session is the state owned by one running loop. Only the loop goroutine touches it.
type Session struct {
	Conversation *conversation.Context
	Logger       *slog.Logger
	State        State
	Resources    *monitor.Status
	StartedAt    time.Time
}

// Status is a copy of the session safe to hand to other goroutines.
type Status struct {
	State           State             `json:"state"`
	Mood            conversation.Mood `json:"mood"`
	LastInteraction *time.Time        `json:"last_interaction,omitempty"`
	Resources       *monitor.Status   `json:"resources,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	VoiceClosed     bool              `json:"voice_closed"`
}

func (s *Session) snapshot(voiceClosed bool) Status {
	st := Status{
		State:       s.State,
		Mood:        s.Conversation.CurrentMood,
		StartedAt:   s.StartedAt,
		VoiceClosed: voiceClosed,
	}
	if s.Conversation.LastInteraction != nil {
		t := *s.Conversation.LastInteraction
		st.LastInteraction = &t
	}
	if s.Resources != nil {
		r := *s.Resources
		st.Resources = &r
	}
	return st
}
