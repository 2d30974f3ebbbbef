package conversation

import (
	"time"
)

// Mood is the tone the assistant answers in.
type Mood string

const (
	MoodNeutral   Mood = "neutral"
	MoodHappy     Mood = "happy"
	MoodSad       Mood = "sad"
	MoodEnergetic Mood = "energetic"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodNeutral, MoodHappy, MoodSad, MoodEnergetic:
		return true
	default:
		return false
	}
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "jarvis"
)

// Turn is one utterance in the conversation.
type Turn struct {
	Timestamp time.Time
	Speaker   Speaker
	Message   string
	Mood      Mood
}

// DefaultMaxTurns bounds the in-memory conversation history.
const DefaultMaxTurns = 200

// Context is the conversational state owned by the interaction loop. It is not safe for
// concurrent use; the loop is its only writer and reader.
type Context struct {
	LastInteraction *time.Time
	CurrentMood     Mood
	History         []Turn

	maxTurns int
}

// NewContext returns an empty context in the neutral mood.
func NewContext(maxTurns int) *Context {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Context{CurrentMood: MoodNeutral, maxTurns: maxTurns}
}

// AddTurn appends an utterance and returns the stored turn.
func (c *Context) AddTurn(speaker Speaker, message string, now time.Time) Turn {
	turn := Turn{Timestamp: now, Speaker: speaker, Message: message, Mood: c.CurrentMood}
	c.History = append(c.History, turn)
	if over := len(c.History) - c.maxTurns; over > 0 {
		c.History = append([]Turn(nil), c.History[over:]...)
	}
	return turn
}

// SetMood updates the current mood and marks the interaction time.
func (c *Context) SetMood(mood Mood, now time.Time) {
	if !mood.Valid() {
		mood = MoodNeutral
	}
	c.CurrentMood = mood
	c.Touch(now)
}

// Touch records now as the last interaction.
func (c *Context) Touch(now time.Time) {
	c.LastInteraction = &now
}

// Recent returns up to n of the newest turns, oldest first.
func (c *Context) Recent(n int) []Turn {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	out := make([]Turn, n)
	copy(out, c.History[len(c.History)-n:])
	return out
}
