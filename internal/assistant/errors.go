package assistant

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Submit once the loop is shutting down.
var ErrStopped = errors.New("assistant is stopped")

// VoiceIOError wraps failures of the listener, transcriber or speaker.
type VoiceIOError struct {
	Op  string
	Err error
}

func (e *VoiceIOError) Error() string {
	return fmt.Sprintf("voice %s: %v", e.Op, e.Err)
}

func (e *VoiceIOError) Unwrap() error { return e.Err }
