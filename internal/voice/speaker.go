package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// WriterSpeaker prints replies, one per line.
type WriterSpeaker struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
}

// NewWriterSpeaker writes replies to out prefixed with "jarvis: ".
func NewWriterSpeaker(out io.Writer) *WriterSpeaker {
	return &WriterSpeaker{out: out, prefix: "jarvis: "}
}

func (s *WriterSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, s.prefix+text)
	return err
}

// CommandSpeaker pipes every reply to an external text-to-speech program, passing the text
// as the last argument.
type CommandSpeaker struct {
	argv []string
}

// NewCommandSpeaker splits command on whitespace, e.g. "espeak -s 150".
func NewCommandSpeaker(command string) (*CommandSpeaker, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("empty tts command")
	}
	return &CommandSpeaker{argv: argv}, nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), s.argv[1:]...), text)
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	cmd.WaitDelay = 2 * time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", s.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// MultiSpeaker speaks through every wrapped speaker and joins their errors.
type MultiSpeaker []interface {
	Speak(ctx context.Context, text string) error
}

func (m MultiSpeaker) Speak(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Speak(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Silent never wakes and never speaks. Commands reach the assistant through the API instead.
type Silent struct{}

func (Silent) PollWake(ctx context.Context, timeout time.Duration) (Audio, error) {
	if timeout <= 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}

func (Silent) CaptureCommand(context.Context) (Audio, error) { return nil, nil }

func (Silent) Speak(context.Context, string) error { return nil }
