package voice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Audio is a captured utterance. Console input carries the typed text as its bytes.
type Audio []byte

// ErrClosed is returned once the input stream has ended.
var ErrClosed = errors.New("voice input closed")

// Console reads utterances line by line from a text stream. A line containing a wake phrase
// counts as a wake detection; any text after the phrase is kept as the pending command.
type Console struct {
	lines       chan string
	wakePhrases func() []string

	mu      sync.Mutex
	pending string

	startOnce sync.Once
	in        io.Reader
	readErr   error
}

// NewConsole returns a console listener over in. wakePhrases is consulted on every line so
// reloaded phrases take effect immediately; nil or empty phrases treat every line as a wake.
func NewConsole(in io.Reader, wakePhrases func() []string) *Console {
	return &Console{
		lines:       make(chan string),
		wakePhrases: wakePhrases,
		in:          in,
	}
}

func (c *Console) start() {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				c.lines <- line
			}
			c.readErr = scanner.Err()
		}()
	})
}

func (c *Console) next(ctx context.Context, timeout time.Duration) (string, bool, error) {
	c.start()
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-timer:
		return "", false, nil
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", false, fmt.Errorf("read console: %w", c.readErr)
			}
			return "", false, ErrClosed
		}
		return line, true, nil
	}
}

// PollWake waits up to timeout for a wake detection. It returns nil audio when nothing
// arrived or the line did not contain a wake phrase.
func (c *Console) PollWake(ctx context.Context, timeout time.Duration) (Audio, error) {
	line, ok, err := c.next(ctx, timeout)
	if err != nil || !ok {
		return nil, err
	}
	rest, woke := matchWake(line, c.phrases())
	if !woke {
		return nil, nil
	}
	c.mu.Lock()
	c.pending = rest
	c.mu.Unlock()
	return Audio(line), nil
}

// CaptureCommand returns the text that followed the wake phrase, or waits for the next line.
func (c *Console) CaptureCommand(ctx context.Context) (Audio, error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = ""
	c.mu.Unlock()
	if pending != "" {
		return Audio(pending), nil
	}
	line, ok, err := c.next(ctx, 0)
	if err != nil || !ok {
		return nil, err
	}
	return Audio(line), nil
}

func (c *Console) phrases() []string {
	if c.wakePhrases == nil {
		return nil
	}
	return c.wakePhrases()
}

func matchWake(line string, phrases []string) (string, bool) {
	if len(phrases) == 0 {
		return line, true
	}
	lower := strings.ToLower(line)
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		rest := lower[idx+len(phrase):]
		return strings.TrimSpace(strings.TrimLeft(rest, " ,.!?:;")), true
	}
	return "", false
}

// TextTranscriber treats audio bytes as already-transcribed text.
type TextTranscriber struct{}

func (TextTranscriber) Transcribe(_ context.Context, audio Audio) (string, error) {
	return strings.TrimSpace(string(audio)), nil
}
