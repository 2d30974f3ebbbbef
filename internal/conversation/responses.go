package conversation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
)

// Response categories used by the interaction loop.
const (
	CategoryGreetings       = "greetings"
	CategoryGoodbye         = "goodbye"
	CategoryErrors          = "errors"
	CategorySuccess         = "success"
	CategoryAcknowledgments = "acknowledgments"
	CategoryUnknownCommand  = "unknown_command"
	CategoryNoResults       = "no_results"
	CategoryAlreadyRunning  = "already_running"
	CategoryStatus          = "status"
)

const wakePhrasesKey = "wake_phrases"

// ErrNoResponse is returned when no template matches a lookup.
var ErrNoResponse = errors.New("no response available")

// ResponseError names the lookup that failed.
type ResponseError struct {
	Category    string
	Subcategory string
	Err         error
}

func (e *ResponseError) Error() string {
	if e.Subcategory != "" {
		return fmt.Sprintf("response %s/%s: %v", e.Category, e.Subcategory, e.Err)
	}
	return fmt.Sprintf("response %s: %v", e.Category, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Responses picks reply templates by category, optional subcategory and mood. The template
// tree is the decoded responses.yaml document: each category holds a string, a list of
// strings, or a map keyed by subcategory or mood.
type Responses struct {
	mu     sync.RWMutex
	data   map[string]any
	intn   func(int) int
	phrase []string
}

// ResponsesOption customizes a Responses.
type ResponsesOption func(*Responses)

// WithChooser replaces the random index picker.
func WithChooser(intn func(int) int) ResponsesOption {
	return func(r *Responses) {
		if intn != nil {
			r.intn = intn
		}
	}
}

// NewResponses builds a responder over data.
func NewResponses(data map[string]any, opts ...ResponsesOption) *Responses {
	r := &Responses{intn: rand.IntN}
	for _, opt := range opts {
		opt(r)
	}
	r.Replace(data)
	return r
}

// Replace swaps the template tree, used on configuration reload.
func (r *Responses) Replace(data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	phrases := toStrings(data[wakePhrasesKey])
	for i, p := range phrases {
		phrases[i] = strings.ToLower(strings.TrimSpace(p))
	}
	r.mu.Lock()
	r.data = data
	r.phrase = phrases
	r.mu.Unlock()
}

// WakePhrases returns the configured wake phrases in lower case.
func (r *Responses) WakePhrases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.phrase...)
}

// Categories lists the top-level categories, sorted.
func (r *Responses) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data))
	for k := range r.data {
		if k == wakePhrasesKey {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Response returns a template for category. A subcategory narrows a map-valued category first;
// the mood then narrows a map, falling back to "neutral" and then "default".
func (r *Responses) Response(category, subcategory string, mood Mood) (string, error) {
	r.mu.RLock()
	node, ok := r.data[category]
	r.mu.RUnlock()
	if !ok || node == nil {
		return "", &ResponseError{Category: category, Subcategory: subcategory, Err: ErrNoResponse}
	}
	if subcategory != "" {
		if m, ok := asMap(node); ok {
			if sub, ok := m[subcategory]; ok {
				node = sub
			}
		}
	}
	if m, ok := asMap(node); ok {
		picked := false
		for _, key := range []string{string(mood), string(MoodNeutral), "default"} {
			if key == "" {
				continue
			}
			if v, ok := m[key]; ok {
				node = v
				picked = true
				break
			}
		}
		if !picked {
			return "", &ResponseError{Category: category, Subcategory: subcategory, Err: ErrNoResponse}
		}
	}
	switch v := node.(type) {
	case string:
		return v, nil
	default:
		options := toStrings(v)
		if len(options) == 0 {
			return "", &ResponseError{Category: category, Subcategory: subcategory, Err: ErrNoResponse}
		}
		return options[r.intn(len(options))], nil
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string][]string:
		out := make(map[string]any, len(m))
		for k, vv := range m {
			out[k] = vv
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, vv := range m {
			out[k] = vv
		}
		return out, true
	default:
		return nil, false
	}
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{s}
	default:
		return nil
	}
}
