package nlp

import (
	"context"
	"strings"
	"unicode"
)

// Category is the coarse kind of a command.
type Category string

const (
	CategorySearch  Category = "search"
	CategoryLaunch  Category = "launch"
	CategoryStop    Category = "stop"
	CategoryStatus  Category = "status"
	CategoryUnknown Category = "unknown"
)

// Intent is the classification of one utterance.
type Intent struct {
	Category   Category `json:"category"`
	Action     string   `json:"action,omitempty"`
	Target     string   `json:"target,omitempty"`
	Confidence float64  `json:"confidence"`
	Text       string   `json:"text"`
}

type rule struct {
	category   Category
	verbs      []string
	confidence float64
}

var defaultRules = []rule{
	{CategorySearch, []string{"search", "find", "look"}, 0.8},
	{CategoryLaunch, []string{"open", "launch", "start"}, 0.8},
	{CategoryStop, []string{"close", "exit", "stop"}, 0.8},
	{CategoryStatus, []string{"status", "running"}, 0.7},
}

var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "up": {}, "for": {}, "me": {}, "please": {},
	"my": {}, "app": {}, "application": {}, "program": {}, "about": {}, "at": {},
}

// KeywordClassifier assigns intents from verb keywords. The first rule whose verb appears
// as a whole word wins.
type KeywordClassifier struct{}

// Classify never fails; text without a known verb is CategoryUnknown.
func (KeywordClassifier) Classify(_ context.Context, text string) (Intent, error) {
	words := Tokenize(text)
	for _, r := range defaultRules {
		for i, w := range words {
			if !contains(r.verbs, w) {
				continue
			}
			return Intent{
				Category:   r.category,
				Action:     w,
				Target:     firstContentWord(words[i+1:]),
				Confidence: r.confidence,
				Text:       text,
			}, nil
		}
	}
	return Intent{Category: CategoryUnknown, Confidence: 0.5, Text: text}, nil
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func firstContentWord(words []string) string {
	for _, w := range words {
		if _, skip := fillerWords[w]; skip {
			continue
		}
		return w
	}
	return ""
}

func contains(list []string, w string) bool {
	for _, v := range list {
		if v == w {
			return true
		}
	}
	return false
}
