package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeMood(t *testing.T) {
	cases := map[string]Mood{
		"This is AWESOME":    MoodHappy,
		"I'm so tired today": MoodSad,
		"come on, hurry":     MoodEnergetic,
		"let's go":           MoodEnergetic,
		"what time is it":    MoodNeutral,
		"":                   MoodNeutral,
		"great but sad":      MoodHappy,
	}
	for input, want := range cases {
		assert.Equal(t, want, AnalyzeMood(input), input)
	}
}

func TestContextKeepsNewestTurns(t *testing.T) {
	c := NewContext(3)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, msg := range []string{"a", "b", "c", "d"} {
		c.AddTurn(SpeakerUser, msg, base.Add(time.Duration(i)*time.Second))
	}
	require.Len(t, c.History, 3)
	assert.Equal(t, "b", c.History[0].Message)

	recent := c.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Message)
	assert.Equal(t, "d", recent[1].Message)
	assert.Nil(t, c.Recent(0))
}

func TestContextSetMood(t *testing.T) {
	c := NewContext(0)
	assert.Equal(t, MoodNeutral, c.CurrentMood)
	assert.Nil(t, c.LastInteraction)

	now := time.Now()
	c.SetMood(MoodHappy, now)
	assert.Equal(t, MoodHappy, c.CurrentMood)
	require.NotNil(t, c.LastInteraction)
	assert.True(t, c.LastInteraction.Equal(now))

	c.SetMood(Mood("grumpy"), now)
	assert.Equal(t, MoodNeutral, c.CurrentMood)

	turn := c.AddTurn(SpeakerAssistant, "hello", now)
	assert.Equal(t, MoodNeutral, turn.Mood)
}

func testResponses() map[string]any {
	return map[string]any{
		"wake_phrases": []any{" Hey Jarvis ", "jarvis"},
		"greetings": map[string]any{
			"happy":   []any{"Great to see you!"},
			"neutral": []any{"Hello."},
		},
		"errors": map[string]any{
			"not_found": []any{"I couldn't find that."},
			"default":   "Something went wrong.",
		},
		"success":  []any{"Done.", "All set."},
		"goodbye":  "Goodbye.",
		"empty":    []any{},
		"moodless": map[string]any{"sad": []any{"Cheer up."}},
	}
}

func TestResponsesLookup(t *testing.T) {
	r := NewResponses(testResponses(), WithChooser(func(n int) int { return n - 1 }))

	text, err := r.Response(CategoryGreetings, "", MoodHappy)
	require.NoError(t, err)
	assert.Equal(t, "Great to see you!", text)

	text, err = r.Response(CategoryGreetings, "", MoodEnergetic)
	require.NoError(t, err)
	assert.Equal(t, "Hello.", text)

	text, err = r.Response(CategoryErrors, "not_found", MoodNeutral)
	require.NoError(t, err)
	assert.Equal(t, "I couldn't find that.", text)

	text, err = r.Response(CategoryErrors, "", MoodHappy)
	require.NoError(t, err)
	assert.Equal(t, "Something went wrong.", text)

	text, err = r.Response(CategorySuccess, "", MoodNeutral)
	require.NoError(t, err)
	assert.Equal(t, "All set.", text)

	text, err = r.Response(CategoryGoodbye, "", MoodSad)
	require.NoError(t, err)
	assert.Equal(t, "Goodbye.", text)
}

func TestResponsesMissing(t *testing.T) {
	r := NewResponses(testResponses())

	_, err := r.Response("nope", "", MoodNeutral)
	require.ErrorIs(t, err, ErrNoResponse)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "nope", respErr.Category)

	_, err = r.Response("empty", "", MoodNeutral)
	assert.ErrorIs(t, err, ErrNoResponse)

	_, err = r.Response("moodless", "", MoodHappy)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestResponsesReplace(t *testing.T) {
	r := NewResponses(testResponses())
	assert.Equal(t, []string{"hey jarvis", "jarvis"}, r.WakePhrases())
	assert.NotContains(t, r.Categories(), "wake_phrases")

	r.Replace(map[string]any{"success": "ok"})
	assert.Empty(t, r.WakePhrases())
	assert.Equal(t, []string{"success"}, r.Categories())
	text, err := r.Response(CategorySuccess, "", MoodNeutral)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
