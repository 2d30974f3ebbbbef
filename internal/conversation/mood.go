package conversation

import "strings"

var moodKeywords = []struct {
	mood  Mood
	words []string
}{
	{MoodHappy, []string{"great", "awesome", "amazing"}},
	{MoodSad, []string{"sad", "tired", "upset"}},
	{MoodEnergetic, []string{"lets go", "let's go", "come on", "hurry"}},
}

// AnalyzeMood picks a mood from keywords in message. The first matching group wins.
func AnalyzeMood(message string) Mood {
	lower := strings.ToLower(message)
	for _, group := range moodKeywords {
		for _, word := range group.words {
			if strings.Contains(lower, word) {
				return group.mood
			}
		}
	}
	return MoodNeutral
}
