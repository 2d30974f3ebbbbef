package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	cases := []struct {
		text       string
		category   Category
		action     string
		target     string
		confidence float64
	}{
		{"Open calculator", CategoryLaunch, "open", "calculator", 0.8},
		{"please launch the browser", CategoryLaunch, "launch", "browser", 0.8},
		{"close the calculator app", CategoryStop, "close", "calculator", 0.8},
		{"search for golang channels", CategorySearch, "search", "golang", 0.8},
		{"look up the weather", CategorySearch, "look", "weather", 0.8},
		{"what's running?", CategoryStatus, "running", "", 0.7},
		{"tell me a joke", CategoryUnknown, "", "", 0.5},
		{"open", CategoryLaunch, "open", "", 0.8},
		{"reopen the door", CategoryUnknown, "", "", 0.5},
	}
	var c KeywordClassifier
	for _, tc := range cases {
		intent, err := c.Classify(context.Background(), tc.text)
		require.NoError(t, err)
		assert.Equal(t, tc.category, intent.Category, tc.text)
		assert.Equal(t, tc.action, intent.Action, tc.text)
		assert.Equal(t, tc.target, intent.Target, tc.text)
		assert.InDelta(t, tc.confidence, intent.Confidence, 1e-9, tc.text)
		assert.Equal(t, tc.text, intent.Text)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"what", "s", "running"}, Tokenize("What's running?"))
	assert.Empty(t, Tokenize(" ,. "))
}

type memoryDocs struct {
	docs []Document
	err  error
}

func (m *memoryDocs) InsertDocument(_ context.Context, doc Document) error {
	if m.err != nil {
		return m.err
	}
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memoryDocs) ListDocuments(context.Context) ([]Document, error) {
	return append([]Document(nil), m.docs...), nil
}

func TestIndexSearchRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := &memoryDocs{}
	ix := NewIndex(store)

	_, err := ix.Add(ctx, "Go channels synchronize goroutines", "notes")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "Channels in Go are typed conduits for goroutines and channels", "notes")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "The weather today is sunny", "")
	require.NoError(t, err)
	require.Len(t, store.docs, 3)

	results, err := ix.Search(ctx, "go channels goroutines")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Go channels synchronize goroutines", results[0].Text)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)

	results, err = ix.Search(ctx, "quantum chromodynamics")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = ix.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexLoadAndErrors(t *testing.T) {
	ctx := context.Background()
	store := &memoryDocs{docs: []Document{{ID: "1", Text: "sunny weather"}, {ID: "2", Text: "!!"}}}
	ix := NewIndex(store)
	require.NoError(t, ix.Load(ctx))
	assert.Equal(t, 1, ix.Len())

	_, err := ix.Add(ctx, "...", "")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	store.err = errors.New("disk full")
	_, err = ix.Add(ctx, "rainy weather", "")
	require.Error(t, err)
	assert.Equal(t, 1, ix.Len())

	memOnly := NewIndex(nil)
	require.NoError(t, memOnly.Load(ctx))
	_, err = memOnly.Add(ctx, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, 1, memOnly.Len())
}
