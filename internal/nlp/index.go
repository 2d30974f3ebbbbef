package nlp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyDocument is returned when a document has no indexable words.
var ErrEmptyDocument = errors.New("document has no searchable text")

// Document is one entry of the knowledge base.
type Document struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is a ranked search hit.
type Result struct {
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`
	Similarity float64 `json:"similarity"`
}

// DocumentStore persists documents. The sqlite store implements it.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc Document) error
	ListDocuments(ctx context.Context) ([]Document, error)
}

type indexed struct {
	doc    Document
	vector map[string]float64
	norm   float64
}

// Index ranks documents by cosine similarity of their term-frequency vectors.
type Index struct {
	mu      sync.RWMutex
	docs    []indexed
	store   DocumentStore
	minimum float64
}

// NewIndex returns an index. store may be nil for a memory-only index.
func NewIndex(store DocumentStore) *Index {
	return &Index{store: store, minimum: 0.1}
}

// Load replaces the in-memory documents with the persisted ones.
func (ix *Index) Load(ctx context.Context) error {
	if ix.store == nil {
		return nil
	}
	docs, err := ix.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	entries := make([]indexed, 0, len(docs))
	for _, d := range docs {
		if e, ok := vectorize(d); ok {
			entries = append(entries, e)
		}
	}
	ix.mu.Lock()
	ix.docs = entries
	ix.mu.Unlock()
	return nil
}

// Add indexes text and persists it when a store is configured.
func (ix *Index) Add(ctx context.Context, text, source string) (Document, error) {
	doc := Document{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(text),
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	entry, ok := vectorize(doc)
	if !ok {
		return Document{}, ErrEmptyDocument
	}
	if ix.store != nil {
		if err := ix.store.InsertDocument(ctx, doc); err != nil {
			return Document{}, err
		}
	}
	ix.mu.Lock()
	ix.docs = append(ix.docs, entry)
	ix.mu.Unlock()
	return doc, nil
}

// Len reports how many documents are indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns hits above the minimum similarity, best first.
func (ix *Index) Search(_ context.Context, query string) ([]Result, error) {
	q, ok := vectorize(Document{Text: query})
	if !ok {
		return []Result{}, nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	results := []Result{}
	for _, d := range ix.docs {
		score := cosine(q, d)
		if score < ix.minimum {
			continue
		}
		results = append(results, Result{Text: d.doc.Text, Source: d.doc.Source, Similarity: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results, nil
}

func vectorize(doc Document) (indexed, bool) {
	words := Tokenize(doc.Text)
	if len(words) == 0 {
		return indexed{}, false
	}
	vec := make(map[string]float64, len(words))
	for _, w := range words {
		vec[w]++
	}
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return indexed{doc: doc, vector: vec, norm: math.Sqrt(sum)}, true
}

func cosine(a, b indexed) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a.vector, b.vector
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for k, v := range small {
		dot += v * large[k]
	}
	return dot / (a.norm * b.norm)
}
