package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jarvis/internal/nlp"
)

// InsertDocument stores a knowledge base document.
func (s *Store) InsertDocument(ctx context.Context, doc nlp.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO knowledge (id, text, source, created_at)
		VALUES (?, ?, ?, ?)
	`, doc.ID, doc.Text, nullableText(doc.Source), doc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// ListDocuments returns every document in insertion order.
func (s *Store) ListDocuments(ctx context.Context) ([]nlp.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, text, source, created_at
		FROM knowledge
		ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	docs := []nlp.Document{}
	for rows.Next() {
		var (
			doc       nlp.Document
			source    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Source = source.String
		doc.CreatedAt = parseTime(createdAt)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
