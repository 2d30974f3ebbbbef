package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jarvis/internal/conversation"
)

// InsertTurn appends a conversation turn.
func (s *Store) InsertTurn(ctx context.Context, turn conversation.Turn) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO conversation_turns (speaker, message, mood, recorded_at)
		VALUES (?, ?, ?, ?)
	`, string(turn.Speaker), turn.Message, nullableText(string(turn.Mood)), turn.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns the newest limit turns, oldest first.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]conversation.Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT speaker, message, mood, recorded_at FROM (
			SELECT id, speaker, message, mood, recorded_at
			FROM conversation_turns
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()
	turns := []conversation.Turn{}
	for rows.Next() {
		var (
			speaker    string
			message    string
			mood       sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&speaker, &message, &mood, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, conversation.Turn{
			Timestamp: parseTime(recordedAt),
			Speaker:   conversation.Speaker(speaker),
			Message:   message,
			Mood:      conversation.Mood(mood.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}
