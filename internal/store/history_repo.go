package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"jarvis/internal/core"
)

// InsertHistoryEntry persists a finished run. Rows keep the order they were inserted in.
func (s *Store) InsertHistoryEntry(ctx context.Context, entry core.HistoryEntry) error {
	var durationMS any
	if entry.Duration != nil {
		durationMS = entry.Duration.Milliseconds()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO task_history (id, name, status, recorded_at, duration_ms, result, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM task_history))
	`, entry.ID, entry.Name, string(entry.Status), entry.Timestamp.UTC().Format(time.RFC3339Nano),
		durationMS, nullableString(entry.Result), nullableString(entry.Error))
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// RecentHistory returns the newest limit entries, oldest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, status, recorded_at, duration_ms, result, error FROM (
			SELECT id, name, status, recorded_at, duration_ms, result, error, seq
			FROM task_history
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return collectHistory(rows)
}

// HistoryForName returns the newest limit entries recorded for name, newest first.
func (s *Store) HistoryForName(ctx context.Context, name string, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, status, recorded_at, duration_ms, result, error
		FROM task_history
		WHERE name = ?
		ORDER BY seq DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", name, err)
	}
	return collectHistory(rows)
}

// PruneHistory deletes everything but the newest HistoryKeep rows.
func (s *Store) PruneHistory(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM task_history
		WHERE seq NOT IN (SELECT seq FROM task_history ORDER BY seq DESC LIMIT ?)
	`, s.HistoryKeep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// HistoryHook returns a completion hook that persists every entry and prunes old rows.
func (s *Store) HistoryHook(logger *slog.Logger) func(core.HistoryEntry) {
	return func(entry core.HistoryEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.InsertHistoryEntry(ctx, entry); err != nil {
			logger.Error("persist history entry", "task", entry.Name, "err", err)
			return
		}
		if _, err := s.PruneHistory(ctx); err != nil {
			logger.Warn("prune history", "err", err)
		}
	}
}

func collectHistory(rows *sql.Rows) ([]core.HistoryEntry, error) {
	defer rows.Close()
	entries := []core.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanHistory(scanner interface {
	Scan(dest ...any) error
}) (core.HistoryEntry, error) {
	var (
		id         string
		name       string
		status     string
		recordedAt string
		durationMS sql.NullInt64
		result     sql.NullString
		errMsg     sql.NullString
	)
	if err := scanner.Scan(&id, &name, &status, &recordedAt, &durationMS, &result, &errMsg); err != nil {
		return core.HistoryEntry{}, fmt.Errorf("scan history entry: %w", err)
	}
	entry := core.HistoryEntry{
		ID:        id,
		Name:      name,
		Status:    core.Status(status),
		Timestamp: parseTime(recordedAt),
	}
	if durationMS.Valid {
		d := time.Duration(durationMS.Int64) * time.Millisecond
		entry.Duration = &d
	}
	if result.Valid {
		entry.Result = &result.String
	}
	if errMsg.Valid {
		entry.Error = &errMsg.String
	}
	return entry, nil
}
