package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jarvis/internal/core"
)

var ErrJobNotFound = errors.New("job not found")

// UpsertJob stores a job definition, replacing any definition with the same name.
func (s *Store) UpsertJob(ctx context.Context, spec *core.JobSpec) error {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	spec.UpdatedAt = now

	var (
		cronExpr any
		every    any
		runAt    any
	)
	switch spec.Trigger.Kind {
	case core.TriggerCron:
		cronExpr = spec.Trigger.Cron
	case core.TriggerInterval:
		every = int64(spec.Trigger.Every / time.Second)
	case core.TriggerOnce:
		runAt = spec.Trigger.At.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (name, kind, cron, every_seconds, run_at, launcher, command, working_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			cron = excluded.cron,
			every_seconds = excluded.every_seconds,
			run_at = excluded.run_at,
			launcher = excluded.launcher,
			command = excluded.command,
			working_dir = excluded.working_dir,
			updated_at = excluded.updated_at
	`, spec.Name, string(spec.Trigger.Kind), cronExpr, every, runAt,
		nullableText(spec.Launcher), nullableText(spec.Command), nullableText(spec.WorkingDir),
		spec.CreatedAt.Format(time.RFC3339Nano), spec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// DeleteJob removes the definition called name.
func (s *Store) DeleteJob(ctx context.Context, name string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM jobs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob loads the definition called name.
func (s *Store) GetJob(ctx context.Context, name string) (*core.JobSpec, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT name, kind, cron, every_seconds, run_at, launcher, command, working_dir, created_at, updated_at
		FROM jobs WHERE name = ?
	`, name)
	spec, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return spec, nil
}

// ListJobSpecs returns every stored definition ordered by creation time.
func (s *Store) ListJobSpecs(ctx context.Context) ([]*core.JobSpec, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT name, kind, cron, every_seconds, run_at, launcher, command, working_dir, created_at, updated_at
		FROM jobs
		ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var specs []*core.JobSpec
	for rows.Next() {
		spec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return specs, nil
}

func scanJob(scanner interface {
	Scan(dest ...any) error
}) (*core.JobSpec, error) {
	var (
		name       string
		kind       string
		cronExpr   sql.NullString
		every      sql.NullInt64
		runAt      sql.NullString
		launcher   sql.NullString
		command    sql.NullString
		workingDir sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := scanner.Scan(&name, &kind, &cronExpr, &every, &runAt, &launcher, &command, &workingDir, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	spec := &core.JobSpec{
		Name:       name,
		Trigger:    core.Trigger{Kind: core.TriggerKind(kind)},
		Launcher:   launcher.String,
		Command:    command.String,
		WorkingDir: workingDir.String,
		CreatedAt:  parseTime(createdAt),
		UpdatedAt:  parseTime(updatedAt),
	}
	switch spec.Trigger.Kind {
	case core.TriggerCron:
		spec.Trigger.Cron = cronExpr.String
	case core.TriggerInterval:
		spec.Trigger.Every = time.Duration(every.Int64) * time.Second
	case core.TriggerOnce:
		spec.Trigger.At = parseTime(runAt.String)
	}
	return spec, nil
}
