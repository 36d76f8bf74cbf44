package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meggy/backend/internal/model"
)

var ErrNotFound = errors.New("not found")

type TimerRepository struct {
	db *sql.DB
}

func NewTimerRepository(db *sql.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

func (r *TimerRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *TimerRepository) Create(ctx context.Context, timer *model.Timer) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO timers (
			id, owner_id, name, duration_seconds, end_time, status,
			paused_at, remaining_seconds, warning_sent, completion_notified,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		timer.ID,
		timer.OwnerID,
		timer.Name,
		timer.DurationSeconds,
		timer.EndTime.UTC().Format(time.RFC3339Nano),
		timer.Status,
		nullableTime(timer.PausedAt),
		nullableInt(timer.RemainingSeconds),
		timer.WarningSent,
		timer.CompletionSent,
		timer.CreatedAt.UTC().Format(time.RFC3339Nano),
		timer.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create timer: %w", err)
	}
	return nil
}

// GetByID loads a timer scoped to its owner. A timer belonging to a different
// owner is indistinguishable from a missing one.
func (r *TimerRepository) GetByID(ctx context.Context, ownerID, id string) (*model.Timer, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+timerColumns+`
		 FROM timers
		 WHERE id = ? AND owner_id = ?`,
		id,
		ownerID,
	)
	return scanTimer(row)
}

func (r *TimerRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, ownerID, id string) (*model.Timer, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+timerColumns+`
		 FROM timers
		 WHERE id = ? AND owner_id = ?`,
		id,
		ownerID,
	)
	return scanTimer(row)
}

// ListActive returns an owner's active and paused timers, newest first.
func (r *TimerRepository) ListActive(ctx context.Context, ownerID string) ([]model.Timer, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+timerColumns+`
		 FROM timers
		 WHERE owner_id = ? AND status IN (?, ?)
		 ORDER BY created_at DESC`,
		ownerID,
		model.StatusActive,
		model.StatusPaused,
	)
	if err != nil {
		return nil, fmt.Errorf("list active timers: %w", err)
	}
	return collectTimers(rows)
}

// ListRunning returns every active timer across all owners. The monitor sweep
// is the only caller.
func (r *TimerRepository) ListRunning(ctx context.Context) ([]model.Timer, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+timerColumns+`
		 FROM timers
		 WHERE status = ?
		 ORDER BY end_time ASC`,
		model.StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list running timers: %w", err)
	}
	return collectTimers(rows)
}

// UpdateTx persists a mutated timer, guarded on the status the mutation
// started from. It reports false when a concurrent writer changed the row
// first, in which case nothing was written.
func (r *TimerRepository) UpdateTx(ctx context.Context, tx *sql.Tx, timer *model.Timer, fromStatus string) (bool, error) {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE timers
		 SET name = ?,
		     end_time = ?,
			 status = ?,
			 paused_at = ?,
			 remaining_seconds = ?,
			 warning_sent = ?,
			 completion_notified = ?,
			 updated_at = ?
		 WHERE id = ? AND owner_id = ? AND status = ?`,
		timer.Name,
		timer.EndTime.UTC().Format(time.RFC3339Nano),
		timer.Status,
		nullableTime(timer.PausedAt),
		nullableInt(timer.RemainingSeconds),
		timer.WarningSent,
		timer.CompletionSent,
		timer.UpdatedAt.UTC().Format(time.RFC3339Nano),
		timer.ID,
		timer.OwnerID,
		fromStatus,
	)
	if err != nil {
		return false, fmt.Errorf("update timer: %w", err)
	}
	return rowsChanged(result)
}

// CancelAll flips every active or paused timer owned by ownerID to cancelled
// in one statement and returns how many rows it touched.
func (r *TimerRepository) CancelAll(ctx context.Context, ownerID string, now time.Time) (int, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE timers
		 SET status = ?, updated_at = ?
		 WHERE owner_id = ? AND status IN (?, ?)`,
		model.StatusCancelled,
		now.UTC().Format(time.RFC3339Nano),
		ownerID,
		model.StatusActive,
		model.StatusPaused,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel all timers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel all timers affected: %w", err)
	}
	return int(affected), nil
}

// CompleteIfDue transitions a timer to completed only if it is still active
// and no completion has been announced yet. The status guard re-validates the
// transition at write time, so a timer paused or cancelled after the sweep
// read it is left alone; the completion_notified guard keeps the completed
// event at most once even across racing sweeps.
func (r *TimerRepository) CompleteIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE timers
		 SET status = ?, completion_notified = 1, updated_at = ?
		 WHERE id = ? AND status = ? AND completion_notified = 0`,
		model.StatusCompleted,
		now.UTC().Format(time.RFC3339Nano),
		id,
		model.StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("complete timer: %w", err)
	}
	return rowsChanged(result)
}

// MarkWarningSent sets the one-shot warning flag. The flag only ever goes
// false to true, and only while the timer is still active.
func (r *TimerRepository) MarkWarningSent(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE timers
		 SET warning_sent = 1, updated_at = ?
		 WHERE id = ? AND status = ? AND warning_sent = 0`,
		now.UTC().Format(time.RFC3339Nano),
		id,
		model.StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("mark warning sent: %w", err)
	}
	return rowsChanged(result)
}

const timerColumns = `id, owner_id, name, duration_seconds, end_time, status,
		        paused_at, remaining_seconds, warning_sent, completion_notified,
				created_at, updated_at`

func rowsChanged(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func collectTimers(rows *sql.Rows) ([]model.Timer, error) {
	defer rows.Close()

	timers := make([]model.Timer, 0)
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, *timer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimer(s scanner) (*model.Timer, error) {
	timer := model.Timer{}
	var endTime string
	var pausedAt sql.NullString
	var remainingSeconds sql.NullInt64
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&timer.ID,
		&timer.OwnerID,
		&timer.Name,
		&timer.DurationSeconds,
		&endTime,
		&timer.Status,
		&pausedAt,
		&remainingSeconds,
		&timer.WarningSent,
		&timer.CompletionSent,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan timer: %w", err)
	}

	parsedEndTime, err := parseTime(endTime)
	if err != nil {
		return nil, fmt.Errorf("parse timer end_time: %w", err)
	}
	timer.EndTime = parsedEndTime

	if pausedAt.Valid {
		parsedPausedAt, parseErr := parseTime(pausedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse timer paused_at: %w", parseErr)
		}
		timer.PausedAt = &parsedPausedAt
	}
	if remainingSeconds.Valid {
		value := int(remainingSeconds.Int64)
		timer.RemainingSeconds = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse timer created_at: %w", err)
	}
	timer.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse timer updated_at: %w", err)
	}
	timer.UpdatedAt = parsedUpdatedAt

	return &timer, nil
}
