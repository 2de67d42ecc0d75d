package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vmunix/mediarelay/internal/job"
)

// Log persists events to the job_events table.
type Log struct {
	db *sqlx.DB
}

// NewLog creates an event log on an already migrated database.
func NewLog(db *sqlx.DB) *Log {
	return &Log{db: db}
}

type eventRow struct {
	ID         int64      `db:"id"`
	JobID      string     `db:"job_id"`
	Type       string     `db:"event_type"`
	Status     job.Status `db:"status"`
	Progress   int        `db:"progress"`
	Message    string     `db:"message"`
	OccurredAt int64      `db:"occurred_at"`
}

func (r eventRow) event() Event {
	return Event{
		ID:         r.ID,
		Type:       r.Type,
		JobID:      r.JobID,
		Status:     r.Status,
		Progress:   r.Progress,
		Message:    r.Message,
		OccurredAt: time.UnixMilli(r.OccurredAt),
	}
}

const eventColumns = `id, job_id, event_type, status, progress, message, occurred_at`

// Append persists an event and returns its ID.
func (l *Log) Append(ctx context.Context, e Event) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO job_events (job_id, event_type, status, progress, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Type, e.Status, e.Progress, e.Message, e.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// ForJob returns a job's events, oldest first.
func (l *Log) ForJob(ctx context.Context, jobID string) ([]Event, error) {
	return l.query(ctx, `SELECT `+eventColumns+` FROM job_events WHERE job_id = ? ORDER BY id ASC`, jobID)
}

// Recent returns the newest limit events across all jobs, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	return l.query(ctx, `SELECT `+eventColumns+` FROM job_events ORDER BY id DESC LIMIT ?`, limit)
}

func (l *Log) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	var rows []eventRow
	if err := l.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	out := make([]Event, len(rows))
	for i, r := range rows {
		out[i] = r.event()
	}
	return out, nil
}
