package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
)

// Tracker returns the job.Tracker bound to one stored job.
func (s *Store) Tracker(id string) job.Tracker {
	return &tracker{s: s, id: id}
}

type tracker struct {
	s  *Store
	id string
}

func (t *tracker) Transition(ctx context.Context, to job.Status, progress int) error {
	if err := t.s.transition(ctx, t.id, to, "progress = MAX(progress, ?)", progress); err != nil {
		return err
	}
	t.s.emit(ctx, events.JobStatusChanged, t.id, to, progress, "")
	return nil
}

func (t *tracker) Progress(ctx context.Context, progress int) error {
	progress = min(progress, 100)
	_, err := t.s.db.ExecContext(ctx, `UPDATE jobs SET progress = MAX(progress, ?) WHERE id = ?`,
		progress, t.id)
	if err != nil {
		return fmt.Errorf("update progress of job %s: %w", t.id, err)
	}
	t.s.emit(ctx, events.JobProgressed, t.id, "", progress, "")
	return nil
}

func (t *tracker) CancelRequested(ctx context.Context) bool {
	var requested bool
	err := t.s.db.GetContext(ctx, &requested, `SELECT cancel_requested FROM jobs WHERE id = ?`, t.id)
	if err != nil {
		t.s.log.Warn("cancel check failed", "job", t.id, "error", err)
		return false
	}
	return requested
}

func (t *tracker) Complete(ctx context.Context, result *job.Result) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	err = t.s.transition(ctx, t.id, job.StatusCompleted,
		"result = ?, progress = 100, finished_at = ?", string(b), millis(t.s.now()))
	if err != nil {
		return err
	}
	var msg string
	if result != nil {
		msg = fmt.Sprintf("%d uploads succeeded, %d failed", result.TotalSuccess, result.TotalFailed)
	}
	t.s.emit(ctx, events.JobCompleted, t.id, job.StatusCompleted, 100, msg)
	return nil
}

func (t *tracker) Fail(ctx context.Context, reason string) error {
	err := t.s.transition(ctx, t.id, job.StatusFailed,
		"failure_reason = ?, finished_at = ?", reason, millis(t.s.now()))
	if err != nil {
		return err
	}
	t.s.emit(ctx, events.JobFailed, t.id, job.StatusFailed, 0, reason)
	return nil
}

func (t *tracker) Cancel(ctx context.Context) error {
	if err := t.s.transition(ctx, t.id, job.StatusCancelled, "finished_at = ?", millis(t.s.now())); err != nil {
		return err
	}
	t.s.emit(ctx, events.JobCancelled, t.id, job.StatusCancelled, 0, "")
	return nil
}
