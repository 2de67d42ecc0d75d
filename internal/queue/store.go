// Package queue persists jobs in SQLite and runs them on a bounded worker
// pool. All attempt counting and backoff state lives in the database.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/migrations"
)

// CancelOutcome describes what Cancel did.
type CancelOutcome string

const (
	// Cancelled means a job that had not started was cancelled outright.
	Cancelled CancelOutcome = "cancelled"
	// CancelRequested means a running job will stop at its next stage.
	CancelRequested CancelOutcome = "cancel_requested"
	// AlreadyFinished means the job had already reached a terminal state.
	AlreadyFinished CancelOutcome = "already_finished"
)

// errInterrupted is recorded on jobs that were running when the process
// stopped.
var errInterrupted = errors.New("interrupted: worker stopped before the job finished")

// Config controls retries.
type Config struct {
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles for each
	// further attempt.
	Backoff time.Duration
}

// Stats counts jobs by status.
type Stats map[job.Status]int

// Publisher receives job lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Store is the durable job queue.
type Store struct {
	db     *sqlx.DB
	cfg    Config
	now    func() time.Time
	log    *slog.Logger
	events Publisher
}

// Open opens the database at path, creating it if needed, and applies
// migrations. ":memory:" opens a private in-memory database.
func Open(path string, cfg Config, logger *slog.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory:
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewStore(db, cfg, logger), nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sqlx.DB, cfg Config, logger *slog.Logger) *Store {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, cfg: cfg, now: time.Now, log: logger.With("component", "queue")}
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := iofs.New(migrations.FS, migrations.Dir)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// m.Close would close db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database, shared with the event log.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// SetPublisher sends job lifecycle events to p. Call it before any job is
// submitted or claimed.
func (s *Store) SetPublisher(p Publisher) {
	s.events = p
}

func (s *Store) emit(ctx context.Context, eventType, id string, status job.Status, progress int, msg string) {
	if s.events == nil {
		return
	}
	e := events.Event{
		Type:       eventType,
		JobID:      id,
		Status:     status,
		Progress:   progress,
		Message:    msg,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("publish event failed", "type", eventType, "job", id, "error", err)
	}
}

const jobColumns = `id, type, status, progress, params, result, failure_reason, attempts,
	max_attempts, claimed, cancel_requested, run_after, created_at, processed_at, finished_at`

type jobRow struct {
	ID              string         `db:"id"`
	Type            string         `db:"type"`
	Status          job.Status     `db:"status"`
	Progress        int            `db:"progress"`
	Params          string         `db:"params"`
	Result          sql.NullString `db:"result"`
	FailureReason   sql.NullString `db:"failure_reason"`
	Attempts        int            `db:"attempts"`
	MaxAttempts     int            `db:"max_attempts"`
	Claimed         bool           `db:"claimed"`
	CancelRequested bool           `db:"cancel_requested"`
	RunAfter        int64          `db:"run_after"`
	CreatedAt       int64          `db:"created_at"`
	ProcessedAt     sql.NullInt64  `db:"processed_at"`
	FinishedAt      sql.NullInt64  `db:"finished_at"`
}

func (r *jobRow) job() (*job.Job, error) {
	j := &job.Job{
		ID:            r.ID,
		Type:          r.Type,
		Status:        r.Status,
		Progress:      r.Progress,
		FailureReason: r.FailureReason.String,
		Attempts:      r.Attempts,
		MaxAttempts:   r.MaxAttempts,
		CreatedAt:     time.UnixMilli(r.CreatedAt),
		ProcessedAt:   fromMillis(r.ProcessedAt),
		FinishedAt:    fromMillis(r.FinishedAt),
	}
	if err := json.Unmarshal([]byte(r.Params), &j.Params); err != nil {
		return nil, fmt.Errorf("decode params of job %s: %w", r.ID, err)
	}
	if r.Result.Valid {
		j.Result = &job.Result{}
		if err := json.Unmarshal([]byte(r.Result.String), j.Result); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", r.ID, err)
		}
	}
	return j, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func notFound(id string) error {
	return apperr.New(apperr.KindNotFound, "job %s not found", id)
}

// Submit enqueues a job and returns its id. An empty id gets a generated
// one; submitting an id that already exists is a no-op.
func (s *Store) Submit(ctx context.Context, jobType, id string, p job.Params) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	params, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	now := millis(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, params, max_attempts, run_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, jobType, job.StatusQueued, string(params), s.cfg.MaxAttempts, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return id, nil
	}
	s.log.Debug("job submitted", "job", id, "url", p.URL)
	s.emit(ctx, events.JobQueued, id, job.StatusQueued, 0, p.URL)
	return id, nil
}

func (s *Store) row(ctx context.Context, q sqlx.QueryerContext, id string) (*jobRow, error) {
	var r jobRow
	err := sqlx.GetContext(ctx, q, &r, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &r, nil
}

// Get returns a job. Unknown ids yield apperr.ErrJobNotFound.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	r, err := s.row(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return r.job()
}

// Cancel cancels a job that has not started, or flags a running job so it
// stops at its next stage boundary.
func (s *Store) Cancel(ctx context.Context, id string) (CancelOutcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r, err := s.row(ctx, tx, id)
	if err != nil {
		return "", err
	}

	var outcome CancelOutcome
	switch {
	case r.Status.IsTerminal():
		return AlreadyFinished, nil
	case r.Status == job.StatusQueued && !r.Claimed:
		_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = ?, finished_at = ? WHERE id = ?`,
			job.StatusCancelled, millis(s.now()), id)
		outcome = Cancelled
	default:
		_, err = tx.ExecContext(ctx, `UPDATE jobs SET cancel_requested = 1 WHERE id = ?`, id)
		outcome = CancelRequested
	}
	if err != nil {
		return "", fmt.Errorf("cancel job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	s.log.Info("job cancel", "job", id, "outcome", outcome)
	if outcome == Cancelled {
		s.emit(ctx, events.JobCancelled, id, job.StatusCancelled, r.Progress, "")
	} else {
		s.emit(ctx, events.JobCancelRequested, id, r.Status, r.Progress, "")
	}
	return outcome, nil
}

// Stats counts jobs by status. Every status is present.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var counts []struct {
		Status job.Status `db:"status"`
		N      int        `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS n FROM jobs GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	stats := make(Stats, len(job.Statuses))
	for _, st := range job.Statuses {
		stats[st] = 0
	}
	for _, c := range counts {
		stats[c.Status] = c.N
	}
	return stats, nil
}

// Claim takes the next runnable job and counts a new attempt. It returns
// nil when nothing is runnable.
func (s *Store) Claim(ctx context.Context) (*job.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := millis(s.now())
	var r jobRow
	err = tx.GetContext(ctx, &r, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ? AND claimed = 0 AND run_after <= ?
		ORDER BY run_after, created_at
		LIMIT 1`,
		job.StatusQueued, now,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select runnable job: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET claimed = 1, attempts = attempts + 1, processed_at = ?
		WHERE id = ?`, now, r.ID); err != nil {
		return nil, fmt.Errorf("claim job %s: %w", r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.Claimed = true
	r.Attempts++
	r.ProcessedAt = sql.NullInt64{Int64: now, Valid: true}
	return r.job()
}

// Retry requeues a failed job when runErr is retryable and attempts remain.
// The delay is Backoff * 2^(attempts-1).
func (s *Store) Retry(ctx context.Context, id string, runErr error) (bool, error) {
	if !apperr.Retryable(runErr) || errors.Is(runErr, job.ErrCancelled) {
		return false, nil
	}
	r, err := s.row(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	if r.Status != job.StatusFailed || r.CancelRequested || r.Attempts >= r.MaxAttempts {
		return false, nil
	}

	delay := s.backoff(r.Attempts)
	err = s.transition(ctx, id, job.StatusQueued, `claimed = 0, progress = 0, result = NULL,
		failure_reason = NULL, finished_at = NULL, run_after = ?`, millis(s.now().Add(delay)))
	if err != nil {
		return false, err
	}
	s.log.Info("job requeued", "job", id, "attempt", r.Attempts, "max", r.MaxAttempts, "delay", delay)
	s.emit(ctx, events.JobRetrying, id, job.StatusQueued, 0,
		fmt.Sprintf("attempt %d of %d in %s", r.Attempts+1, r.MaxAttempts, delay))
	return true, nil
}

func (s *Store) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.cfg.Backoff << (attempt - 1)
}

// Recover fails jobs left running by a previous process and retries them
// when attempts remain. Call it before starting workers.
func (s *Store) Recover(ctx context.Context) (int, error) {
	var stale []jobRow
	err := s.db.SelectContext(ctx, &stale, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?, ?) OR (status = ? AND claimed = 1)`,
		job.StatusExtracting, job.StatusDownloading, job.StatusUploading, job.StatusQueued,
	)
	if err != nil {
		return 0, fmt.Errorf("select stale jobs: %w", err)
	}

	for _, r := range stale {
		if r.Status == job.StatusQueued {
			if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET claimed = 0 WHERE id = ?`, r.ID); err != nil {
				return 0, fmt.Errorf("release job %s: %w", r.ID, err)
			}
			continue
		}
		if err := s.Tracker(r.ID).Fail(ctx, errInterrupted.Error()); err != nil {
			return 0, err
		}
		if _, err := s.Retry(ctx, r.ID, errInterrupted); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		s.log.Warn("recovered interrupted jobs", "count", len(stale))
	}
	return len(stale), nil
}

// Prune deletes finished jobs older than their retention, along with their
// events.
func (s *Store) Prune(ctx context.Context, keepCompleted, keepFailed time.Duration) (int64, error) {
	now := s.now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE (status = ? AND finished_at < ?)
		   OR (status IN (?, ?) AND finished_at < ?)`,
		job.StatusCompleted, millis(now.Add(-keepCompleted)),
		job.StatusFailed, job.StatusCancelled, millis(now.Add(-keepFailed)),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_events WHERE job_id NOT IN (SELECT id FROM jobs)`); err != nil {
		return 0, fmt.Errorf("prune job events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if n > 0 {
		s.log.Info("pruned jobs", "count", n)
	}
	return n, nil
}

// transition moves a job to status to, rejecting invalid transitions, and
// applies the extra assignments in set.
func (s *Store) transition(ctx context.Context, id string, to job.Status, set string, args ...any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var from job.Status
	err = tx.GetContext(ctx, &from, `SELECT status FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}
	if !from.CanTransitionTo(to) {
		return &job.TransitionError{From: from, To: to}
	}

	q := `UPDATE jobs SET status = ?`
	if set != "" {
		q += ", " + set
	}
	q += ` WHERE id = ?`
	vals := append([]any{to}, args...)
	vals = append(vals, id)
	if _, err := tx.ExecContext(ctx, q, vals...); err != nil {
		return fmt.Errorf("transition job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("job transition", "job", id, "from", from, "to", to)
	return nil
}
