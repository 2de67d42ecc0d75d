package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/job"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, cfg Config) (*Store, *clock) {
	t.Helper()
	s, err := Open(":memory:", cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	c := &clock{t: epoch}
	s.now = c.now
	return s, c
}

func submit(t *testing.T, s *Store, url string) string {
	t.Helper()
	id, err := s.Submit(context.Background(), job.Type, "", job.Params{URL: url})
	require.NoError(t, err)
	return id
}

// runThrough claims the next job and moves it to status via its tracker.
func runThrough(t *testing.T, s *Store, path ...job.Status) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := s.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	tr := s.Tracker(j.ID)
	for i, st := range path {
		require.NoError(t, tr.Transition(ctx, st, (i+1)*10))
	}
	return j
}

func TestSubmitAndGet(t *testing.T) {
	s, _ := newTestStore(t, Config{MaxAttempts: 3})
	ctx := context.Background()

	id, err := s.Submit(ctx, job.Type, "", job.Params{
		URL:        "https://example.com/v",
		Backends:   []string{"gofile", "catbox"},
		UploadMode: "all",
		AudioOnly:  true,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	j, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status)
	assert.Equal(t, job.Type, j.Type)
	assert.Equal(t, "https://example.com/v", j.Params.URL)
	assert.Equal(t, []string{"gofile", "catbox"}, j.Params.Backends)
	assert.True(t, j.Params.AudioOnly)
	assert.Equal(t, 3, j.MaxAttempts)
	assert.Equal(t, 0, j.Attempts)
	assert.True(t, epoch.Equal(j.CreatedAt))
	assert.Nil(t, j.Result)
	assert.Nil(t, j.FinishedAt)
}

func TestSubmit_CallerIDIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	ctx := context.Background()

	id, err := s.Submit(ctx, job.Type, "my-job", job.Params{URL: "https://a.example/1"})
	require.NoError(t, err)
	assert.Equal(t, "my-job", id)

	_, err = s.Submit(ctx, job.Type, "my-job", job.Params{URL: "https://b.example/2"})
	require.NoError(t, err)

	j, err := s.Get(ctx, "my-job")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/1", j.Params.URL)
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
}

func TestClaim(t *testing.T) {
	s, c := newTestStore(t, Config{})
	ctx := context.Background()

	first := submit(t, s, "https://example.com/1")
	c.advance(time.Millisecond)
	second := submit(t, s, "https://example.com/2")

	j, err := s.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, j.ID)
	assert.Equal(t, 1, j.Attempts)
	require.NotNil(t, j.ProcessedAt)

	j, err = s.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, j.ID)

	j, err = s.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestTracker_Lifecycle(t *testing.T) {
	s, c := newTestStore(t, Config{})
	ctx := context.Background()
	submit(t, s, "https://example.com/v")

	j := runThrough(t, s, job.StatusExtracting, job.StatusDownloading, job.StatusUploading)
	tr := s.Tracker(j.ID)
	require.NoError(t, tr.Progress(ctx, 95))
	require.NoError(t, tr.Progress(ctx, 50))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusUploading, got.Status)
	assert.Equal(t, 95, got.Progress)

	c.advance(time.Minute)
	require.NoError(t, tr.Complete(ctx, &job.Result{
		Download:     job.DownloadSummary{Size: 2048, SizeFormatted: "2.0 KiB"},
		TotalSuccess: 1,
	}))

	got, err = s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Result)
	assert.Equal(t, int64(2048), got.Result.Download.Size)
	assert.Empty(t, got.FailureReason)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, epoch.Add(time.Minute).Equal(*got.FinishedAt))

	err = tr.Transition(ctx, job.StatusExtracting, 10)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
}

func TestTracker_RejectsSkippedStage(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	submit(t, s, "https://example.com/v")
	j := runThrough(t, s, job.StatusExtracting)

	err := s.Tracker(j.ID).Transition(context.Background(), job.StatusUploading, 60)
	var te *job.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, job.StatusExtracting, te.From)
}

func TestCancel(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	ctx := context.Background()

	waiting := submit(t, s, "https://example.com/1")
	outcome, err := s.Cancel(ctx, waiting)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, outcome)
	j, err := s.Get(ctx, waiting)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status)
	assert.NotNil(t, j.FinishedAt)

	outcome, err = s.Cancel(ctx, waiting)
	require.NoError(t, err)
	assert.Equal(t, AlreadyFinished, outcome)

	running := submit(t, s, "https://example.com/2")
	runThrough(t, s, job.StatusExtracting, job.StatusDownloading, job.StatusUploading)
	tr := s.Tracker(running)
	assert.False(t, tr.CancelRequested(ctx))

	outcome, err = s.Cancel(ctx, running)
	require.NoError(t, err)
	assert.Equal(t, CancelRequested, outcome)
	assert.True(t, tr.CancelRequested(ctx))
	j, err = s.Get(ctx, running)
	require.NoError(t, err)
	assert.Equal(t, job.StatusUploading, j.Status)

	_, err = s.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
}

func TestCancel_ClaimedButNotStarted(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	ctx := context.Background()
	id := submit(t, s, "https://example.com/1")
	_, err := s.Claim(ctx)
	require.NoError(t, err)

	outcome, err := s.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, CancelRequested, outcome)
}

func TestRetry_Backoff(t *testing.T) {
	s, c := newTestStore(t, Config{MaxAttempts: 3, Backoff: 5 * time.Second})
	ctx := context.Background()
	id := submit(t, s, "https://example.com/v")
	runErr := apperr.New(apperr.KindDownload, "stream error")

	runThrough(t, s, job.StatusExtracting, job.StatusDownloading)
	require.NoError(t, s.Tracker(id).Fail(ctx, runErr.Error()))

	retried, err := s.Retry(ctx, id, runErr)
	require.NoError(t, err)
	assert.True(t, retried)

	j, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status)
	assert.Equal(t, 0, j.Progress)
	assert.Empty(t, j.FailureReason)
	assert.Nil(t, j.FinishedAt)

	// Not runnable until the backoff has elapsed.
	next, err := s.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
	c.advance(5 * time.Second)

	runThrough(t, s, job.StatusExtracting)
	require.NoError(t, s.Tracker(id).Fail(ctx, runErr.Error()))
	retried, err = s.Retry(ctx, id, runErr)
	require.NoError(t, err)
	assert.True(t, retried)

	c.advance(9 * time.Second)
	next, err = s.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "second retry waits 10s")
	c.advance(time.Second)

	j = runThrough(t, s, job.StatusExtracting)
	assert.Equal(t, 3, j.Attempts)
	require.NoError(t, s.Tracker(id).Fail(ctx, runErr.Error()))
	retried, err = s.Retry(ctx, id, runErr)
	require.NoError(t, err)
	assert.False(t, retried, "attempts exhausted")

	j, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "stream error", j.FailureReason)
}

func TestRetry_NotRetryable(t *testing.T) {
	s, _ := newTestStore(t, Config{MaxAttempts: 3})
	ctx := context.Background()
	id := submit(t, s, "https://example.com/v")
	runThrough(t, s)
	require.NoError(t, s.Tracker(id).Fail(ctx, "bad url"))

	retried, err := s.Retry(ctx, id, apperr.Validation("bad url"))
	require.NoError(t, err)
	assert.False(t, retried)

	retried, err = s.Retry(ctx, id, job.ErrCancelled)
	require.NoError(t, err)
	assert.False(t, retried)
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	ctx := context.Background()

	submit(t, s, "https://example.com/1")
	submit(t, s, "https://example.com/2")
	cancelled := submit(t, s, "https://example.com/3")
	_, err := s.Cancel(ctx, cancelled)
	require.NoError(t, err)
	runThrough(t, s, job.StatusExtracting)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, len(job.Statuses))
	assert.Equal(t, 1, stats[job.StatusQueued])
	assert.Equal(t, 1, stats[job.StatusExtracting])
	assert.Equal(t, 1, stats[job.StatusCancelled])
	assert.Equal(t, 0, stats[job.StatusCompleted])
}

func TestPrune(t *testing.T) {
	s, c := newTestStore(t, Config{})
	ctx := context.Background()

	done := submit(t, s, "https://example.com/1")
	runThrough(t, s, job.StatusExtracting, job.StatusDownloading, job.StatusUploading)
	require.NoError(t, s.Tracker(done).Complete(ctx, &job.Result{}))

	failed := submit(t, s, "https://example.com/2")
	runThrough(t, s)
	require.NoError(t, s.Tracker(failed).Fail(ctx, "boom"))

	waiting := submit(t, s, "https://example.com/3")

	c.advance(2 * time.Hour)
	n, err := s.Prune(ctx, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, done)
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
	_, err = s.Get(ctx, failed)
	assert.NoError(t, err)
	_, err = s.Get(ctx, waiting)
	assert.NoError(t, err)

	c.advance(24 * time.Hour)
	n, err = s.Prune(ctx, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecover(t *testing.T) {
	s, _ := newTestStore(t, Config{MaxAttempts: 2})
	ctx := context.Background()

	running := submit(t, s, "https://example.com/1")
	runThrough(t, s, job.StatusExtracting, job.StatusDownloading)
	claimed := submit(t, s, "https://example.com/2")
	_, err := s.Claim(ctx)
	require.NoError(t, err)

	n, err := s.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{running, claimed} {
		j, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, job.StatusQueued, j.Status, id)
	}
	next, err := s.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, apperr.Retryable(errInterrupted))
	assert.True(t, apperr.Retryable(errors.New("connection reset")))
}
