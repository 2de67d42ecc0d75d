package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/events"
	"github.com/vmunix/mediarelay/internal/job"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.JobID == jobID {
			out = append(out, e.Type)
		}
	}
	return out
}

func TestEvents_Lifecycle(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	rec := &recorder{}
	s.SetPublisher(rec)
	ctx := context.Background()

	id := submit(t, s, "https://example.com/v")
	runThrough(t, s, job.StatusExtracting, job.StatusDownloading)
	tr := s.Tracker(id)
	require.NoError(t, tr.Progress(ctx, 50))
	require.NoError(t, tr.Transition(ctx, job.StatusUploading, 60))
	require.NoError(t, tr.Complete(ctx, &job.Result{TotalSuccess: 2, TotalFailed: 1}))

	assert.Equal(t, []string{
		events.JobQueued,
		events.JobStatusChanged,
		events.JobStatusChanged,
		events.JobProgressed,
		events.JobStatusChanged,
		events.JobCompleted,
	}, rec.types(id))

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, job.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "2 uploads succeeded, 1 failed", last.Message)
	assert.Equal(t, epoch, last.OccurredAt)
}

func TestEvents_RejectedTransitionNotPublished(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	rec := &recorder{}
	s.SetPublisher(rec)

	id := submit(t, s, "https://example.com/v")
	runThrough(t, s)
	err := s.Tracker(id).Transition(context.Background(), job.StatusUploading, 60)
	require.Error(t, err)

	assert.Equal(t, []string{events.JobQueued}, rec.types(id))
}

func TestEvents_DuplicateSubmitNotPublished(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	rec := &recorder{}
	s.SetPublisher(rec)
	ctx := context.Background()

	for range 2 {
		_, err := s.Submit(ctx, job.Type, "fixed", job.Params{URL: "https://example.com/v"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{events.JobQueued}, rec.types("fixed"))
}

func TestEvents_CancelAndRetry(t *testing.T) {
	s, _ := newTestStore(t, Config{MaxAttempts: 2, Backoff: time.Second})
	rec := &recorder{}
	s.SetPublisher(rec)
	ctx := context.Background()

	waiting := submit(t, s, "https://example.com/1")
	_, err := s.Cancel(ctx, waiting)
	require.NoError(t, err)
	assert.Equal(t, []string{events.JobQueued, events.JobCancelled}, rec.types(waiting))

	failing := submit(t, s, "https://example.com/2")
	runThrough(t, s, job.StatusExtracting)
	runErr := apperr.New(apperr.KindDownload, "stream error")
	require.NoError(t, s.Tracker(failing).Fail(ctx, runErr.Error()))
	retried, err := s.Retry(ctx, failing, runErr)
	require.NoError(t, err)
	require.True(t, retried)

	assert.Equal(t, []string{
		events.JobQueued,
		events.JobStatusChanged,
		events.JobFailed,
		events.JobRetrying,
	}, rec.types(failing))
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, job.StatusQueued, last.Status)
	assert.Equal(t, "attempt 2 of 2 in 1s", last.Message)
}

func TestEvents_PersistedAndPruned(t *testing.T) {
	s, c := newTestStore(t, Config{})
	log := events.NewLog(s.DB())
	bus := events.NewBus(log, quietLogger())
	defer bus.Close()
	s.SetPublisher(bus)
	ctx := context.Background()

	done := submit(t, s, "https://example.com/1")
	runThrough(t, s, job.StatusExtracting, job.StatusDownloading, job.StatusUploading)
	require.NoError(t, s.Tracker(done).Complete(ctx, &job.Result{TotalSuccess: 1}))
	waiting := submit(t, s, "https://example.com/2")

	history, err := log.ForJob(ctx, done)
	require.NoError(t, err)
	assert.Len(t, history, 5)

	c.advance(2 * time.Hour)
	n, err := s.Prune(ctx, time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	history, err = log.ForJob(ctx, done)
	require.NoError(t, err)
	assert.Empty(t, history)
	history, err = log.ForJob(ctx, waiting)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPool_WakesOnSubmit(t *testing.T) {
	s, err := Open(":memory:", Config{MaxAttempts: 1}, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	bus := events.NewBus(nil, quietLogger())
	defer bus.Close()
	s.SetPublisher(bus)

	// The poll interval never fires during the test.
	pool := NewPool(s, &stageRunner{seen: map[string]int{}}, 1, time.Hour, quietLogger())
	pool.WakeOn(bus.Subscribe(events.JobQueued, 16))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	for range 3 {
		id := submit(t, s, "https://example.com/v")
		waitForStatus(t, s, id, job.StatusCompleted)
	}
	cancel()
	require.NoError(t, <-done)
}
