package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCancelled is returned by Run when the job stopped at a stage
	// boundary because cancellation was requested.
	ErrCancelled = errors.New("job cancelled")

	// ErrInvalidTransition is returned when a status change would move a
	// job backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Tracker records the progress of one job attempt. The queue store and
// MemoryTracker implement it.
type Tracker interface {
	Transition(ctx context.Context, to Status, progress int) error
	Progress(ctx context.Context, progress int) error
	CancelRequested(ctx context.Context) bool
	Complete(ctx context.Context, result *Result) error
	Fail(ctx context.Context, reason string) error
	Cancel(ctx context.Context) error
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// MemoryTracker keeps job state in memory. It backs the synchronous quick
// path and tests.
type MemoryTracker struct {
	mu        sync.Mutex
	status    Status
	progress  int
	history   []Status
	result    *Result
	reason    string
	cancelled bool
}

// NewMemoryTracker returns a tracker for a queued job.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{status: StatusQueued, history: []Status{StatusQueued}}
}

func (m *MemoryTracker) move(to Status) error {
	if !m.status.CanTransitionTo(to) {
		return &TransitionError{From: m.status, To: to}
	}
	m.status = to
	m.history = append(m.history, to)
	return nil
}

func (m *MemoryTracker) setProgress(p int) {
	if p > m.progress {
		m.progress = min(p, 100)
	}
}

func (m *MemoryTracker) Transition(_ context.Context, to Status, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.move(to); err != nil {
		return err
	}
	m.setProgress(progress)
	return nil
}

func (m *MemoryTracker) Progress(_ context.Context, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setProgress(progress)
	return nil
}

func (m *MemoryTracker) CancelRequested(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

func (m *MemoryTracker) Complete(_ context.Context, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.move(StatusCompleted); err != nil {
		return err
	}
	m.result = result
	m.progress = 100
	return nil
}

func (m *MemoryTracker) Fail(_ context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.move(StatusFailed); err != nil {
		return err
	}
	m.reason = reason
	return nil
}

func (m *MemoryTracker) Cancel(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(StatusCancelled)
}

// RequestCancel asks the running job to stop at its next stage boundary.
func (m *MemoryTracker) RequestCancel() {
	m.mu.Lock()
	m.cancelled = true
	m.mu.Unlock()
}

// Status returns the current status and progress.
func (m *MemoryTracker) Status() (Status, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.progress
}

// History returns every status visited, in order.
func (m *MemoryTracker) History() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Status(nil), m.history...)
}

// Outcome returns the stored result and failure reason.
func (m *MemoryTracker) Outcome() (*Result, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.reason
}
