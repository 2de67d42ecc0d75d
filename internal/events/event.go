// Package events publishes job lifecycle events and keeps their history.
package events

import (
	"time"

	"github.com/vmunix/mediarelay/internal/job"
)

// Event types.
const (
	JobQueued          = "job.queued"
	JobStatusChanged   = "job.status_changed"
	JobProgressed      = "job.progressed"
	JobCompleted       = "job.completed"
	JobFailed          = "job.failed"
	JobCancelled       = "job.cancelled"
	JobCancelRequested = "job.cancel_requested"
	JobRetrying        = "job.retrying"
)

// Event is one change in a job's life.
type Event struct {
	// ID is assigned when the event is persisted.
	ID         int64      `json:"id,omitempty"`
	Type       string     `json:"type"`
	JobID      string     `json:"jobId"`
	Status     job.Status `json:"status,omitempty"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// New creates an event stamped with the current time.
func New(eventType, jobID string, status job.Status, progress int) Event {
	return Event{
		Type:       eventType,
		JobID:      jobID,
		Status:     status,
		Progress:   progress,
		OccurredAt: time.Now(),
	}
}

// Terminal reports whether the event ends the job's life.
func (e Event) Terminal() bool {
	switch e.Type {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}
