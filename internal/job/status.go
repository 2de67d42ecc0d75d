package job

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusExtracting  Status = "extracting"
	StatusDownloading Status = "downloading"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusQueued, StatusExtracting, StatusDownloading, StatusUploading,
	StatusCompleted, StatusFailed, StatusCancelled,
}

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
var validTransitions = map[Status][]Status{
	StatusQueued:      {StatusExtracting, StatusFailed, StatusCancelled},
	StatusExtracting:  {StatusDownloading, StatusFailed, StatusCancelled},
	StatusDownloading: {StatusUploading, StatusFailed, StatusCancelled},
	StatusUploading:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:   {},
	StatusFailed:      {StatusQueued}, // new attempt, queue retry only
	StatusCancelled:   {},
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the job has finished its current attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive returns true while a pipeline stage is running.
func (s Status) IsActive() bool {
	return s == StatusExtracting || s == StatusDownloading || s == StatusUploading
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}
