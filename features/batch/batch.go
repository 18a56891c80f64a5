package batch

import (
	"fmt"
	"time"
)

// Status is the closed set of lifecycle states for an embedding batch job.
type Status string

const (
	StatusPending    Status = "pending"    // created but not submitted
	StatusProcessing Status = "processing" // submitted to the provider
	StatusCompleted  Status = "completed"  // provider finished, result not downloaded
	StatusFailed     Status = "failed"     // terminal unless resubmitted as a new job
	StatusFinalized  Status = "finalized"  // embeddings written back, terminal
)

// Event is something that happens to a job.
type Event string

const (
	EventSubmitted Event = "submitted"
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
	EventFinalized Event = "finalized"
)

// Transition returns the state a job moves to when an event occurs. Every
// state change goes through here; there is no ordering between states.
func Transition(current Status, event Event) (Status, error) {
	switch {
	case current == StatusPending && event == EventSubmitted:
		return StatusProcessing, nil
	case (current == StatusPending || current == StatusProcessing) && event == EventCompleted:
		return StatusCompleted, nil
	case (current == StatusPending || current == StatusProcessing) && event == EventFailed:
		return StatusFailed, nil
	case current == StatusCompleted && event == EventFinalized:
		return StatusFinalized, nil
	}
	return current, fmt.Errorf("invalid transition: %s on %s", event, current)
}

// Job is one externally submitted batch computation request.
type Job struct {
	ID           int64     `json:"id"`
	BatchID      string    `json:"batch_id"`
	Status       Status    `json:"status"`
	OutputFileID *string   `json:"output_file_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Age is how long ago the job was submitted. The resubmission window is
// measured against it.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// FinalizedEvent is published on the embeddings.finalized topic once a job's
// result has been written back to the listing store.
type FinalizedEvent struct {
	JobID         int64  `json:"job_id"`
	BatchID       string `json:"batch_id"`
	Written       int64  `json:"written"`
	CorrelationID string `json:"correlation_id"`
}
