package resilience

import (
	"time"

	"github.com/google/uuid"

	"github.com/hubizz/hubizz/internal/model"
)

// Error types recorded on dead letters.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

const (
	dlqBaseDelay = time.Minute
	dlqMaxDelay  = time.Hour
)

// DLQEntry is a job that exhausted its attempts and waits for a manual or scheduled retry.
type DLQEntry struct {
	ID           string    `json:"id"`
	Job          model.Job `json:"job"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter selects dead letters.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	// DueOnly restricts the result to retryable entries whose next_retry_at has passed.
	DueOnly bool `json:"due_only,omitempty"`
	Limit   int  `json:"limit,omitempty"`
}

// NewDLQEntry records the final failure of job. Permanent failures get no retries.
func NewDLQEntry(job model.Job, err error, maxRetries int, now time.Time) DLQEntry {
	e := DLQEntry{
		ID:           uuid.NewString(),
		Job:          job,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if e.ErrorType == ErrorTypePermanent {
		e.MaxRetries = 0
	}
	e.NextRetryAt = now.Add(e.Backoff())
	return e
}

// CanRetry reports whether the entry has retries left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Backoff is the delay before the next retry: one minute doubling per retry, capped at an hour.
func (e *DLQEntry) Backoff() time.Duration {
	d := dlqBaseDelay << e.RetryCount
	if d <= 0 || d > dlqMaxDelay {
		return dlqMaxDelay
	}
	return d
}

// ClassifyError labels err for the dead letter queue.
func ClassifyError(err error) string {
	if IsPermanent(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}
