package types

import "time"

// TaskState is the lifecycle state of a RetryTask.
type TaskState string

const (
	TaskPending        TaskState = "pending"
	TaskProcessing     TaskState = "processing"
	TaskSuccess        TaskState = "success"
	TaskFailed         TaskState = "failed"
	TaskMaxRetries     TaskState = "max_retries_reached"
	TaskProductDeleted TaskState = "product_deleted"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskSuccess, TaskMaxRetries, TaskProductDeleted:
		return true
	}
	return false
}

// RetryTask records one product missing from the current week's snapshot and
// tracks the attempts to re-collect it.
type RetryTask struct {
	ID         int64
	Site       string
	ProductNo  string
	CategoryID string
	Year       int
	Week       int
	State      TaskState
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
