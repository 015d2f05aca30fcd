package types

import "time"

// Queue is a routing lane for scheduled tasks. Lanes are consumed
// independently so slow maintenance work cannot starve monitoring.
type Queue string

const (
	QueueProcessing  Queue = "processing"
	QueueMaintenance Queue = "maintenance"
	QueueAnalytics   Queue = "analytics"
	QueueMonitoring  Queue = "monitoring"
)

// Subject returns the NATS subject tasks for this queue are dispatched on.
func (q Queue) Subject() string {
	return "tasks." + string(q)
}

// Queues lists every routing lane, in dispatch-subject order.
func Queues() []Queue {
	return []Queue{QueueProcessing, QueueMaintenance, QueueAnalytics, QueueMonitoring}
}

// Possible run statuses
const (
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)

// Envelope is the message published by the scheduler when a task comes due.
type Envelope struct {
	Name    string    `json:"name"`
	Queue   Queue     `json:"queue"`
	FiredAt time.Time `json:"fired_at"`
}

// TaskRun records a single invocation of a scheduled task handler.
// Records are append-only: once written to the run store they are
// never mutated.
type TaskRun struct {
	ID         string            `json:"id"`
	TaskName   string            `json:"task_name"`
	Queue      Queue             `json:"queue"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Duration is the wall-clock time the run took.
func (r TaskRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
