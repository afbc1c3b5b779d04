package models

import "time"

// GenerationJobStatus tracks an asynchronous generation run.
type GenerationJobStatus string

const (
	GenerationQueued    GenerationJobStatus = "QUEUED"
	GenerationRunning   GenerationJobStatus = "RUNNING"
	GenerationCompleted GenerationJobStatus = "COMPLETED"
	GenerationFailed    GenerationJobStatus = "FAILED"
)

// GenerationJob is the progress record of a queued schedule generation.
type GenerationJob struct {
	ID         string              `json:"id"`
	Status     GenerationJobStatus `json:"status"`
	Percent    int                 `json:"percent"`
	Message    string              `json:"message,omitempty"`
	ScheduleID string              `json:"schedule_id,omitempty"`
	Error      string              `json:"error,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Notification is published to the notification sink.
type Notification struct {
	Type      string            `json:"type"`
	StudentID string            `json:"student_id,omitempty"`
	Subject   string            `json:"subject"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
