package models

import "time"

// WaitlistStatus is the lifecycle of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistActive   WaitlistStatus = "ACTIVE"
	WaitlistEnrolled WaitlistStatus = "ENROLLED"
	WaitlistRemoved  WaitlistStatus = "REMOVED"
)

// WaitlistEntry queues a student for a full course.
type WaitlistEntry struct {
	ID               string         `db:"id" json:"id"`
	StudentID        string         `db:"student_id" json:"student_id"`
	CourseID         string         `db:"course_id" json:"course_id"`
	Position         int            `db:"position" json:"position"`
	PriorityWeight   int            `db:"priority_weight" json:"priority_weight"`
	Status           WaitlistStatus `db:"status" json:"status"`
	AddedAt          time.Time      `db:"added_at" json:"added_at"`
	EnrolledAt       *time.Time     `db:"enrolled_at" json:"enrolled_at,omitempty"`
	NotificationSent bool           `db:"notification_sent" json:"notification_sent"`
}
