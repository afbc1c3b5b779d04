package models

import "time"

// Course is the directory view of a course offering.
type Course struct {
	ID             string `db:"id" json:"id"`
	Code           string `db:"code" json:"code"`
	Name           string `db:"name" json:"name"`
	Subject        string `db:"subject" json:"subject"`
	IsSingleton    bool   `db:"is_singleton" json:"is_singleton"`
	SectionsNeeded int    `db:"sections_needed" json:"sections_needed"`
	MaxStudents    int    `db:"max_students" json:"max_students"`
	Active         bool   `db:"active" json:"active"`
}

// SectionStatus is the enrollment state of a section.
type SectionStatus string

const (
	SectionStatusOpen   SectionStatus = "OPEN"
	SectionStatusFull   SectionStatus = "FULL"
	SectionStatusClosed SectionStatus = "CLOSED"
)

// CourseSection is one scheduled instance of a course.
type CourseSection struct {
	ID                string        `db:"id" json:"id"`
	CourseID          string        `db:"course_id" json:"course_id"`
	SectionNumber     int           `db:"section_number" json:"section_number"`
	CurrentEnrollment int           `db:"current_enrollment" json:"current_enrollment"`
	MaxEnrollment     int           `db:"max_enrollment" json:"max_enrollment"`
	Status            SectionStatus `db:"status" json:"status"`
	ScheduleYear      int           `db:"schedule_year" json:"schedule_year"`
	IsSingleton       bool          `db:"is_singleton" json:"is_singleton"`
	AssignedPeriod    *int          `db:"assigned_period" json:"assigned_period,omitempty"`
	TeacherID         string        `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomID            string        `db:"room_id" json:"room_id,omitempty"`
}

// HasSeat reports whether one more student fits.
func (s CourseSection) HasSeat() bool {
	return s.Status != SectionStatusClosed && s.CurrentEnrollment < s.MaxEnrollment
}

// StatusFor derives OPEN/FULL from enrollment while preserving CLOSED.
func (s CourseSection) StatusFor(enrollment int) SectionStatus {
	if s.Status == SectionStatusClosed {
		return SectionStatusClosed
	}
	if enrollment >= s.MaxEnrollment {
		return SectionStatusFull
	}
	return SectionStatusOpen
}

// CourseRequestStatus tracks a student's course request.
type CourseRequestStatus string

const (
	CourseRequestPending   CourseRequestStatus = "PENDING"
	CourseRequestScheduled CourseRequestStatus = "SCHEDULED"
)

// CourseRequest is one entry of the pending-course-request ledger.
type CourseRequest struct {
	ID             string              `db:"id" json:"id" csv:"-"`
	StudentID      string              `db:"student_id" json:"student_id" csv:"student_id"`
	CourseID       string              `db:"course_id" json:"course_id" csv:"course_id"`
	ScheduleYear   int                 `db:"schedule_year" json:"schedule_year" csv:"-"`
	PriorityWeight int                 `db:"priority_weight" json:"priority_weight" csv:"priority_weight"`
	Status         CourseRequestStatus `db:"status" json:"status" csv:"-"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at" csv:"-"`
}

// SectionBalanceReport summarises enrollment spread for one course.
type SectionBalanceReport struct {
	CourseID             string         `json:"course_id"`
	CourseName           string         `json:"course_name"`
	CourseCode           string         `json:"course_code"`
	TotalSections        int            `json:"total_sections"`
	AverageEnrollment    *float64       `json:"average_enrollment"`
	MinEnrollment        int            `json:"min_enrollment"`
	MaxEnrollment        int            `json:"max_enrollment"`
	Imbalance            int            `json:"imbalance"`
	IsBalanced           bool           `json:"is_balanced"`
	PerSectionEnrollment map[string]int `json:"per_section_enrollment"`
}

// BalanceResult reports what a rebalance run changed.
type BalanceResult struct {
	CourseID      string         `json:"course_id"`
	MovedStudents int            `json:"moved_students"`
	Before        map[string]int `json:"before"`
	After         map[string]int `json:"after"`
	Balanced      bool           `json:"balanced"`
}

// BalanceVerification lists courses whose section spread exceeds tolerance.
type BalanceVerification struct {
	ScheduleYear     int      `json:"schedule_year"`
	Tolerance        int      `json:"tolerance"`
	Balanced         bool     `json:"balanced"`
	UnbalancedCourse []string `json:"unbalanced_courses"`
}
