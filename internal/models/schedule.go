package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ScheduleType distinguishes period-based and alternating-day schedules.
type ScheduleType string

const (
	ScheduleTypeTraditional ScheduleType = "TRADITIONAL"
	ScheduleTypeBlock       ScheduleType = "BLOCK"
)

// ScheduleStatus represents lifecycle phases for generated schedules.
type ScheduleStatus string

const (
	ScheduleStatusDraft     ScheduleStatus = "DRAFT"
	ScheduleStatusPublished ScheduleStatus = "PUBLISHED"
	ScheduleStatusArchived  ScheduleStatus = "ARCHIVED"
)

// DayType tags block slots with the alternating day they meet on.
type DayType string

const (
	DayTypeOdd   DayType = "ODD"
	DayTypeEven  DayType = "EVEN"
	DayTypeDaily DayType = "DAILY"
)

// Valid reports whether d is a known day type.
func (d DayType) Valid() bool {
	switch d {
	case DayTypeOdd, DayTypeEven, DayTypeDaily:
		return true
	}
	return false
}

// Matches reports whether a slot tagged d meets on a day of type target. DAILY meets every day.
func (d DayType) Matches(target DayType) bool {
	return d == target || d == DayTypeDaily
}

// ClockTime is a time of day in minutes since midnight. JSON form is "HH:MM".
type ClockTime int

// Clock builds a ClockTime from hours and minutes.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock parses "HH:MM".
func ParseClock(raw string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	return Clock(h, m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns c shifted by minutes.
func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// MarshalJSON renders "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts "HH:MM" or a minute count.
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var minutes int
		if err := json.Unmarshal(data, &minutes); err != nil {
			return fmt.Errorf("clock time must be \"HH:MM\": %w", err)
		}
		*c = ClockTime(minutes)
		return nil
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeSlot is an immutable meeting time: weekday (1=Monday..7), start/end and period.
type TimeSlot struct {
	DayOfWeek    int       `json:"dayOfWeek" validate:"min=1,max=7"`
	StartTime    ClockTime `json:"startTime"`
	EndTime      ClockTime `json:"endTime"`
	PeriodNumber int       `json:"periodNumber" validate:"min=0"`
}

// Overlaps reports whether both slots meet on the same day with intersecting times.
func (t TimeSlot) Overlaps(other TimeSlot) bool {
	if t.DayOfWeek == 0 || t.DayOfWeek != other.DayOfWeek {
		return false
	}
	return t.StartTime < other.EndTime && other.StartTime < t.EndTime
}

// ScheduleSlot is one course meeting owned by a schedule. Empty teacher or room means unassigned.
type ScheduleSlot struct {
	ID           string         `db:"id" json:"id"`
	ScheduleID   string         `db:"schedule_id" json:"schedule_id"`
	CourseID     string         `db:"course_id" json:"course_id"`
	SectionID    string         `db:"section_id" json:"section_id,omitempty"`
	TeacherID    string         `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomID       string         `db:"room_id" json:"room_id,omitempty"`
	DayOfWeek    int            `db:"day_of_week" json:"day_of_week"`
	StartTime    ClockTime      `db:"start_minute" json:"start_time"`
	EndTime      ClockTime      `db:"end_minute" json:"end_time"`
	PeriodNumber int            `db:"period_number" json:"period_number"`
	DayType      DayType        `db:"day_type" json:"day_type,omitempty"`
	StudentIDs   pq.StringArray `db:"student_ids" json:"student_ids"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// TimeSlot returns the slot's meeting time.
func (s ScheduleSlot) TimeSlot() TimeSlot {
	return TimeSlot{DayOfWeek: s.DayOfWeek, StartTime: s.StartTime, EndTime: s.EndTime, PeriodNumber: s.PeriodNumber}
}

// WithTimeSlot returns a copy of s moved to ts.
func (s ScheduleSlot) WithTimeSlot(ts TimeSlot) ScheduleSlot {
	s.DayOfWeek = ts.DayOfWeek
	s.StartTime = ts.StartTime
	s.EndTime = ts.EndTime
	s.PeriodNumber = ts.PeriodNumber
	return s
}

// DurationMinutes is the slot length.
func (s ScheduleSlot) DurationMinutes() int {
	return int(s.EndTime - s.StartTime)
}

// HasStudent reports whether studentID attends the slot.
func (s ScheduleSlot) HasStudent(studentID string) bool {
	for _, id := range s.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Schedule is the aggregate root owning its slot arena.
type Schedule struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	ScheduleType   ScheduleType   `db:"schedule_type" json:"schedule_type"`
	Status         ScheduleStatus `db:"status" json:"status"`
	ScheduleYear   int            `db:"schedule_year" json:"schedule_year"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
	EndDate        time.Time      `db:"end_date" json:"end_date"`
	TotalConflicts int            `db:"total_conflicts" json:"total_conflicts"`
	QualityScore   float64        `db:"quality_score" json:"quality_score"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	Slots          []ScheduleSlot `db:"-" json:"slots,omitempty"`
}

// SlotIndex maps slot id to its position in Slots.
func (s *Schedule) SlotIndex() map[string]int {
	index := make(map[string]int, len(s.Slots))
	for i, slot := range s.Slots {
		if slot.ID != "" {
			index[slot.ID] = i
		}
	}
	return index
}
