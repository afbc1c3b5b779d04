package dto

import "github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"

// GenerateScheduleRequest instructs the generator to build a schedule for a year.
type GenerateScheduleRequest struct {
	Name         string              `json:"name" validate:"required,max=120"`
	ScheduleYear int                 `json:"scheduleYear" validate:"required,min=2000,max=2100"`
	ScheduleType models.ScheduleType `json:"scheduleType" validate:"required,oneof=TRADITIONAL BLOCK"`
	CourseIDs    []string            `json:"courseIds" validate:"required,min=1,dive,required"`
	TeacherIDs   []string            `json:"teacherIds" validate:"omitempty,dive,required"`
	RoomIDs      []string            `json:"roomIds" validate:"omitempty,dive,required"`
	StudentIDs   []string            `json:"studentIds" validate:"omitempty,dive,required"`
	Days         []int               `json:"days" validate:"omitempty,dive,min=1,max=7"`
}

// MoveSlotRequest relocates a slot to a new meeting time.
type MoveSlotRequest struct {
	DayOfWeek    int    `json:"dayOfWeek" validate:"required,min=1,max=7"`
	StartTime    string `json:"startTime" validate:"required"`
	EndTime      string `json:"endTime" validate:"required"`
	PeriodNumber int    `json:"periodNumber" validate:"omitempty,min=0"`
}

// UpdateConflictRequest adds delta students to a course pair.
type UpdateConflictRequest struct {
	Course1ID string `json:"course1Id" validate:"required"`
	Course2ID string `json:"course2Id" validate:"required,nefield=Course1ID"`
	Delta     int    `json:"delta" validate:"required"`
}

// BalanceSectionsRequest overrides the configured tolerance when set.
type BalanceSectionsRequest struct {
	Tolerance *int `json:"tolerance" validate:"omitempty,min=0"`
}

// WaitlistRequest queues a student for a course.
type WaitlistRequest struct {
	StudentID      string `json:"studentId" validate:"required"`
	PriorityWeight int    `json:"priorityWeight" validate:"omitempty,min=0"`
}

// PlanningPeriodRequest sets a department's shared planning period.
type PlanningPeriodRequest struct {
	Period int `json:"period" validate:"required,min=1"`
}

// PlanningRecommendationRequest names the teachers that should share a free period.
type PlanningRecommendationRequest struct {
	TeacherIDs []string `json:"teacherIds" validate:"omitempty,dive,required"`
}

// EnsurePlanningRequest sets the daily free-period minimum.
type EnsurePlanningRequest struct {
	MinPeriods int `json:"minPeriods" validate:"min=0"`
}

// BlockDaysRequest splits a student's courses across ODD and EVEN days.
type BlockDaysRequest struct {
	OddCourseIDs  []string `json:"oddCourseIds"`
	EvenCourseIDs []string `json:"evenCourseIds"`
}

// DayTypeResponse answers the block day-type lookup.
type DayTypeResponse struct {
	Date    string         `json:"date"`
	DayType models.DayType `json:"dayType"`
}

// HealthScoreResponse carries the overall score only.
type HealthScoreResponse struct {
	ScheduleID string  `json:"scheduleId"`
	Score      float64 `json:"score"`
}

// AcceptableResponse reports whether a schedule passes the health threshold.
type AcceptableResponse struct {
	ScheduleID string  `json:"scheduleId"`
	Acceptable bool    `json:"acceptable"`
	Threshold  float64 `json:"threshold"`
}
