package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

const dateLayout = "2006-01-02"

type blockScheduler interface {
	GetDayType(date time.Time) models.DayType
	GenerateBlockSchedule(ctx context.Context, req dto.GenerateScheduleRequest) (*models.Schedule, error)
	AssignCoursesToDays(ctx context.Context, scheduleID, studentID string, oddCourses, evenCourses []string) ([]models.ScheduleSlot, error)
	GetCoursesForDayType(ctx context.Context, studentID string, dayType models.DayType) ([]models.Course, error)
	GetSlotsForDayType(ctx context.Context, scheduleID string, dayType models.DayType) ([]models.ScheduleSlot, error)
}

// BlockScheduleHandler exposes alternating-day (A/B) block scheduling.
type BlockScheduleHandler struct {
	service blockScheduler
	now     func() time.Time
}

// NewBlockScheduleHandler constructs the handler.
func NewBlockScheduleHandler(svc *service.BlockScheduleService) *BlockScheduleHandler {
	return &BlockScheduleHandler{service: svc, now: time.Now}
}

// DayType godoc
// @Summary ODD or EVEN day type of a date
// @Tags BlockSchedule
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /block/day-type [get]
func (h *BlockScheduleHandler) DayType(c *gin.Context) {
	date := h.now()
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, bindError(err, "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	response.OK(c, dto.DayTypeResponse{Date: date.Format(dateLayout), DayType: h.service.GetDayType(date)})
}

// Generate godoc
// @Summary Generate a block schedule
// @Tags BlockSchedule
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generation request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /block/schedules [post]
func (h *BlockScheduleHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid block schedule payload"))
		return
	}
	schedule, err := h.service.GenerateBlockSchedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// AssignDays godoc
// @Summary Split a student's courses across ODD and EVEN days
// @Tags BlockSchedule
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param studentId path string true "Student ID"
// @Param payload body dto.BlockDaysRequest true "Course split"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/{id}/students/{studentId}/block-days [put]
func (h *BlockScheduleHandler) AssignDays(c *gin.Context) {
	var req dto.BlockDaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid block days payload"))
		return
	}
	slots, err := h.service.AssignCoursesToDays(c.Request.Context(), c.Param("id"), c.Param("studentId"), req.OddCourseIDs, req.EvenCourseIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slots)
}

// StudentCourses godoc
// @Summary Courses a student attends on a day type
// @Tags BlockSchedule
// @Produce json
// @Param id path string true "Student ID"
// @Param dayType query string true "ODD, EVEN or DAILY"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/block-courses [get]
func (h *BlockScheduleHandler) StudentCourses(c *gin.Context) {
	dayType, err := dayTypeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	courses, err := h.service.GetCoursesForDayType(c.Request.Context(), c.Param("id"), dayType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, courses)
}

// ScheduleSlots godoc
// @Summary Slots of a schedule meeting on a day type
// @Tags BlockSchedule
// @Produce json
// @Param id path string true "Schedule ID"
// @Param dayType query string true "ODD, EVEN or DAILY"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/block-slots [get]
func (h *BlockScheduleHandler) ScheduleSlots(c *gin.Context) {
	dayType, err := dayTypeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	slots, err := h.service.GetSlotsForDayType(c.Request.Context(), c.Param("id"), dayType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slots)
}
