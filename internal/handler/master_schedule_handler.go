package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

type masterScheduler interface {
	IdentifySingletons(ctx context.Context, year int) ([]models.CourseSection, error)
	ScheduleSingletons(ctx context.Context, year int) ([]models.CourseSection, error)
	AreSingletonsConflictFree(ctx context.Context, year int) (bool, error)
	VerifySectionBalance(ctx context.Context, year, tolerance int) (*models.BalanceVerification, error)
	BalanceSections(ctx context.Context, courseID string, tolerance int) (*models.BalanceResult, error)
	GetSectionBalanceReport(ctx context.Context, courseID string) (*models.SectionBalanceReport, error)
	AddToWaitlist(ctx context.Context, studentID, courseID string, priorityWeight int) (*models.WaitlistEntry, error)
	EnrollFromWaitlist(ctx context.Context, sectionID string) (bool, error)
	ProcessWaitlist(ctx context.Context, sectionID string) (int, error)
	CanEnrollStudent(ctx context.Context, studentID, sectionID string) (bool, error)
	AssignCommonPlanningTime(ctx context.Context, department string, period int) (int, error)
	RecommendPlanningPeriods(ctx context.Context, scheduleID string, teacherIDs []string) ([]int, error)
	EnsureMinimumPlanningTime(ctx context.Context, scheduleID string, minPeriods int) ([]string, error)
}

// MasterScheduleHandlerConfig supplies defaults for optional request fields.
type MasterScheduleHandlerConfig struct {
	BalanceTolerance   int
	MinPlanningPeriods int
}

// MasterScheduleHandler exposes singleton placement, section balancing, waitlists and planning time.
type MasterScheduleHandler struct {
	service masterScheduler
	cfg     MasterScheduleHandlerConfig
}

// NewMasterScheduleHandler constructs the handler.
func NewMasterScheduleHandler(svc *service.MasterScheduleService, cfg MasterScheduleHandlerConfig) *MasterScheduleHandler {
	return &MasterScheduleHandler{service: svc, cfg: cfg}
}

// IdentifySingletons godoc
// @Summary Identify singleton sections
// @Tags MasterSchedule
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /master/{year}/singletons/identify [post]
func (h *MasterScheduleHandler) IdentifySingletons(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	sections, err := h.service.IdentifySingletons(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sections, map[string]interface{}{"total": len(sections)})
}

// ScheduleSingletons godoc
// @Summary Assign singleton sections to periods
// @Tags MasterSchedule
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /master/{year}/singletons/schedule [post]
func (h *MasterScheduleHandler) ScheduleSingletons(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	sections, err := h.service.ScheduleSingletons(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sections)
}

// SingletonsConflictFree godoc
// @Summary Verify singleton placement
// @Tags MasterSchedule
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /master/{year}/singletons/conflict-free [get]
func (h *MasterScheduleHandler) SingletonsConflictFree(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok, err := h.service.AreSingletonsConflictFree(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"scheduleYear": year, "conflictFree": ok})
}

// VerifyBalance godoc
// @Summary Verify section balance for a year
// @Tags MasterSchedule
// @Produce json
// @Param year path int true "Schedule year"
// @Param tolerance query int false "Allowed enrollment spread"
// @Success 200 {object} response.Envelope
// @Router /master/{year}/balance/verify [get]
func (h *MasterScheduleHandler) VerifyBalance(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tolerance, err := intQuery(c, "tolerance", h.cfg.BalanceTolerance)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.VerifySectionBalance(c.Request.Context(), year, tolerance)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// BalanceSections godoc
// @Summary Rebalance a course's sections
// @Tags MasterSchedule
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.BalanceSectionsRequest false "Tolerance override"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{id}/balance [post]
func (h *MasterScheduleHandler) BalanceSections(c *gin.Context) {
	var req dto.BalanceSectionsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid balance payload"))
			return
		}
	}
	tolerance := h.cfg.BalanceTolerance
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}
	result, err := h.service.BalanceSections(c.Request.Context(), c.Param("id"), tolerance)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// BalanceReport godoc
// @Summary Section balance report for a course
// @Tags MasterSchedule
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/balance [get]
func (h *MasterScheduleHandler) BalanceReport(c *gin.Context) {
	report, err := h.service.GetSectionBalanceReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// AddToWaitlist godoc
// @Summary Waitlist a student for a course
// @Tags MasterSchedule
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.WaitlistRequest true "Waitlist payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/waitlist [post]
func (h *MasterScheduleHandler) AddToWaitlist(c *gin.Context) {
	var req dto.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid waitlist payload"))
		return
	}
	entry, err := h.service.AddToWaitlist(c.Request.Context(), req.StudentID, c.Param("id"), req.PriorityWeight)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// EnrollFromWaitlist godoc
// @Summary Promote the top eligible waitlist entry
// @Tags MasterSchedule
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist/enroll [post]
func (h *MasterScheduleHandler) EnrollFromWaitlist(c *gin.Context) {
	enrolled, err := h.service.EnrollFromWaitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"sectionId": c.Param("id"), "enrolled": enrolled})
}

// ProcessWaitlist godoc
// @Summary Fill a section from its waitlist
// @Tags MasterSchedule
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist/process [post]
func (h *MasterScheduleHandler) ProcessWaitlist(c *gin.Context) {
	promoted, err := h.service.ProcessWaitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"sectionId": c.Param("id"), "promoted": promoted})
}

// Eligibility godoc
// @Summary Check whether a student can enroll in a section
// @Tags MasterSchedule
// @Produce json
// @Param id path string true "Section ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/eligibility/{studentId} [get]
func (h *MasterScheduleHandler) Eligibility(c *gin.Context) {
	eligible, err := h.service.CanEnrollStudent(c.Request.Context(), c.Param("studentId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"sectionId": c.Param("id"), "studentId": c.Param("studentId"), "eligible": eligible})
}

// AssignPlanningPeriod godoc
// @Summary Give a department a common planning period
// @Tags MasterSchedule
// @Accept json
// @Produce json
// @Param department path string true "Department"
// @Param payload body dto.PlanningPeriodRequest true "Period"
// @Success 200 {object} response.Envelope
// @Router /departments/{department}/planning-period [post]
func (h *MasterScheduleHandler) AssignPlanningPeriod(c *gin.Context) {
	var req dto.PlanningPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid planning payload"))
		return
	}
	updated, err := h.service.AssignCommonPlanningTime(c.Request.Context(), c.Param("department"), req.Period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"department": c.Param("department"), "period": req.Period, "teachers": updated})
}

// RecommendPlanning godoc
// @Summary Recommend shared planning periods
// @Tags MasterSchedule
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.PlanningRecommendationRequest true "Teachers"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/planning/recommendations [post]
func (h *MasterScheduleHandler) RecommendPlanning(c *gin.Context) {
	var req dto.PlanningRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid recommendation payload"))
		return
	}
	periods, err := h.service.RecommendPlanningPeriods(c.Request.Context(), c.Param("id"), req.TeacherIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, periods)
}

// EnsurePlanning godoc
// @Summary Flag teachers short of free periods
// @Tags MasterSchedule
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.EnsurePlanningRequest false "Minimum free periods"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/planning/ensure [post]
func (h *MasterScheduleHandler) EnsurePlanning(c *gin.Context) {
	req := dto.EnsurePlanningRequest{MinPeriods: h.cfg.MinPlanningPeriods}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid planning payload"))
			return
		}
	}
	flagged, err := h.service.EnsureMinimumPlanningTime(c.Request.Context(), c.Param("id"), req.MinPeriods)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, flagged, map[string]interface{}{"minPeriods": req.MinPeriods})
}
