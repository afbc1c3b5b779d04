package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

type conflictDetector interface {
	DetectConflicts(ctx context.Context, scheduleID string) []models.Conflict
	DetectAllConflicts(ctx context.Context, scheduleID string) []string
	CheckSlotConflicts(ctx context.Context, slotID string) []models.Conflict
	CheckSlotMove(ctx context.Context, slotID string, target models.TimeSlot) ([]models.Conflict, error)
	MoveSlot(ctx context.Context, slotID string, target models.TimeSlot) (*models.ScheduleSlot, error)
}

// ConflictHandler exposes hard-conflict detection and slot moves.
type ConflictHandler struct {
	service conflictDetector
}

// NewConflictHandler constructs a conflict handler.
func NewConflictHandler(svc *service.ConflictDetectorService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// ScheduleConflicts godoc
// @Summary List schedule conflicts
// @Description Teacher and room double-bookings in a schedule
// @Tags Conflicts
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/conflicts [get]
func (h *ConflictHandler) ScheduleConflicts(c *gin.Context) {
	conflicts := h.service.DetectConflicts(c.Request.Context(), c.Param("id"))
	response.OK(c, conflicts, map[string]interface{}{"total": len(conflicts)})
}

// ConflictReport godoc
// @Summary Readable conflict report
// @Tags Conflicts
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/conflicts/report [get]
func (h *ConflictHandler) ConflictReport(c *gin.Context) {
	lines := h.service.DetectAllConflicts(c.Request.Context(), c.Param("id"))
	response.OK(c, lines, map[string]interface{}{"total": len(lines)})
}

// SlotConflicts godoc
// @Summary Conflicts involving one slot
// @Tags Conflicts
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/conflicts [get]
func (h *ConflictHandler) SlotConflicts(c *gin.Context) {
	response.OK(c, h.service.CheckSlotConflicts(c.Request.Context(), c.Param("id")))
}

// MoveCheck godoc
// @Summary Preview a slot move
// @Description Returns the conflicts the slot would have at the candidate time
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.MoveSlotRequest true "Candidate time"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slots/{id}/move-check [post]
func (h *ConflictHandler) MoveCheck(c *gin.Context) {
	target, err := bindTimeSlot(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	conflicts, err := h.service.CheckSlotMove(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, conflicts, map[string]interface{}{"clear": len(conflicts) == 0})
}

// MoveSlot godoc
// @Summary Move a slot
// @Description Applies the move only when it introduces no new conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.MoveSlotRequest true "Target time"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id}/time [put]
func (h *ConflictHandler) MoveSlot(c *gin.Context) {
	target, err := bindTimeSlot(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	slot, err := h.service.MoveSlot(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slot)
}

func bindTimeSlot(c *gin.Context) (models.TimeSlot, error) {
	var req dto.MoveSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return models.TimeSlot{}, bindError(err, "invalid move payload")
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return models.TimeSlot{}, bindError(err, "invalid startTime")
	}
	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		return models.TimeSlot{}, bindError(err, "invalid endTime")
	}
	return models.TimeSlot{
		DayOfWeek:    req.DayOfWeek,
		StartTime:    start,
		EndTime:      end,
		PeriodNumber: req.PeriodNumber,
	}, nil
}
