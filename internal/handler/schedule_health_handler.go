package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

type healthScorer interface {
	LoadSchedule(ctx context.Context, id string) (*models.Schedule, error)
	CalculateHealthMetrics(ctx context.Context, schedule *models.Schedule) (*models.HealthMetrics, error)
	CalculateHealthScore(ctx context.Context, schedule *models.Schedule) (float64, error)
	IsScheduleAcceptable(ctx context.Context, schedule *models.Schedule) bool
	GetHealthSummary(ctx context.Context, schedule *models.Schedule) (string, error)
	Threshold() float64
}

// ScheduleHealthHandler exposes the composite schedule health score.
type ScheduleHealthHandler struct {
	service healthScorer
}

// NewScheduleHealthHandler constructs the handler.
func NewScheduleHealthHandler(svc *service.ScheduleHealthService) *ScheduleHealthHandler {
	return &ScheduleHealthHandler{service: svc}
}

func (h *ScheduleHealthHandler) schedule(c *gin.Context) (*models.Schedule, bool) {
	schedule, err := h.service.LoadSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return schedule, true
}

// Metrics godoc
// @Summary Full health metrics
// @Tags Health
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id}/health [get]
func (h *ScheduleHealthHandler) Metrics(c *gin.Context) {
	schedule, ok := h.schedule(c)
	if !ok {
		return
	}
	metrics, err := h.service.CalculateHealthMetrics(c.Request.Context(), schedule)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, metrics, map[string]interface{}{"grade": service.HealthGrade(metrics.OverallScore)})
}

// Score godoc
// @Summary Overall health score
// @Tags Health
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/health/score [get]
func (h *ScheduleHealthHandler) Score(c *gin.Context) {
	schedule, ok := h.schedule(c)
	if !ok {
		return
	}
	score, err := h.service.CalculateHealthScore(c.Request.Context(), schedule)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.HealthScoreResponse{ScheduleID: schedule.ID, Score: score})
}

// Acceptable godoc
// @Summary Whether the schedule passes the health threshold
// @Tags Health
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/health/acceptable [get]
func (h *ScheduleHealthHandler) Acceptable(c *gin.Context) {
	schedule, ok := h.schedule(c)
	if !ok {
		return
	}
	response.OK(c, dto.AcceptableResponse{
		ScheduleID: schedule.ID,
		Acceptable: h.service.IsScheduleAcceptable(c.Request.Context(), schedule),
		Threshold:  h.service.Threshold(),
	})
}

// Summary godoc
// @Summary Plain-text health summary
// @Tags Health
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/health/summary [get]
func (h *ScheduleHealthHandler) Summary(c *gin.Context) {
	schedule, ok := h.schedule(c)
	if !ok {
		return
	}
	summary, err := h.service.GetHealthSummary(c.Request.Context(), schedule)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"scheduleId": schedule.ID, "summary": summary})
}
