package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

type scheduleGenerator interface {
	Generate(ctx context.Context, req dto.GenerateScheduleRequest, progress service.ProgressFunc) (*models.Schedule, error)
	Enqueue(ctx context.Context, req dto.GenerateScheduleRequest) (*models.GenerationJob, error)
	Job(id string) (*models.GenerationJob, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
}

type progressStep struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ScheduleGeneratorHandler exposes schedule generation endpoints.
type ScheduleGeneratorHandler struct {
	service scheduleGenerator
}

// NewScheduleGeneratorHandler builds a new handler instance.
func NewScheduleGeneratorHandler(svc *service.ScheduleGeneratorService) *ScheduleGeneratorHandler {
	return &ScheduleGeneratorHandler{service: svc}
}

// Generate godoc
// @Summary Generate a schedule
// @Description Runs generation in the request and returns the schedule with its progress trail
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generation request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules/generate [post]
func (h *ScheduleGeneratorHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid generator payload"))
		return
	}
	steps := make([]progressStep, 0, 8)
	schedule, err := h.service.Generate(c.Request.Context(), req, func(percent int, message string) {
		steps = append(steps, progressStep{Percent: percent, Message: message})
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, schedule, map[string]interface{}{"progress": steps, "requestedBy": requesterID(c)})
}

// GenerateAsync godoc
// @Summary Queue schedule generation
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Generation request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/generate/async [post]
func (h *ScheduleGeneratorHandler) GenerateAsync(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid generator payload"))
		return
	}
	job, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Job godoc
// @Summary Generation job progress
// @Tags Scheduler
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/jobs/{id} [get]
func (h *ScheduleGeneratorHandler) Job(c *gin.Context) {
	job, err := h.service.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}

// Get godoc
// @Summary Get a schedule with its slots
// @Tags Scheduler
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleGeneratorHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, schedule)
}
