package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

type reportRenderer interface {
	HealthReport(ctx context.Context, scheduleID string) (*dto.ReportResponse, error)
	HeatmapCSV(ctx context.Context, year int) (*dto.ReportResponse, error)
	Download(token string) (*service.ReportDownload, error)
}

// ReportHandler exposes rendered health and heatmap reports.
type ReportHandler struct {
	reports reportRenderer
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// HealthReport godoc
// @Summary Render a schedule health PDF
// @Tags Reports
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id}/reports/health [post]
func (h *ReportHandler) HealthReport(c *gin.Context) {
	report, err := h.reports.HealthReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// HeatmapReport godoc
// @Summary Render the conflict heatmap as CSV
// @Tags Reports
// @Produce json
// @Param year path int true "Schedule year"
// @Success 201 {object} response.Envelope
// @Router /conflict-matrix/{year}/reports/heatmap [post]
func (h *ReportHandler) HeatmapReport(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.reports.HeatmapCSV(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// Download godoc
// @Summary Download a rendered report
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	file, err := h.reports.Download(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
