package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func TestHealthReportCreated(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/schedules/sched-1/reports/health", "", string(models.RoleViewer))
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"url":"/api/v1/reports/pdf-token"`)
	assert.Equal(t, "sched-1", api.reports.scheduleID)
}

func TestHeatmapReportValidatesYear(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/conflict-matrix/20x5/reports/heatmap", "", string(models.RoleViewer))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.do(http.MethodPost, "/conflict-matrix/2025/reports/heatmap", "", string(models.RoleViewer))
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"fileName":"conflict_heatmap_2025.csv"`)
}

func TestDownloadStreamsAttachment(t *testing.T) {
	api := newTestAPI()
	api.reports.download = []byte("%PDF-1.3")

	resp := api.do(http.MethodGet, "/reports/pdf-token", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="health.pdf"`, resp.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", resp.Header().Get("Cache-Control"))
	assert.Equal(t, "%PDF-1.3", resp.Body.String())
}

func TestDownloadBadTokenForbidden(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodGet, "/reports/forged", "", "")
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

type stubReportRenderer struct {
	scheduleID string
	download   []byte
}

func (s *stubReportRenderer) HealthReport(ctx context.Context, scheduleID string) (*dto.ReportResponse, error) {
	s.scheduleID = scheduleID
	return &dto.ReportResponse{FileName: "health.pdf", ContentType: "application/pdf", Token: "pdf-token", URL: "/api/v1/reports/pdf-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubReportRenderer) HeatmapCSV(ctx context.Context, year int) (*dto.ReportResponse, error) {
	return &dto.ReportResponse{FileName: "conflict_heatmap_2025.csv", ContentType: "text/csv", Token: "csv-token"}, nil
}

func (s *stubReportRenderer) Download(token string) (*service.ReportDownload, error) {
	if token == "forged" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	contentType := "text/csv"
	name := "heatmap.csv"
	if len(s.download) > 4 && string(s.download[:4]) == "%PDF" {
		contentType, name = "application/pdf", "health.pdf"
	}
	return &service.ReportDownload{Filename: name, ContentType: contentType, Data: s.download}, nil
}
