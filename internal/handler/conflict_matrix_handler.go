package handler

import (
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

const (
	defaultHighConflictThreshold = 10
	defaultPairThreshold         = 1
)

type conflictMatrix interface {
	GenerateConflictMatrix(ctx context.Context, year int) (int, error)
	ClearConflictMatrix(ctx context.Context, year int) (int64, error)
	UpdateConflict(ctx context.Context, year int, courseA, courseB string, delta int) (*models.ConflictMatrixEntry, error)
	GetConflictHeatmap(ctx context.Context, year int) map[string]map[string]int
	GetSingletonConflicts(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error)
	GetHighConflicts(ctx context.Context, year, threshold int) ([]models.ConflictMatrixEntry, error)
	GetConflictsForCourse(ctx context.Context, year int, courseID string) ([]models.ConflictMatrixEntry, error)
	HasConflict(ctx context.Context, year int, courseA, courseB string, threshold int) (bool, error)
	CalculateConflictPercentage(ctx context.Context, year int, courseA, courseB string) (float64, error)
	ImportRequests(ctx context.Context, year int, r io.Reader) (int, error)
}

// ConflictMatrixHandler exposes the course-pair conflict matrix.
type ConflictMatrixHandler struct {
	service conflictMatrix
}

// NewConflictMatrixHandler constructs the handler.
func NewConflictMatrixHandler(svc *service.ConflictMatrixService) *ConflictMatrixHandler {
	return &ConflictMatrixHandler{service: svc}
}

// Generate godoc
// @Summary Rebuild the conflict matrix
// @Description Replaces every entry of the year from the course request ledger
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year}/generate [post]
func (h *ConflictMatrixHandler) Generate(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.GenerateConflictMatrix(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"scheduleYear": year, "entries": entries})
}

// Clear godoc
// @Summary Delete the conflict matrix of a year
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year} [delete]
func (h *ConflictMatrixHandler) Clear(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	removed, err := h.service.ClearConflictMatrix(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"scheduleYear": year, "removed": removed})
}

// UpdatePair godoc
// @Summary Adjust one course pair
// @Tags ConflictMatrix
// @Accept json
// @Produce json
// @Param year path int true "Schedule year"
// @Param payload body dto.UpdateConflictRequest true "Pair delta"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /conflict-matrix/{year}/pairs [post]
func (h *ConflictMatrixHandler) UpdatePair(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid conflict payload"))
		return
	}
	entry, err := h.service.UpdateConflict(c.Request.Context(), year, req.Course1ID, req.Course2ID, req.Delta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entry)
}

// Heatmap godoc
// @Summary Symmetric course-pair heatmap
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year}/heatmap [get]
func (h *ConflictMatrixHandler) Heatmap(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.service.GetConflictHeatmap(c.Request.Context(), year))
}

// Singletons godoc
// @Summary Pairs involving a singleton course
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year}/singletons [get]
func (h *ConflictMatrixHandler) Singletons(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.GetSingletonConflicts(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// High godoc
// @Summary Pairs at or above a threshold
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Param threshold query int false "Minimum shared students" default(10)
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year}/high [get]
func (h *ConflictMatrixHandler) High(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	threshold, err := intQuery(c, "threshold", defaultHighConflictThreshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.GetHighConflicts(c.Request.Context(), year, threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries, map[string]interface{}{"threshold": threshold})
}

// Check godoc
// @Summary Check one course pair
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Param course1 query string true "First course"
// @Param course2 query string true "Second course"
// @Param threshold query int false "Minimum shared students" default(1)
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year}/check [get]
func (h *ConflictMatrixHandler) Check(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	course1, course2 := strings.TrimSpace(c.Query("course1")), strings.TrimSpace(c.Query("course2"))
	if course1 == "" || course2 == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course1 and course2 required"))
		return
	}
	threshold, err := intQuery(c, "threshold", defaultPairThreshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	conflicting, err := h.service.HasConflict(ctx, year, course1, course2, threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	pct, err := h.service.CalculateConflictPercentage(ctx, year, course1, course2)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"course1Id":   course1,
		"course2Id":   course2,
		"hasConflict": conflicting,
		"percentage":  pct,
		"threshold":   threshold,
	})
}

// CourseConflicts godoc
// @Summary Pairs involving one course
// @Tags ConflictMatrix
// @Produce json
// @Param year path int true "Schedule year"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /conflict-matrix/{year}/courses/{courseId} [get]
func (h *ConflictMatrixHandler) CourseConflicts(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.GetConflictsForCourse(c.Request.Context(), year, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// ImportRequests godoc
// @Summary Import course requests from CSV
// @Description Accepts a multipart "file" field or a raw text/csv body with student_id,course_id[,priority]
// @Tags ConflictMatrix
// @Accept mpfd
// @Produce json
// @Param year path int true "Schedule year"
// @Param file formData file false "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /conflict-matrix/{year}/requests/import [post]
func (h *ConflictMatrixHandler) ImportRequests(c *gin.Context) {
	year, err := yearParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			response.Error(c, bindError(err, "file field required"))
			return
		}
		file, err := header.Open()
		if err != nil {
			response.Error(c, bindError(err, "unreadable upload"))
			return
		}
		defer file.Close()
		body = file
	}

	imported, err := h.service.ImportRequests(c.Request.Context(), year, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ImportResult{ScheduleYear: year, Imported: imported})
}
