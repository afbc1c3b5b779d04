package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func TestScheduleConflictsMeta(t *testing.T) {
	api := newTestAPI()
	api.detector.conflicts = []models.Conflict{{Kind: models.ConflictTeacher, SlotA: "a", SlotB: "b"}}

	resp := api.do(http.MethodGet, "/schedules/sched-1/conflicts", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data []models.Conflict  `json:"data"`
		Meta map[string]float64 `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, float64(1), body.Meta["total"])
}

func TestMoveCheckParsesClockTimes(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/slots/slot-1/move-check", `{"dayOfWeek":2,"startTime":"10:15","endTime":"11:05","periodNumber":3}`, string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"clear":true`)

	assert.Equal(t, "slot-1", api.detector.movedID)
	assert.Equal(t, 2, api.detector.target.DayOfWeek)
	assert.Equal(t, models.Clock(10, 15), api.detector.target.StartTime)
	assert.Equal(t, models.Clock(11, 5), api.detector.target.EndTime)
	assert.Equal(t, 3, api.detector.target.PeriodNumber)
}

func TestMoveCheckRejectsBadTime(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/slots/slot-1/move-check", `{"dayOfWeek":2,"startTime":"25:00","endTime":"11:05"}`, string(models.RoleViewer))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.do(http.MethodPost, "/slots/slot-1/move-check", `{"dayOfWeek":`, string(models.RoleViewer))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMoveSlotConflictMapsTo409(t *testing.T) {
	api := newTestAPI()
	api.detector.moveErr = appErrors.Clone(appErrors.ErrStateConflict, "move would create 1 conflict(s)")

	resp := api.do(http.MethodPut, "/slots/slot-1/time", `{"dayOfWeek":1,"startTime":"08:00","endTime":"08:50"}`, string(models.RoleRegistrar))
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "STATE_CONFLICT")
}

func TestMoveSlotReturnsUpdatedSlot(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPut, "/slots/slot-1/time", `{"dayOfWeek":3,"startTime":"13:00","endTime":"13:50"}`, string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"start_time":"13:00"`)
	assert.Contains(t, resp.Body.String(), `"day_of_week":3`)
}

type stubConflictDetector struct {
	conflicts []models.Conflict
	moveErr   error
	movedID   string
	target    models.TimeSlot
}

func (s *stubConflictDetector) DetectConflicts(ctx context.Context, scheduleID string) []models.Conflict {
	if s.conflicts == nil {
		return []models.Conflict{}
	}
	return s.conflicts
}

func (s *stubConflictDetector) DetectAllConflicts(ctx context.Context, scheduleID string) []string {
	lines := make([]string, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		lines = append(lines, c.Detail)
	}
	return lines
}

func (s *stubConflictDetector) CheckSlotConflicts(ctx context.Context, slotID string) []models.Conflict {
	return []models.Conflict{}
}

func (s *stubConflictDetector) CheckSlotMove(ctx context.Context, slotID string, target models.TimeSlot) ([]models.Conflict, error) {
	s.movedID = slotID
	s.target = target
	return []models.Conflict{}, nil
}

func (s *stubConflictDetector) MoveSlot(ctx context.Context, slotID string, target models.TimeSlot) (*models.ScheduleSlot, error) {
	if s.moveErr != nil {
		return nil, s.moveErr
	}
	slot := models.ScheduleSlot{ID: slotID, ScheduleID: "sched-1"}.WithTimeSlot(target)
	return &slot, nil
}
