package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func TestBalanceSectionsToleranceDefaultAndOverride(t *testing.T) {
	api := newTestAPI()

	resp := api.do(http.MethodPost, "/courses/math/balance", "", string(models.RoleRegistrar))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 3, api.master.tolerance)

	resp = api.do(http.MethodPost, "/courses/math/balance", `{"tolerance":0}`, string(models.RoleRegistrar))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, api.master.tolerance)
	assert.Contains(t, resp.Body.String(), `"course_id":"math"`)
}

func TestBalanceSectionsCapacityError(t *testing.T) {
	api := newTestAPI()
	api.master.err = appErrors.Clone(appErrors.ErrCapacity, "course has no sections")

	resp := api.do(http.MethodPost, "/courses/ghost/balance", "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestVerifyBalanceQueryTolerance(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodGet, "/master/2025/balance/verify?tolerance=5", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 5, api.master.tolerance)
	assert.Contains(t, resp.Body.String(), `"schedule_year":2025`)
}

func TestAddToWaitlistCreated(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/courses/art/waitlist", `{"studentId":"s9","priorityWeight":2}`, string(models.RoleRegistrar))
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"student_id":"s9"`)
	assert.Contains(t, resp.Body.String(), `"course_id":"art"`)
}

func TestAddToWaitlistMalformedBody(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/courses/art/waitlist", `{"studentId":`, string(models.RoleRegistrar))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWaitlistPromotionEndpoints(t *testing.T) {
	api := newTestAPI()
	api.master.promoted = 2

	resp := api.do(http.MethodPost, "/sections/sec-1/waitlist/enroll", "", string(models.RoleRegistrar))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"enrolled":true`)

	resp = api.do(http.MethodPost, "/sections/sec-1/waitlist/process", "", string(models.RoleRegistrar))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"promoted":2`)
}

func TestEligibilityPassesIDsInOrder(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodGet, "/sections/sec-4/eligibility/s7", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "s7", api.master.studentID)
	assert.Equal(t, "sec-4", api.master.sectionID)
}

func TestPlanningEndpoints(t *testing.T) {
	api := newTestAPI()

	resp := api.do(http.MethodPost, "/departments/Science/planning-period", `{"period":4}`, string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"teachers":3`)

	resp = api.do(http.MethodPost, "/schedules/sched-1/planning/recommendations", `{"teacherIds":["t1","t2"]}`, string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"data":[1,2,3]`)

	resp = api.do(http.MethodPost, "/schedules/sched-1/planning/ensure", "", string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, api.master.minPeriods)

	resp = api.do(http.MethodPost, "/schedules/sched-1/planning/ensure", `{"minPeriods":2}`, string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, api.master.minPeriods)
}

func TestSingletonEndpoints(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/master/2025/singletons/identify", "", string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total":1`)

	resp = api.do(http.MethodGet, "/master/2025/singletons/conflict-free", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"conflictFree":true`)
}

type stubMasterScheduler struct {
	err        error
	tolerance  int
	promoted   int
	minPeriods int
	studentID  string
	sectionID  string
}

func (s *stubMasterScheduler) IdentifySingletons(ctx context.Context, year int) ([]models.CourseSection, error) {
	return []models.CourseSection{{ID: "sec-art", CourseID: "art"}}, nil
}

func (s *stubMasterScheduler) ScheduleSingletons(ctx context.Context, year int) ([]models.CourseSection, error) {
	return []models.CourseSection{}, nil
}

func (s *stubMasterScheduler) AreSingletonsConflictFree(ctx context.Context, year int) (bool, error) {
	return true, nil
}

func (s *stubMasterScheduler) VerifySectionBalance(ctx context.Context, year, tolerance int) (*models.BalanceVerification, error) {
	s.tolerance = tolerance
	return &models.BalanceVerification{ScheduleYear: year, Tolerance: tolerance, Balanced: true, UnbalancedCourse: []string{}}, nil
}

func (s *stubMasterScheduler) BalanceSections(ctx context.Context, courseID string, tolerance int) (*models.BalanceResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tolerance = tolerance
	return &models.BalanceResult{CourseID: courseID, Before: map[string]int{}, After: map[string]int{}, Balanced: true}, nil
}

func (s *stubMasterScheduler) GetSectionBalanceReport(ctx context.Context, courseID string) (*models.SectionBalanceReport, error) {
	return &models.SectionBalanceReport{CourseID: courseID, PerSectionEnrollment: map[string]int{}}, nil
}

func (s *stubMasterScheduler) AddToWaitlist(ctx context.Context, studentID, courseID string, priorityWeight int) (*models.WaitlistEntry, error) {
	return &models.WaitlistEntry{ID: "wl-1", StudentID: studentID, CourseID: courseID, PriorityWeight: priorityWeight}, nil
}

func (s *stubMasterScheduler) EnrollFromWaitlist(ctx context.Context, sectionID string) (bool, error) {
	return true, nil
}

func (s *stubMasterScheduler) ProcessWaitlist(ctx context.Context, sectionID string) (int, error) {
	return s.promoted, nil
}

func (s *stubMasterScheduler) CanEnrollStudent(ctx context.Context, studentID, sectionID string) (bool, error) {
	s.studentID, s.sectionID = studentID, sectionID
	return true, nil
}

func (s *stubMasterScheduler) AssignCommonPlanningTime(ctx context.Context, department string, period int) (int, error) {
	return 3, nil
}

func (s *stubMasterScheduler) RecommendPlanningPeriods(ctx context.Context, scheduleID string, teacherIDs []string) ([]int, error) {
	return []int{1, 2, 3}, nil
}

func (s *stubMasterScheduler) EnsureMinimumPlanningTime(ctx context.Context, scheduleID string, minPeriods int) ([]string, error) {
	s.minPeriods = minPeriods
	return []string{}, nil
}
