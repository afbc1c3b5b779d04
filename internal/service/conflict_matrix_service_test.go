package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/export"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

const matrixYear = 2025

func newMatrixFixture(t *testing.T, requests []models.CourseRequest, courses []models.Course) (*ConflictMatrixService, *stubMatrixRepo, *stubRequestLedger) {
	txProvider, mock := newTxProviderMock(t)
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	repo := &stubMatrixRepo{entries: map[[3]string]*models.ConflictMatrixEntry{}}
	ledger := &stubRequestLedger{requests: requests}
	svc := NewConflictMatrixService(ledger, &stubCourseDirectory{courses: courses}, repo, txProvider, nil, export.NewCSVExporter(','), lock.NewKeyedMutex(), ConflictMatrixConfig{}, nil)
	return svc, repo, ledger
}

func TestUpdateConflictIsAdditiveAndOrderIndependent(t *testing.T) {
	svc, repo, _ := newMatrixFixture(t, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdateConflict(ctx, matrixYear, "course-b", "course-a", 5)
	require.NoError(t, err)
	entry, err := svc.UpdateConflict(ctx, matrixYear, "course-a", "course-b", 10)
	require.NoError(t, err)

	assert.Equal(t, 15, entry.ConflictCount)
	assert.Len(t, repo.entries, 1)
	assert.Equal(t, "course-a", entry.Course1ID)
	assert.Equal(t, "course-b", entry.Course2ID)

	ab, err := svc.HasConflict(ctx, matrixYear, "course-a", "course-b", 15)
	require.NoError(t, err)
	ba, err := svc.HasConflict(ctx, matrixYear, "course-b", "course-a", 15)
	require.NoError(t, err)
	assert.True(t, ab)
	assert.True(t, ba)
}

func TestUpdateConflictWaitsForYearRebuild(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	repo := &stubMatrixRepo{entries: map[[3]string]*models.ConflictMatrixEntry{}}
	locks := lock.NewKeyedMutex()
	svc := NewConflictMatrixService(&stubRequestLedger{}, &stubCourseDirectory{}, repo, txProvider, nil, export.NewCSVExporter(','), locks,
		ConflictMatrixConfig{LockTimeout: 20 * time.Millisecond}, nil)

	unlock, err := locks.Lock(context.Background(), lock.YearKey(matrixYear))
	require.NoError(t, err)

	_, err = svc.UpdateConflict(context.Background(), matrixYear, "course-a", "course-b", 1)
	assert.ErrorIs(t, err, appErrors.ErrStateConflict)
	assert.Empty(t, repo.entries)

	unlock()
	entry, err := svc.UpdateConflict(context.Background(), matrixYear, "course-a", "course-b", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ConflictCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConflictRejectsSelfPair(t *testing.T) {
	svc, _, _ := newMatrixFixture(t, nil, nil)
	_, err := svc.UpdateConflict(context.Background(), matrixYear, "course-a", "course-a", 1)
	require.Error(t, err)
}

func TestGenerateConflictMatrixCountsSharedRequests(t *testing.T) {
	requests := []models.CourseRequest{
		{ID: "1", StudentID: "s1", CourseID: "math"},
		{ID: "2", StudentID: "s1", CourseID: "art"},
		{ID: "3", StudentID: "s2", CourseID: "math"},
		{ID: "4", StudentID: "s2", CourseID: "art"},
		{ID: "5", StudentID: "s3", CourseID: "math"},
		{ID: "6", StudentID: "", CourseID: "art"},
	}
	courses := []models.Course{{ID: "art", IsSingleton: true, Active: true}, {ID: "math", Active: true}}
	svc, repo, _ := newMatrixFixture(t, requests, courses)

	pairs, err := svc.GenerateConflictMatrix(context.Background(), matrixYear)
	require.NoError(t, err)
	assert.Equal(t, 1, pairs)

	entry := repo.entries[[3]string{"2025", "art", "math"}]
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.ConflictCount)
	assert.True(t, entry.IsSingletonConflict)
	assert.InDelta(t, 66.67, entry.ConflictPercentage, 0.01)
}

func TestGenerateConflictMatrixClearsPriorRows(t *testing.T) {
	svc, repo, _ := newMatrixFixture(t, nil, nil)
	repo.entries[[3]string{"2025", "old-a", "old-b"}] = &models.ConflictMatrixEntry{Course1ID: "old-a", Course2ID: "old-b", ScheduleYear: matrixYear, ConflictCount: 3}

	pairs, err := svc.GenerateConflictMatrix(context.Background(), matrixYear)
	require.NoError(t, err)
	assert.Zero(t, pairs)
	assert.Empty(t, repo.entries)
}

func TestConflictPercentageStaysInRange(t *testing.T) {
	cases := []struct{ count, a, b int }{
		{0, 0, 0}, {5, 0, 0}, {5, 10, 2}, {50, 10, 10}, {-3, 4, 4},
	}
	for _, tc := range cases {
		pct := ConflictPercentage(tc.count, tc.a, tc.b)
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
	}
	assert.Equal(t, 50.0, ConflictPercentage(5, 10, 2))
}

func TestGetConflictHeatmapIsSymmetric(t *testing.T) {
	svc, repo, _ := newMatrixFixture(t, nil, nil)
	repo.entries[[3]string{"2025", "a", "b"}] = &models.ConflictMatrixEntry{Course1ID: "a", Course2ID: "b", Course1Name: "Algebra", Course2Name: "Biology", ScheduleYear: matrixYear, ConflictCount: 4}

	heatmap := svc.GetConflictHeatmap(context.Background(), matrixYear)
	assert.Equal(t, 4, heatmap["Algebra"]["Biology"])
	assert.Equal(t, 4, heatmap["Biology"]["Algebra"])
	assert.Empty(t, svc.GetConflictHeatmap(context.Background(), 1999))
}

func TestQueriesReturnEmptyCollections(t *testing.T) {
	svc, _, _ := newMatrixFixture(t, nil, nil)
	ctx := context.Background()

	singles, err := svc.GetSingletonConflicts(ctx, matrixYear)
	require.NoError(t, err)
	assert.NotNil(t, singles)
	forCourse, err := svc.GetConflictsForCourse(ctx, matrixYear, "")
	require.NoError(t, err)
	assert.NotNil(t, forCourse)
	pct, err := svc.CalculateConflictPercentage(ctx, matrixYear, "x", "y")
	require.NoError(t, err)
	assert.Zero(t, pct)
}

func TestImportRequestsSkipsIncompleteRows(t *testing.T) {
	svc, _, ledger := newMatrixFixture(t, nil, nil)
	payload := "student_id,course_id,priority_weight\ns1,math,2\n,art,1\ns2,art,0\n"

	inserted, err := svc.ImportRequests(context.Background(), matrixYear, strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.Len(t, ledger.inserted, 2)
	assert.Equal(t, matrixYear, ledger.inserted[0].ScheduleYear)
	assert.Equal(t, models.CourseRequestPending, ledger.inserted[1].Status)
}

type stubMatrixRepo struct {
	entries map[[3]string]*models.ConflictMatrixEntry
}

func matrixKey(year int, a, b string) [3]string {
	first, second := models.OrderedPair(a, b)
	return [3]string{strconv.Itoa(year), first, second}
}

func (s *stubMatrixRepo) DeleteByYear(ctx context.Context, exec sqlx.ExtContext, year int) (int64, error) {
	var removed int64
	for key, entry := range s.entries {
		if entry.ScheduleYear == year {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubMatrixRepo) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.ConflictMatrixEntry) error {
	stored := *entry
	s.entries[matrixKey(entry.ScheduleYear, entry.Course1ID, entry.Course2ID)] = &stored
	return nil
}

func (s *stubMatrixRepo) UpdateCount(ctx context.Context, exec sqlx.ExtContext, entry *models.ConflictMatrixEntry) error {
	return s.Insert(ctx, exec, entry)
}

func (s *stubMatrixRepo) FindPair(ctx context.Context, exec sqlx.ExtContext, year int, a, b string) (*models.ConflictMatrixEntry, error) {
	entry, ok := s.entries[matrixKey(year, a, b)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *entry
	return &found, nil
}

func (s *stubMatrixRepo) list(year int, keep func(models.ConflictMatrixEntry) bool) []models.ConflictMatrixEntry {
	var out []models.ConflictMatrixEntry
	for _, entry := range s.entries {
		if entry.ScheduleYear == year && keep(*entry) {
			out = append(out, *entry)
		}
	}
	return out
}

func (s *stubMatrixRepo) ListByYear(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	return s.list(year, func(models.ConflictMatrixEntry) bool { return true }), nil
}

func (s *stubMatrixRepo) ListSingleton(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	return s.list(year, func(e models.ConflictMatrixEntry) bool { return e.IsSingletonConflict }), nil
}

func (s *stubMatrixRepo) ListForCourse(ctx context.Context, year int, courseID string) ([]models.ConflictMatrixEntry, error) {
	return s.list(year, func(e models.ConflictMatrixEntry) bool { return e.Involves(courseID) }), nil
}

func (s *stubMatrixRepo) ListAtLeast(ctx context.Context, year, threshold int) ([]models.ConflictMatrixEntry, error) {
	return s.list(year, func(e models.ConflictMatrixEntry) bool { return e.ConflictCount >= threshold }), nil
}

type stubRequestLedger struct {
	requests []models.CourseRequest
	inserted []models.CourseRequest
}

func (s *stubRequestLedger) ListPendingByYear(ctx context.Context, year int) ([]models.CourseRequest, error) {
	return s.requests, nil
}

func (s *stubRequestLedger) CountForCourse(ctx context.Context, courseID string, year int) (int, error) {
	count := 0
	for _, req := range s.requests {
		if req.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

func (s *stubRequestLedger) InsertBatch(ctx context.Context, exec sqlx.ExtContext, requests []models.CourseRequest) (int, error) {
	s.inserted = append(s.inserted, requests...)
	return len(requests), nil
}

type stubCourseDirectory struct {
	courses []models.Course
}

func (s *stubCourseDirectory) FindByID(ctx context.Context, id string) (*models.Course, error) {
	for _, course := range s.courses {
		if course.ID == id {
			found := course
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubCourseDirectory) ListActive(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	for _, course := range s.courses {
		if course.Active {
			out = append(out, course)
		}
	}
	return out, nil
}

func (s *stubCourseDirectory) ListByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Course
	for _, course := range s.courses {
		if wanted[course.ID] {
			out = append(out, course)
		}
	}
	return out, nil
}
