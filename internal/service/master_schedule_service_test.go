package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

type masterFixture struct {
	svc      *MasterScheduleService
	mock     sqlmock.Sqlmock
	sections *stubSectionStore
	waitlist *stubWaitlistStore
	students *stubStudentDirectory
	slots    *stubSlotReader
	teachers *stubTeacherDirectory
	notifier *stubNotifier
	matrix   *stubMatrixRepo
	ledger   *stubRequestLedger
}

func newMasterFixture(t *testing.T, txCount int) *masterFixture {
	txProvider, mock := newTxProviderMock(t)
	for i := 0; i < txCount; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	f := &masterFixture{
		mock:     mock,
		sections: &stubSectionStore{sections: map[string]*models.CourseSection{}, rosters: map[string][]string{}},
		waitlist: &stubWaitlistStore{entries: map[string]*models.WaitlistEntry{}},
		students: &stubStudentDirectory{students: map[string]models.Student{}},
		slots:    &stubSlotReader{},
		teachers: &stubTeacherDirectory{},
		notifier: &stubNotifier{},
		matrix:   &stubMatrixRepo{entries: map[[3]string]*models.ConflictMatrixEntry{}},
		ledger:   &stubRequestLedger{},
	}
	courses := &stubCourseDirectory{courses: []models.Course{
		{ID: "math", Code: "MATH101", Name: "Algebra", SectionsNeeded: 3, MaxStudents: 30, Active: true},
		{ID: "art", Code: "ART101", Name: "Art", IsSingleton: true, SectionsNeeded: 1, MaxStudents: 25, Active: true},
		{ID: "band", Code: "MUS201", Name: "Band", IsSingleton: true, SectionsNeeded: 1, MaxStudents: 40, Active: true},
	}}
	f.svc = NewMasterScheduleService(MasterScheduleRepositories{
		Sections:   f.sections,
		Courses:    courses,
		Requests:   f.ledger,
		Singletons: f.matrix,
		Waitlist:   f.waitlist,
		Students:   f.students,
		Slots:      f.slots,
		Teachers:   f.teachers,
	}, f.notifier, txProvider, lock.NewKeyedMutex(), nil, MasterScheduleConfig{PeriodsPerDay: 8, BalanceTolerance: 3}, nil)
	return f
}

func (f *masterFixture) addSection(id, courseID string, number, current, max int) {
	f.sections.sections[id] = &models.CourseSection{
		ID:                id,
		CourseID:          courseID,
		SectionNumber:     number,
		CurrentEnrollment: current,
		MaxEnrollment:     max,
		Status:            models.SectionStatusOpen,
		ScheduleYear:      2025,
	}
	roster := make([]string, current)
	for i := range roster {
		roster[i] = id + "-student"
	}
	f.sections.rosters[id] = roster
}

func (f *masterFixture) addStudent(id string, active, hold bool) {
	f.students.students[id] = models.Student{ID: id, Active: active, HasHold: hold}
}

func TestBalanceSectionsNarrowsSpreadAndIsIdempotent(t *testing.T) {
	f := newMasterFixture(t, 2)
	f.addSection("sec-1", "math", 1, 30, 35)
	f.addSection("sec-2", "math", 2, 20, 35)
	f.addSection("sec-3", "math", 3, 10, 35)

	result, err := f.svc.BalanceSections(context.Background(), "math", 3)
	require.NoError(t, err)
	assert.True(t, result.Balanced)
	assert.Equal(t, 9, result.MovedStudents)
	assert.Equal(t, map[string]int{"sec-1": 21, "sec-2": 20, "sec-3": 19}, result.After)

	min, max := enrollmentRange(f.sections.byCourse("math"))
	assert.LessOrEqual(t, max-min, 3)
	assert.Equal(t, 60, f.sections.total("math"))
	assert.Len(t, f.sections.rosters["sec-3"], 19)

	again, err := f.svc.BalanceSections(context.Background(), "math", 3)
	require.NoError(t, err)
	assert.Zero(t, again.MovedStudents)
	assert.Equal(t, again.Before, again.After)
}

func TestBalanceSectionsRespectsCapacity(t *testing.T) {
	f := newMasterFixture(t, 1)
	f.addSection("sec-1", "math", 1, 30, 30)
	f.addSection("sec-2", "math", 2, 10, 12)

	result, err := f.svc.BalanceSections(context.Background(), "math", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MovedStudents)
	assert.Equal(t, 12, result.After["sec-2"])
	assert.False(t, result.Balanced)
	assert.Equal(t, models.SectionStatusFull, f.sections.sections["sec-2"].Status)
}

func TestBalanceSectionsUnknownCourseIsCapacityError(t *testing.T) {
	f := newMasterFixture(t, 0)
	_, err := f.svc.BalanceSections(context.Background(), "ghost", 3)
	assert.ErrorIs(t, err, appErrors.ErrCapacity)

	f2 := newMasterFixture(t, 0)
	f2.mock.ExpectBegin()
	f2.mock.ExpectRollback()
	_, err = f2.svc.BalanceSections(context.Background(), "math", 3)
	assert.ErrorIs(t, err, appErrors.ErrCapacity)
}

func TestGetSectionBalanceReport(t *testing.T) {
	f := newMasterFixture(t, 0)
	report, err := f.svc.GetSectionBalanceReport(context.Background(), "math")
	require.NoError(t, err)
	assert.Nil(t, report.AverageEnrollment)
	assert.True(t, report.IsBalanced)

	f.addSection("sec-1", "math", 1, 24, 30)
	f.addSection("sec-2", "math", 2, 18, 30)
	report, err = f.svc.GetSectionBalanceReport(context.Background(), "math")
	require.NoError(t, err)
	require.NotNil(t, report.AverageEnrollment)
	assert.Equal(t, 21.0, *report.AverageEnrollment)
	assert.Equal(t, 6, report.Imbalance)
	assert.False(t, report.IsBalanced)
	assert.Equal(t, 24, report.PerSectionEnrollment["Section 1"])
	assert.Equal(t, "MATH101", report.CourseCode)
}

func TestRankWaitlistOrdersByPriorityThenAddedAt(t *testing.T) {
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	ranked := RankWaitlist([]models.WaitlistEntry{
		{ID: "low", PriorityWeight: 1, AddedAt: base},
		{ID: "late", PriorityWeight: 5, AddedAt: base.Add(2 * time.Hour)},
		{ID: "early", PriorityWeight: 5, AddedAt: base.Add(time.Hour)},
	})
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"early", "late", "low"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Position, ranked[1].Position, ranked[2].Position})
}

func TestEnrollFromWaitlistPromotesHighestPriority(t *testing.T) {
	f := newMasterFixture(t, 1)
	f.addSection("sec-1", "math", 1, 29, 30)
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	f.waitlist.add(models.WaitlistEntry{ID: "w1", StudentID: "s1", CourseID: "math", PriorityWeight: 1, AddedAt: base, Position: 1})
	f.waitlist.add(models.WaitlistEntry{ID: "w2", StudentID: "s2", CourseID: "math", PriorityWeight: 5, AddedAt: base.Add(2 * time.Hour), Position: 2})
	f.waitlist.add(models.WaitlistEntry{ID: "w3", StudentID: "s3", CourseID: "math", PriorityWeight: 5, AddedAt: base.Add(time.Hour), Position: 3})
	for _, id := range []string{"s1", "s2", "s3"} {
		f.addStudent(id, true, false)
	}

	enrolled, err := f.svc.EnrollFromWaitlist(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.True(t, enrolled)

	assert.Equal(t, models.WaitlistEnrolled, f.waitlist.entries["w3"].Status)
	assert.NotNil(t, f.waitlist.entries["w3"].EnrolledAt)
	assert.True(t, f.waitlist.entries["w3"].NotificationSent)
	assert.Equal(t, 1, f.waitlist.entries["w2"].Position)
	assert.Equal(t, 2, f.waitlist.entries["w1"].Position)

	section := f.sections.sections["sec-1"]
	assert.Equal(t, 30, section.CurrentEnrollment)
	assert.Equal(t, models.SectionStatusFull, section.Status)
	assert.Contains(t, f.sections.rosters["sec-1"], "s3")
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "s3", f.notifier.sent[0].StudentID)
}

func TestEnrollFromWaitlistSkipsIneligibleStudents(t *testing.T) {
	f := newMasterFixture(t, 1)
	f.addSection("sec-1", "math", 1, 10, 30)
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	f.waitlist.add(models.WaitlistEntry{ID: "w1", StudentID: "held", CourseID: "math", PriorityWeight: 9, AddedAt: base})
	f.waitlist.add(models.WaitlistEntry{ID: "w2", StudentID: "ok", CourseID: "math", PriorityWeight: 1, AddedAt: base})
	f.addStudent("held", true, true)
	f.addStudent("ok", true, false)

	enrolled, err := f.svc.EnrollFromWaitlist(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.True(t, enrolled)
	assert.Equal(t, models.WaitlistActive, f.waitlist.entries["w1"].Status)
	assert.Equal(t, models.WaitlistEnrolled, f.waitlist.entries["w2"].Status)
}

func TestEnrollFromWaitlistWithoutSeatReturnsFalse(t *testing.T) {
	f := newMasterFixture(t, 1)
	f.addSection("sec-1", "math", 1, 30, 30)
	f.waitlist.add(models.WaitlistEntry{ID: "w1", StudentID: "s1", CourseID: "math", PriorityWeight: 1})
	f.addStudent("s1", true, false)

	enrolled, err := f.svc.EnrollFromWaitlist(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.False(t, enrolled)
	assert.Empty(t, f.notifier.sent)
}

func TestEnrollFromWaitlistConcurrentCallsFillOneSeatOnce(t *testing.T) {
	f := newMasterFixture(t, 2)
	f.addSection("sec-1", "math", 1, 29, 30)
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2"} {
		f.addStudent(id, true, false)
		f.waitlist.add(models.WaitlistEntry{ID: "w-" + id, StudentID: id, CourseID: "math", AddedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	var (
		wg      sync.WaitGroup
		results = make([]bool, 2)
		errs    = make([]error, 2)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.EnrollFromWaitlist(context.Background(), "sec-1")
		}(i)
	}
	wg.Wait()

	promoted := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			promoted++
		}
	}
	assert.Equal(t, 1, promoted)
	assert.Equal(t, 30, f.sections.sections["sec-1"].CurrentEnrollment)
	assert.Len(t, f.sections.rosters["sec-1"], 30)
	assert.Equal(t, models.WaitlistEnrolled, f.waitlist.entries["w-s1"].Status)
	assert.Equal(t, models.WaitlistActive, f.waitlist.entries["w-s2"].Status)
	assert.Len(t, f.notifier.sent, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollFromWaitlistUnknownSectionIsValidationError(t *testing.T) {
	f := newMasterFixture(t, 0)
	_, err := f.svc.EnrollFromWaitlist(context.Background(), "ghost")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestProcessWaitlistFillsSection(t *testing.T) {
	f := newMasterFixture(t, 3)
	f.addSection("sec-1", "math", 1, 0, 2)
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		f.addStudent(id, true, false)
		f.waitlist.add(models.WaitlistEntry{ID: "w-" + id, StudentID: id, CourseID: "math", AddedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	promoted, err := f.svc.ProcessWaitlist(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)
	assert.Equal(t, models.WaitlistActive, f.waitlist.entries["w-s3"].Status)
	assert.Equal(t, 1, f.waitlist.entries["w-s3"].Position)
}

func TestAddToWaitlistReturnsExistingEntry(t *testing.T) {
	f := newMasterFixture(t, 3)
	f.addStudent("s1", true, false)
	f.addStudent("s2", true, false)

	first, err := f.svc.AddToWaitlist(context.Background(), "s1", "math", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)

	second, err := f.svc.AddToWaitlist(context.Background(), "s2", "math", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, 2, f.waitlist.entries[first.ID].Position)

	again, err := f.svc.AddToWaitlist(context.Background(), "s1", "math", 9)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, f.waitlist.entries, 2)
}

func TestAddToWaitlistUnknownStudent(t *testing.T) {
	f := newMasterFixture(t, 0)
	_, err := f.svc.AddToWaitlist(context.Background(), "ghost", "math", 1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCanEnrollStudentRejectsTimeOverlap(t *testing.T) {
	f := newMasterFixture(t, 0)
	f.addSection("sec-1", "math", 1, 5, 30)
	f.addStudent("s1", true, false)
	f.slots.slots = []models.ScheduleSlot{
		{ID: "math-slot", SectionID: "sec-1", DayOfWeek: 1, StartTime: models.Clock(9, 0), EndTime: models.Clock(9, 50)},
		{ID: "art-slot", SectionID: "sec-9", DayOfWeek: 1, StartTime: models.Clock(9, 30), EndTime: models.Clock(10, 20), StudentIDs: []string{"s1"}},
	}

	ok, err := f.svc.CanEnrollStudent(context.Background(), "s1", "sec-1")
	require.NoError(t, err)
	assert.False(t, ok)

	f.slots.slots[1].DayOfWeek = 2
	ok, err = f.svc.CanEnrollStudent(context.Background(), "s1", "sec-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanEnrollStudentRejectsPeriodCollisionAndInactive(t *testing.T) {
	f := newMasterFixture(t, 0)
	f.addSection("sec-1", "math", 1, 5, 30)
	period := 3
	f.sections.sections["sec-1"].AssignedPeriod = &period
	f.sections.studentPeriods = map[string][]int{"s1": {3}}
	f.addStudent("s1", true, false)
	f.addStudent("gone", false, false)

	ok, err := f.svc.CanEnrollStudent(context.Background(), "s1", "sec-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanEnrollStudent(context.Background(), "gone", "sec-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanEnrollStudent(context.Background(), "s1", "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduleSingletonsKeepsConflictingPairsApart(t *testing.T) {
	f := newMasterFixture(t, 1)
	f.addSection("art-1", "art", 1, 0, 25)
	f.addSection("band-1", "band", 1, 0, 40)
	f.addSection("math-1", "math", 1, 0, 30)
	f.matrix.entries[[3]string{"2025", "art", "band"}] = &models.ConflictMatrixEntry{Course1ID: "art", Course2ID: "band", ScheduleYear: 2025, ConflictCount: 4, IsSingletonConflict: true}

	placed, err := f.svc.ScheduleSingletons(context.Background(), 2025)
	require.NoError(t, err)
	require.Len(t, placed, 2)
	assert.Equal(t, 3, *f.sections.sections["art-1"].AssignedPeriod)
	assert.Equal(t, 4, *f.sections.sections["band-1"].AssignedPeriod)
	assert.Nil(t, f.sections.sections["math-1"].AssignedPeriod)
	assert.True(t, f.sections.sections["art-1"].IsSingleton)
}

func TestIdentifySingletonsUsesDemandForSingleSectionCourses(t *testing.T) {
	f := newMasterFixture(t, 0)
	f.addSection("math-1", "math", 1, 0, 30)
	f.addSection("art-1", "art", 1, 0, 25)

	singletons, err := f.svc.IdentifySingletons(context.Background(), 2025)
	require.NoError(t, err)
	require.Len(t, singletons, 1)
	assert.Equal(t, "art-1", singletons[0].ID)

	ok, err := f.svc.IsSingleton(context.Background(), "art", 2025)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.IsSingleton(context.Background(), "ghost", 2025)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAreSingletonsConflictFree(t *testing.T) {
	f := newMasterFixture(t, 0)
	f.addSection("art-1", "art", 1, 0, 25)
	f.addSection("band-1", "band", 1, 0, 40)
	p3, p4 := 3, 4
	f.sections.sections["art-1"].AssignedPeriod = &p3
	f.sections.sections["band-1"].AssignedPeriod = &p4
	f.ledger.requests = []models.CourseRequest{
		{StudentID: "s1", CourseID: "art"},
		{StudentID: "s1", CourseID: "band"},
	}

	ok, err := f.svc.AreSingletonsConflictFree(context.Background(), 2025)
	require.NoError(t, err)
	assert.True(t, ok)

	f.sections.sections["band-1"].AssignedPeriod = &p3
	ok, err = f.svc.AreSingletonsConflictFree(context.Background(), 2025)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignCommonPlanningTimeDoesNotDuplicateNote(t *testing.T) {
	f := newMasterFixture(t, 0)
	f.teachers.teachers = []models.Teacher{
		{ID: "t1", Department: "Science", Active: true, Notes: "Lab lead\nPlanning Period: 2"},
		{ID: "t2", Department: "Science", Active: true},
		{ID: "t3", Department: "Math", Active: true},
	}

	updated, err := f.svc.AssignCommonPlanningTime(context.Background(), "Science", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	_, err = f.svc.AssignCommonPlanningTime(context.Background(), "Science", 4)
	require.NoError(t, err)

	t1 := f.teachers.saved["t1"]
	assert.Equal(t, 4, *t1.PlanningPeriod)
	assert.Equal(t, 1, strings.Count(t1.Notes, "Planning Period:"))
	assert.Contains(t, t1.Notes, "Lab lead")
	assert.Contains(t, t1.Notes, "Planning Period: 4")

	_, err = f.svc.AssignCommonPlanningTime(context.Background(), "Science", 12)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRecommendPlanningPeriods(t *testing.T) {
	f := newMasterFixture(t, 0)
	empty, err := f.svc.RecommendPlanningPeriods(context.Background(), "sched-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, empty)

	f.slots.slots = []models.ScheduleSlot{
		{ID: "1", ScheduleID: "sched-1", TeacherID: "t1", PeriodNumber: 1},
		{ID: "2", ScheduleID: "sched-1", TeacherID: "t1", PeriodNumber: 2},
		{ID: "3", ScheduleID: "sched-1", TeacherID: "t2", PeriodNumber: 3},
		{ID: "4", ScheduleID: "sched-1", TeacherID: "t3", PeriodNumber: 5},
	}
	periods, err := f.svc.RecommendPlanningPeriods(context.Background(), "sched-1", []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6, 7}, periods)
}

func TestEnsureMinimumPlanningTimeFlagsOverloadedTeachers(t *testing.T) {
	f := newMasterFixture(t, 0)
	f.teachers.teachers = []models.Teacher{{ID: "busy", Active: true}, {ID: "light", Active: true}}
	for p := 1; p <= 8; p++ {
		f.slots.slots = append(f.slots.slots, models.ScheduleSlot{ID: fmt.Sprintf("b%d", p), ScheduleID: "sched-1", TeacherID: "busy", DayOfWeek: 1, PeriodNumber: p})
	}
	f.slots.slots = append(f.slots.slots, models.ScheduleSlot{ID: "l1", ScheduleID: "sched-1", TeacherID: "light", DayOfWeek: 1, PeriodNumber: 1})

	flagged, err := f.svc.EnsureMinimumPlanningTime(context.Background(), "sched-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"busy"}, flagged)
	_, err = f.svc.EnsureMinimumPlanningTime(context.Background(), "sched-1", 1)
	require.NoError(t, err)

	notes := f.teachers.saved["busy"].Notes
	assert.Equal(t, "NEEDS MORE PLANNING TIME: Currently has 0 periods, needs 1", notes)
}

type stubSectionStore struct {
	mu             sync.Mutex
	sections       map[string]*models.CourseSection
	rosters        map[string][]string
	studentPeriods map[string][]int
}

func (s *stubSectionStore) byCourse(courseID string) []models.CourseSection {
	var out []models.CourseSection
	for _, id := range sortedKeys(s.sections) {
		if s.sections[id].CourseID == courseID {
			out = append(out, *s.sections[id])
		}
	}
	return out
}

func (s *stubSectionStore) total(courseID string) int {
	total := 0
	for _, section := range s.byCourse(courseID) {
		total += section.CurrentEnrollment
	}
	return total
}

func (s *stubSectionStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CourseSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *section
	return &found, nil
}

func (s *stubSectionStore) ListByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.CourseSection, error) {
	return s.byCourse(courseID), nil
}

func (s *stubSectionStore) ListByYear(ctx context.Context, year int) ([]models.CourseSection, error) {
	var out []models.CourseSection
	for _, id := range sortedKeys(s.sections) {
		if s.sections[id].ScheduleYear == year {
			out = append(out, *s.sections[id])
		}
	}
	return out, nil
}

func (s *stubSectionStore) UpdateEnrollment(ctx context.Context, exec sqlx.ExtContext, id string, enrollment int, status models.SectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[id].CurrentEnrollment = enrollment
	s.sections[id].Status = status
	return nil
}

func (s *stubSectionStore) MarkSingleton(ctx context.Context, exec sqlx.ExtContext, ids []string) error {
	for _, id := range ids {
		s.sections[id].IsSingleton = true
	}
	return nil
}

func (s *stubSectionStore) AssignPeriod(ctx context.Context, exec sqlx.ExtContext, id string, period int) error {
	p := period
	s.sections[id].AssignedPeriod = &p
	return nil
}

func (s *stubSectionStore) AssignResources(ctx context.Context, exec sqlx.ExtContext, id, teacherID, roomID string, period int) error {
	section, ok := s.sections[id]
	if !ok {
		return sql.ErrNoRows
	}
	p := period
	section.TeacherID, section.RoomID, section.AssignedPeriod = teacherID, roomID, &p
	return nil
}

func (s *stubSectionStore) AddStudent(ctx context.Context, exec sqlx.ExtContext, sectionID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters[sectionID] = append(s.rosters[sectionID], studentID)
	return nil
}

func (s *stubSectionStore) MoveStudents(ctx context.Context, exec sqlx.ExtContext, fromID, toID string, n int) (int64, error) {
	from := s.rosters[fromID]
	if n > len(from) {
		n = len(from)
	}
	s.rosters[toID] = append(s.rosters[toID], from[:n]...)
	s.rosters[fromID] = from[n:]
	return int64(n), nil
}

func (s *stubSectionStore) ListStudentPeriods(ctx context.Context, studentID string) ([]int, error) {
	return s.studentPeriods[studentID], nil
}

type stubWaitlistStore struct {
	entries map[string]*models.WaitlistEntry
	seq     int
}

func (s *stubWaitlistStore) add(entry models.WaitlistEntry) {
	if entry.Status == "" {
		entry.Status = models.WaitlistActive
	}
	s.entries[entry.ID] = &entry
}

func (s *stubWaitlistStore) ListActiveByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.WaitlistEntry, error) {
	var out []models.WaitlistEntry
	for _, id := range sortedKeys(s.entries) {
		entry := s.entries[id]
		if entry.CourseID == courseID && entry.Status == models.WaitlistActive {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *stubWaitlistStore) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	s.seq++
	entry.ID = fmt.Sprintf("wl-%d", s.seq)
	s.add(*entry)
	return nil
}

func (s *stubWaitlistStore) UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id string, position int) error {
	s.entries[id].Position = position
	return nil
}

func (s *stubWaitlistStore) MarkEnrolled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	entry := s.entries[id]
	entry.Status = models.WaitlistEnrolled
	entry.EnrolledAt = &at
	entry.Position = 0
	return nil
}

func (s *stubWaitlistStore) MarkNotified(ctx context.Context, id string) error {
	s.entries[id].NotificationSent = true
	return nil
}

type stubStudentDirectory struct {
	students map[string]models.Student
}

func (s *stubStudentDirectory) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (s *stubStudentDirectory) CountActive(ctx context.Context) (int, error) {
	count := 0
	for _, student := range s.students {
		if student.Active {
			count++
		}
	}
	return count, nil
}

type stubSlotReader struct {
	slots []models.ScheduleSlot
}

func (s *stubSlotReader) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error) {
	var out []models.ScheduleSlot
	for _, slot := range s.slots {
		if slot.ScheduleID == scheduleID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *stubSlotReader) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	var out []models.ScheduleSlot
	for _, slot := range s.slots {
		if slot.SectionID == sectionID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *stubSlotReader) ListByStudent(ctx context.Context, studentID string) ([]models.ScheduleSlot, error) {
	var out []models.ScheduleSlot
	for _, slot := range s.slots {
		if slot.HasStudent(studentID) {
			out = append(out, slot)
		}
	}
	return out, nil
}

type stubTeacherDirectory struct {
	teachers []models.Teacher
	saved    map[string]models.Teacher
}

func (s *stubTeacherDirectory) current(id string) models.Teacher {
	if saved, ok := s.saved[id]; ok {
		return saved
	}
	for _, teacher := range s.teachers {
		if teacher.ID == id {
			return teacher
		}
	}
	return models.Teacher{}
}

func (s *stubTeacherDirectory) ListActive(ctx context.Context) ([]models.Teacher, error) {
	var out []models.Teacher
	for _, teacher := range s.teachers {
		if teacher.Active {
			out = append(out, s.current(teacher.ID))
		}
	}
	return out, nil
}

func (s *stubTeacherDirectory) ListByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Teacher
	for _, teacher := range s.teachers {
		if wanted[teacher.ID] {
			out = append(out, s.current(teacher.ID))
		}
	}
	return out, nil
}

func (s *stubTeacherDirectory) ListActiveByDepartment(ctx context.Context, department string) ([]models.Teacher, error) {
	var out []models.Teacher
	for _, teacher := range s.teachers {
		if teacher.Active && teacher.Department == department {
			out = append(out, s.current(teacher.ID))
		}
	}
	return out, nil
}

func (s *stubTeacherDirectory) UpdatePlanning(ctx context.Context, teacher *models.Teacher) error {
	if s.saved == nil {
		s.saved = make(map[string]models.Teacher)
	}
	s.saved[teacher.ID] = *teacher
	return nil
}

type stubNotifier struct {
	sent []models.Notification
}

func (s *stubNotifier) Notify(ctx context.Context, notification models.Notification) error {
	s.sent = append(s.sent, notification)
	return nil
}
