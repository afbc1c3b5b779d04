package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

func blockCourses(n int) *stubCourseDirectory {
	courses := make([]models.Course, 0, n)
	for i := 1; i <= n; i++ {
		courses = append(courses, models.Course{
			ID:          fmt.Sprintf("c%d", i),
			Code:        fmt.Sprintf("BLK%d", i),
			Name:        fmt.Sprintf("Block course %d", i),
			MaxStudents: 30,
			Active:      true,
		})
	}
	return &stubCourseDirectory{courses: courses}
}

func newBlockFixture(t *testing.T, courses *stubCourseDirectory, txCount int) (*BlockScheduleService, *stubScheduleStore, *stubSlotStore) {
	txProvider, mock := newTxProviderMock(t)
	for i := 0; i < txCount; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	schedules := &stubScheduleStore{schedules: map[string]*models.Schedule{}}
	slots := &stubSlotStore{}
	svc := NewBlockScheduleService(BlockScheduleRepositories{
		Schedules: schedules,
		Slots:     slots,
		Courses:   courses,
		Teachers: &stubTeacherDirectory{teachers: []models.Teacher{
			{ID: "t1", Active: true}, {ID: "t2", Active: true},
		}},
		Rooms: &stubRoomDirectory{rooms: []models.Room{
			{ID: "r1", RoomNumber: "101", Capacity: 30, Active: true},
			{ID: "r2", RoomNumber: "102", Capacity: 30, Active: true},
		}},
		Requests: &stubRequestLedger{requests: []models.CourseRequest{
			{StudentID: "s1", CourseID: "c1"},
			{StudentID: "s2", CourseID: "c1"},
			{StudentID: "s1", CourseID: "c3"},
		}},
	}, txProvider, lock.NewKeyedMutex(), nil, nil, BlockScheduleConfig{}, nil)
	return svc, schedules, slots
}

func TestDayTypeAlternatesFromEpoch(t *testing.T) {
	svc, _, _ := newBlockFixture(t, blockCourses(0), 0)
	day := func(d int) time.Time { return time.Date(2024, time.September, d, 13, 30, 0, 0, time.UTC) }

	assert.False(t, svc.IsOddDay(day(1)))
	assert.True(t, svc.IsEvenDay(day(1)))
	assert.True(t, svc.IsOddDay(day(2)))
	assert.False(t, svc.IsOddDay(day(3)))
	assert.Equal(t, models.DayTypeOdd, svc.GetDayType(time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.DayTypeEven, svc.GetDayType(time.Date(2024, time.August, 30, 0, 0, 0, 0, time.UTC)))
}

func TestGenerateBlockScheduleSplitsCoursesAcrossDays(t *testing.T) {
	svc, schedules, store := newBlockFixture(t, blockCourses(4), 1)

	schedule, err := svc.GenerateBlockSchedule(context.Background(), dto.GenerateScheduleRequest{
		Name:         "Block 2025",
		ScheduleYear: 2025,
		CourseIDs:    []string{"c1", "c2", "c3", "c4"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleTypeBlock, schedule.ScheduleType)
	assert.Equal(t, models.ScheduleStatusDraft, schedule.Status)
	require.Len(t, schedule.Slots, 12)
	require.Len(t, store.inserted, 12)
	assert.Contains(t, schedules.schedules, schedule.ID)

	perType := map[models.DayType]int{}
	courseDay := map[string]models.DayType{}
	for _, slot := range schedule.Slots {
		perType[slot.DayType]++
		assert.Equal(t, 90, slot.DurationMinutes())
		assert.Equal(t, schedule.ID, slot.ScheduleID)
		if prior, ok := courseDay[slot.CourseID]; ok {
			assert.Equal(t, prior, slot.DayType, "course %s meets on both day types", slot.CourseID)
		}
		courseDay[slot.CourseID] = slot.DayType
	}
	assert.Equal(t, 6, perType[models.DayTypeOdd])
	assert.Equal(t, 6, perType[models.DayTypeEven])
	assert.Equal(t, models.DayTypeOdd, courseDay["c1"])
	assert.Equal(t, models.DayTypeEven, courseDay["c4"])

	assert.Empty(t, FindSlotConflicts(schedule.Slots, nil))
	for _, slot := range schedule.Slots {
		if slot.CourseID == "c1" {
			assert.ElementsMatch(t, []string{"s1", "s2"}, slot.StudentIDs)
		}
	}
}

func TestGenerateBlockScheduleWithoutRooms(t *testing.T) {
	svc, _, _ := newBlockFixture(t, blockCourses(2), 0)
	svc.repos.Rooms = &stubRoomDirectory{}

	_, err := svc.GenerateBlockSchedule(context.Background(), dto.GenerateScheduleRequest{
		Name:         "Block 2025",
		ScheduleYear: 2025,
		CourseIDs:    []string{"c1", "c2"},
	})
	assert.ErrorIs(t, err, appErrors.ErrCapacity)
}

func TestGenerateBlockScheduleValidatesRequest(t *testing.T) {
	svc, _, _ := newBlockFixture(t, blockCourses(1), 0)
	_, err := svc.GenerateBlockSchedule(context.Background(), dto.GenerateScheduleRequest{ScheduleYear: 2025})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAssignCoursesToDaysReplacesStudentSlots(t *testing.T) {
	svc, schedules, store := newBlockFixture(t, blockCourses(0), 1)
	schedules.schedules["sched-1"] = &models.Schedule{ID: "sched-1", ScheduleType: models.ScheduleTypeBlock}

	slots, err := svc.AssignCoursesToDays(context.Background(), "sched-1", "s1", []string{"c1", "c2"}, []string{"c3"})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []string{"s1"}, store.removedFor)

	assert.Equal(t, models.DayTypeOdd, slots[0].DayType)
	assert.Equal(t, models.Clock(8, 0), slots[0].StartTime)
	assert.Equal(t, 2, slots[1].PeriodNumber)
	assert.Equal(t, models.DayTypeEven, slots[2].DayType)
	assert.Equal(t, 2, slots[2].DayOfWeek)
	assert.True(t, slots[2].HasStudent("s1"))
}

func TestAssignCoursesToDaysRejectsMoreCoursesThanBlocks(t *testing.T) {
	svc, schedules, store := newBlockFixture(t, blockCourses(0), 1)
	schedules.schedules["sched-1"] = &models.Schedule{ID: "sched-1", ScheduleType: models.ScheduleTypeBlock}

	_, err := svc.AssignCoursesToDays(context.Background(), "sched-1", "s1", []string{"c1", "c2", "c3", "c4", "c5"}, nil)
	assert.ErrorIs(t, err, appErrors.ErrCapacity)
	assert.Empty(t, store.removedFor)

	slots, err := svc.AssignCoursesToDays(context.Background(), "sched-1", "s1", []string{"c1", "", "c2", "c3", "c4"}, nil)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	starts := map[models.ClockTime]string{}
	for i, slot := range slots {
		assert.Equal(t, i+1, slot.PeriodNumber)
		_, taken := starts[slot.StartTime]
		assert.False(t, taken, "block at %s reused", slot.StartTime)
		starts[slot.StartTime] = slot.CourseID
	}
}

func TestAssignCoursesToDaysUnknownSchedule(t *testing.T) {
	svc, _, _ := newBlockFixture(t, blockCourses(0), 0)
	_, err := svc.AssignCoursesToDays(context.Background(), "ghost", "s1", []string{"c1"}, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDayTypeQueriesRejectUnknownDayType(t *testing.T) {
	svc, _, store := newBlockFixture(t, blockCourses(0), 0)
	store.slots = []models.ScheduleSlot{
		{ID: "a", ScheduleID: "sched-1", DayType: models.DayTypeOdd},
		{ID: "b", ScheduleID: "sched-1", DayType: models.DayTypeEven},
	}

	slots, err := svc.GetSlotsForDayType(context.Background(), "sched-1", models.DayType("WEEKEND"))
	require.NoError(t, err)
	assert.Empty(t, slots)

	slots, err = svc.GetSlotsForDayType(context.Background(), "sched-1", models.DayTypeOdd)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "a", slots[0].ID)

	courses, err := svc.GetCoursesForDayType(context.Background(), "", models.DayTypeOdd)
	require.NoError(t, err)
	assert.NotNil(t, courses)
	assert.Empty(t, courses)
}

type stubScheduleStore struct {
	schedules map[string]*models.Schedule
	seq       int
}

func (s *stubScheduleStore) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	s.seq++
	schedule.ID = fmt.Sprintf("sched-%d", s.seq)
	stored := *schedule
	s.schedules[schedule.ID] = &stored
	return nil
}

func (s *stubScheduleStore) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *schedule
	return &found, nil
}

func (s *stubScheduleStore) UpdateQualityScore(ctx context.Context, exec sqlx.ExtContext, id string, score float64) error {
	schedule, ok := s.schedules[id]
	if !ok {
		return sql.ErrNoRows
	}
	schedule.QualityScore = score
	return nil
}

type stubSlotStore struct {
	slots      []models.ScheduleSlot
	inserted   []models.ScheduleSlot
	removedFor []string
}

func (s *stubSlotStore) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = fmt.Sprintf("slot-%d", len(s.slots)+1)
		}
		s.slots = append(s.slots, slots[i])
		s.inserted = append(s.inserted, slots[i])
	}
	return nil
}

func (s *stubSlotStore) RemoveStudentFromBlockSlots(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID string) (int64, error) {
	s.removedFor = append(s.removedFor, studentID)
	return 0, nil
}

func (s *stubSlotStore) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error) {
	var out []models.ScheduleSlot
	for _, slot := range s.slots {
		if slot.ScheduleID == scheduleID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *stubSlotStore) ListByDayType(ctx context.Context, scheduleID string, dayType models.DayType) ([]models.ScheduleSlot, error) {
	var out []models.ScheduleSlot
	for _, slot := range s.slots {
		if slot.ScheduleID == scheduleID && slot.DayType.Matches(dayType) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *stubSlotStore) ListCoursesForStudentDayType(ctx context.Context, studentID string, dayType models.DayType) ([]models.Course, error) {
	return nil, nil
}

type stubRoomDirectory struct {
	rooms []models.Room
}

func (s *stubRoomDirectory) ListActive(ctx context.Context) ([]models.Room, error) {
	var out []models.Room
	for _, room := range s.rooms {
		if room.Active {
			out = append(out, room)
		}
	}
	return out, nil
}

func (s *stubRoomDirectory) ListByIDs(ctx context.Context, ids []string) ([]models.Room, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Room
	for _, room := range s.rooms {
		if wanted[room.ID] {
			out = append(out, room)
		}
	}
	return out, nil
}
