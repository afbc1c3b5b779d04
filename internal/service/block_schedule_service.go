package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

type blockScheduleRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
}

type blockSlotRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error
	RemoveStudentFromBlockSlots(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID string) (int64, error)
	ListByDayType(ctx context.Context, scheduleID string, dayType models.DayType) ([]models.ScheduleSlot, error)
	ListCoursesForStudentDayType(ctx context.Context, studentID string, dayType models.DayType) ([]models.Course, error)
}

type courseLookup interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

type teacherLookup interface {
	ListActive(ctx context.Context) ([]models.Teacher, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Teacher, error)
}

type roomLookup interface {
	ListActive(ctx context.Context) ([]models.Room, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Room, error)
}

type requestLedger interface {
	ListPendingByYear(ctx context.Context, year int) ([]models.CourseRequest, error)
}

// BlockScheduleConfig describes the alternating-day block grid.
type BlockScheduleConfig struct {
	Epoch          time.Time
	DayStart       models.ClockTime
	BlockMinutes   int
	PassingMinutes int
	BlocksPerDay   int
	LockTimeout    time.Duration
}

// BlockScheduleRepositories groups the stores block scheduling depends on.
type BlockScheduleRepositories struct {
	Schedules blockScheduleRepository
	Slots     blockSlotRepository
	Courses   courseLookup
	Teachers  teacherLookup
	Rooms     roomLookup
	Requests  requestLedger
}

// BlockScheduleService builds and queries ODD/EVEN block schedules.
type BlockScheduleService struct {
	repos     BlockScheduleRepositories
	tx        txProvider
	locks     keyLocker
	metrics   *MetricsService
	validator *validator.Validate
	cfg       BlockScheduleConfig
	logger    *zap.Logger
}

var (
	oddMeetingDays  = []int{1, 3, 5}
	evenMeetingDays = []int{2, 4, 6}
)

// NewBlockScheduleService constructs the block day assigner.
func NewBlockScheduleService(
	repos BlockScheduleRepositories,
	tx txProvider,
	locks *lock.KeyedMutex,
	metrics *MetricsService,
	validate *validator.Validate,
	cfg BlockScheduleConfig,
	logger *zap.Logger,
) *BlockScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.DayStart == 0 {
		cfg.DayStart = models.Clock(8, 0)
	}
	if cfg.BlockMinutes <= 0 {
		cfg.BlockMinutes = 90
	}
	if cfg.PassingMinutes < 0 {
		cfg.PassingMinutes = 0
	}
	if cfg.BlocksPerDay <= 0 {
		cfg.BlocksPerDay = 4
	}
	return &BlockScheduleService{
		repos:     repos,
		tx:        tx,
		locks:     newKeyLocker(locks, cfg.LockTimeout),
		metrics:   metrics,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
	}
}

// GetDayType returns ODD or EVEN by whole calendar days elapsed since the epoch, which is EVEN.
func (s *BlockScheduleService) GetDayType(date time.Time) models.DayType {
	return dayTypeFor(s.cfg.Epoch, date)
}

// IsOddDay reports whether date is an ODD block day.
func (s *BlockScheduleService) IsOddDay(date time.Time) bool {
	return s.GetDayType(date) == models.DayTypeOdd
}

// IsEvenDay reports whether date is an EVEN block day.
func (s *BlockScheduleService) IsEvenDay(date time.Time) bool {
	return s.GetDayType(date) == models.DayTypeEven
}

func dayTypeFor(epoch, date time.Time) models.DayType {
	start := time.Date(epoch.Year(), epoch.Month(), epoch.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := int(day.Sub(start).Hours() / 24)
	if ((elapsed%2)+2)%2 == 1 {
		return models.DayTypeOdd
	}
	return models.DayTypeEven
}

func (s *BlockScheduleService) blockStart(block int) models.ClockTime {
	return s.cfg.DayStart.Add(block * (s.cfg.BlockMinutes + s.cfg.PassingMinutes))
}

// AssignCoursesToDays replaces a student's block slots with one ODD or EVEN slot per course.
func (s *BlockScheduleService) AssignCoursesToDays(ctx context.Context, scheduleID, studentID string, oddCourses, evenCourses []string) ([]models.ScheduleSlot, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if scheduleID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule id is required")
	}
	if _, err := s.repos.Schedules.FindByID(ctx, scheduleID); err != nil {
		return nil, notFoundAs(err, appErrors.ErrValidation, "schedule not found")
	}

	unlock, err := s.locks.acquire(ctx, lock.ScheduleKey(scheduleID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	odd, err := s.studentBlockSlots(scheduleID, studentID, models.DayTypeOdd, oddCourses)
	if err != nil {
		return nil, err
	}
	even, err := s.studentBlockSlots(scheduleID, studentID, models.DayTypeEven, evenCourses)
	if err != nil {
		return nil, err
	}
	slots := append(odd, even...)

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		removed, err := s.repos.Slots.RemoveStudentFromBlockSlots(ctx, tx, scheduleID, studentID)
		if err != nil {
			return appErrors.Internal(err, "failed to clear student block slots")
		}
		if removed > 0 {
			s.logger.Debug("pruned empty block slots", zap.String("schedule_id", scheduleID), zap.Int64("removed", removed))
		}
		if err := s.repos.Slots.InsertBatch(ctx, tx, slots); err != nil {
			return appErrors.Internal(err, "failed to store block slots")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// studentBlockSlots gives each course its own block; a day type holds at most BlocksPerDay courses.
func (s *BlockScheduleService) studentBlockSlots(scheduleID, studentID string, dayType models.DayType, courseIDs []string) ([]models.ScheduleSlot, error) {
	days := oddMeetingDays
	if dayType == models.DayTypeEven {
		days = evenMeetingDays
	}
	slots := make([]models.ScheduleSlot, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		if courseID == "" {
			s.logger.Warn("skipping empty course id", zap.String("student_id", studentID), zap.String("day_type", string(dayType)))
			continue
		}
		block := len(slots)
		if block >= s.cfg.BlocksPerDay {
			return nil, appErrors.Clone(appErrors.ErrCapacity, fmt.Sprintf("%s days hold at most %d courses per student", dayType, s.cfg.BlocksPerDay))
		}
		start := s.blockStart(block)
		slots = append(slots, models.ScheduleSlot{
			ScheduleID:   scheduleID,
			CourseID:     courseID,
			DayOfWeek:    days[0],
			StartTime:    start,
			EndTime:      start.Add(s.cfg.BlockMinutes),
			PeriodNumber: block + 1,
			DayType:      dayType,
			StudentIDs:   []string{studentID},
		})
	}
	return slots, nil
}

// GenerateBlockSchedule builds a BLOCK schedule splitting courses across ODD and EVEN days.
func (s *BlockScheduleService) GenerateBlockSchedule(ctx context.Context, req dto.GenerateScheduleRequest) (schedule *models.Schedule, err error) {
	req.ScheduleType = models.ScheduleTypeBlock
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid block schedule request")
	}

	started := time.Now()
	defer func() {
		s.metrics.ObserveGeneration(string(models.ScheduleTypeBlock), err, time.Since(started))
	}()

	unlock, err := s.locks.acquire(ctx, lock.ScheduleKey(fmt.Sprintf("year-%d", req.ScheduleYear)))
	if err != nil {
		return nil, err
	}
	defer unlock()

	courses, err := s.loadCourses(ctx, req.CourseIDs)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no active courses to schedule")
	}
	teachers, rooms, err := s.loadResources(ctx, req.TeacherIDs, req.RoomIDs)
	if err != nil {
		return nil, err
	}
	if teachers.Len() == 0 || rooms.Len() == 0 {
		return nil, appErrors.Clone(appErrors.ErrCapacity, "block schedule needs at least one active teacher and room")
	}
	enrolled, err := s.enrollmentsByCourse(ctx, req.ScheduleYear, req.StudentIDs)
	if err != nil {
		return nil, err
	}

	half := (len(courses) + 1) / 2
	groups := []struct {
		dayType models.DayType
		days    []int
		courses []models.Course
	}{
		{models.DayTypeOdd, oddMeetingDays, courses[:half]},
		{models.DayTypeEven, evenMeetingDays, courses[half:]},
	}

	slots := make([]models.ScheduleSlot, 0, len(courses)*3)
	for _, group := range groups {
		for _, course := range group.courses {
			if err := ctx.Err(); err != nil {
				return nil, appErrors.Internal(err, "block schedule generation cancelled")
			}
			placed, ok := s.placeBlockCourse(course, group.dayType, group.days, teachers, rooms, enrolled[course.ID])
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrCapacity, fmt.Sprintf("no free teacher, room or block for course %s", course.Code))
			}
			slots = append(slots, placed...)
		}
	}

	schedule = &models.Schedule{
		Name:         req.Name,
		ScheduleType: models.ScheduleTypeBlock,
		Status:       models.ScheduleStatusDraft,
		ScheduleYear: req.ScheduleYear,
		StartDate:    time.Date(req.ScheduleYear, time.August, 15, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(req.ScheduleYear+1, time.June, 15, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repos.Schedules.Create(ctx, tx, schedule); err != nil {
			return appErrors.Internal(err, "failed to create schedule")
		}
		for i := range slots {
			slots[i].ScheduleID = schedule.ID
		}
		if err := s.repos.Slots.InsertBatch(ctx, tx, slots); err != nil {
			return appErrors.Internal(err, "failed to store block slots")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	schedule.Slots = slots
	s.logger.Info("block schedule generated",
		zap.String("schedule_id", schedule.ID),
		zap.Int("year", req.ScheduleYear),
		zap.Int("courses", len(courses)),
		zap.Int("slots", len(slots)),
	)
	return schedule, nil
}

func (s *BlockScheduleService) placeBlockCourse(course models.Course, dayType models.DayType, days []int, teachers, rooms *resourcePool, students []string) ([]models.ScheduleSlot, bool) {
	for block := 0; block < s.cfg.BlocksPerDay; block++ {
		teacherID, ok := teachers.Pick(days, block)
		if !ok {
			continue
		}
		roomID, ok := rooms.Pick(days, block)
		if !ok {
			continue
		}
		teachers.Reserve(teacherID, days, block)
		rooms.Reserve(roomID, days, block)

		start := s.blockStart(block)
		slots := make([]models.ScheduleSlot, 0, len(days))
		for _, day := range days {
			roster := make([]string, len(students))
			copy(roster, students)
			slots = append(slots, models.ScheduleSlot{
				CourseID:     course.ID,
				TeacherID:    teacherID,
				RoomID:       roomID,
				DayOfWeek:    day,
				StartTime:    start,
				EndTime:      start.Add(s.cfg.BlockMinutes),
				PeriodNumber: block + 1,
				DayType:      dayType,
				StudentIDs:   roster,
			})
		}
		return slots, true
	}
	return nil, false
}

func (s *BlockScheduleService) loadCourses(ctx context.Context, ids []string) ([]models.Course, error) {
	return loadActiveCourses(ctx, s.repos.Courses, ids, s.logger)
}

func (s *BlockScheduleService) loadResources(ctx context.Context, teacherIDs, roomIDs []string) (*resourcePool, *resourcePool, error) {
	return loadResourcePools(ctx, s.repos.Teachers, s.repos.Rooms, teacherIDs, roomIDs, 0)
}

func (s *BlockScheduleService) enrollmentsByCourse(ctx context.Context, year int, studentIDs []string) (map[string][]string, error) {
	return requestedStudents(ctx, s.repos.Requests, year, studentIDs)
}

// GetCoursesForDayType lists the distinct courses a student attends on dayType.
func (s *BlockScheduleService) GetCoursesForDayType(ctx context.Context, studentID string, dayType models.DayType) ([]models.Course, error) {
	if studentID == "" || !dayType.Valid() {
		return []models.Course{}, nil
	}
	courses, err := s.repos.Slots.ListCoursesForStudentDayType(ctx, studentID, dayType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list day type courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, nil
}

// GetSlotsForDayType lists a schedule's slots meeting on dayType.
func (s *BlockScheduleService) GetSlotsForDayType(ctx context.Context, scheduleID string, dayType models.DayType) ([]models.ScheduleSlot, error) {
	if scheduleID == "" || !dayType.Valid() {
		return []models.ScheduleSlot{}, nil
	}
	slots, err := s.repos.Slots.ListByDayType(ctx, scheduleID, dayType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list day type slots")
	}
	if slots == nil {
		slots = []models.ScheduleSlot{}
	}
	return slots, nil
}

// loadActiveCourses resolves ids in request order, skipping empty, unknown or inactive courses.
func loadActiveCourses(ctx context.Context, repo courseLookup, ids []string, logger *zap.Logger) ([]models.Course, error) {
	wanted := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			wanted = append(wanted, id)
		}
	}
	found, err := repo.ListByIDs(ctx, wanted)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load courses")
	}
	byID := make(map[string]models.Course, len(found))
	for _, course := range found {
		byID[course.ID] = course
	}
	seen := make(map[string]bool, len(wanted))
	courses := make([]models.Course, 0, len(wanted))
	for _, id := range wanted {
		if seen[id] {
			continue
		}
		seen[id] = true
		course, ok := byID[id]
		if !ok || !course.Active {
			logger.Warn("skipping missing or inactive course", zap.String("course_id", id))
			continue
		}
		courses = append(courses, course)
	}
	return courses, nil
}

func loadResourcePools(ctx context.Context, teachers teacherLookup, rooms roomLookup, teacherIDs, roomIDs []string, maxPerDay int) (*resourcePool, *resourcePool, error) {
	var (
		teacherList []models.Teacher
		roomList    []models.Room
		err         error
	)
	if len(teacherIDs) > 0 {
		teacherList, err = teachers.ListByIDs(ctx, teacherIDs)
	} else {
		teacherList, err = teachers.ListActive(ctx)
	}
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load teachers")
	}
	if len(roomIDs) > 0 {
		roomList, err = rooms.ListByIDs(ctx, roomIDs)
	} else {
		roomList, err = rooms.ListActive(ctx)
	}
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load rooms")
	}

	tIDs := make([]string, 0, len(teacherList))
	for _, teacher := range teacherList {
		if teacher.Active {
			tIDs = append(tIDs, teacher.ID)
		}
	}
	rIDs := make([]string, 0, len(roomList))
	for _, room := range roomList {
		if room.Active {
			rIDs = append(rIDs, room.ID)
		}
	}
	return newResourcePool(tIDs, maxPerDay), newResourcePool(rIDs, 0), nil
}

// requestedStudents maps course id to requesting students, limited to studentIDs when given.
func requestedStudents(ctx context.Context, ledger requestLedger, year int, studentIDs []string) (map[string][]string, error) {
	requests, err := ledger.ListPendingByYear(ctx, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load course requests")
	}
	allowed := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		allowed[id] = true
	}
	out := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, req := range requests {
		if req.StudentID == "" || req.CourseID == "" {
			continue
		}
		if len(allowed) > 0 && !allowed[req.StudentID] {
			continue
		}
		key := [2]string{req.CourseID, req.StudentID}
		if seen[key] {
			continue
		}
		seen[key] = true
		out[req.CourseID] = append(out[req.CourseID], req.StudentID)
	}
	return out, nil
}
