package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/dto"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/jobs"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/middleware/requestid"
)

type generatorScheduleRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	UpdateQualityScore(ctx context.Context, exec sqlx.ExtContext, id string, score float64) error
}

type generatorSlotRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error)
}

type generatorSectionRepository interface {
	ListByYear(ctx context.Context, year int) ([]models.CourseSection, error)
	AssignResources(ctx context.Context, exec sqlx.ExtContext, id, teacherID, roomID string, period int) error
}

type matrixBuilder interface {
	GenerateConflictMatrix(ctx context.Context, year int) (int, error)
	GetSingletonConflicts(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error)
}

type singletonIdentifier interface {
	IdentifySingletons(ctx context.Context, year int) ([]models.CourseSection, error)
}

type conflictCounter interface {
	RefreshConflictCount(ctx context.Context, scheduleID string) (int, error)
}

type healthCalculator interface {
	CalculateHealthMetrics(ctx context.Context, schedule *models.Schedule) (*models.HealthMetrics, error)
}

type blockGenerator interface {
	GenerateBlockSchedule(ctx context.Context, req dto.GenerateScheduleRequest) (*models.Schedule, error)
}

// ProgressFunc receives coarse generation milestones with increasing percentages.
type ProgressFunc func(percent int, message string)

// ScheduleGeneratorConfig shapes the traditional period grid and the async queue.
type ScheduleGeneratorConfig struct {
	PeriodsPerDay      int
	MinPlanningPeriods int
	SchoolDays         []int
	DayStart           models.ClockTime
	PeriodMinutes      int
	PassingMinutes     int
	JobTTL             time.Duration
	JobCapacity        int
	Workers            int
	WorkerRetries      int
}

// ScheduleGeneratorDeps wires the stores and engines generation orchestrates.
type ScheduleGeneratorDeps struct {
	Schedules  generatorScheduleRepository
	Slots      generatorSlotRepository
	Sections   generatorSectionRepository
	Courses    courseLookup
	Teachers   teacherLookup
	Rooms      roomLookup
	Requests   requestLedger
	Matrix     matrixBuilder
	Singletons singletonIdentifier
	Conflicts  conflictCounter
	Health     healthCalculator
	Block      blockGenerator
}

// ScheduleGeneratorService orchestrates end-to-end schedule generation.
type ScheduleGeneratorService struct {
	deps      ScheduleGeneratorDeps
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	cfg       ScheduleGeneratorConfig
	logger    *zap.Logger

	jobs  *expirable.LRU[string, models.GenerationJob]
	queue *jobs.Queue
	now   func() time.Time
}

// NewScheduleGeneratorService constructs the generator and its worker queue.
func NewScheduleGeneratorService(
	deps ScheduleGeneratorDeps,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	cfg ScheduleGeneratorConfig,
	logger *zap.Logger,
) *ScheduleGeneratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.PeriodsPerDay <= 0 {
		cfg.PeriodsPerDay = 8
	}
	if cfg.MinPlanningPeriods < 0 || cfg.MinPlanningPeriods >= cfg.PeriodsPerDay {
		cfg.MinPlanningPeriods = 0
	}
	if len(cfg.SchoolDays) == 0 {
		cfg.SchoolDays = []int{1, 2, 3, 4, 5}
	}
	if cfg.DayStart == 0 {
		cfg.DayStart = models.Clock(8, 0)
	}
	if cfg.PeriodMinutes <= 0 {
		cfg.PeriodMinutes = 50
	}
	if cfg.PassingMinutes < 0 {
		cfg.PassingMinutes = 0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.JobCapacity <= 0 {
		cfg.JobCapacity = 256
	}

	svc := &ScheduleGeneratorService{
		deps:      deps,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
		jobs:      expirable.NewLRU[string, models.GenerationJob](cfg.JobCapacity, nil, cfg.JobTTL),
		now:       time.Now,
	}
	svc.queue = jobs.NewQueue("schedule-generation", svc.handleJob, jobs.QueueConfig{
		Workers:     cfg.Workers,
		MaxRetries:  cfg.WorkerRetries,
		Logger:      logger,
		OnExhausted: svc.jobExhausted,
	})
	return svc
}

// Start launches the generation workers.
func (s *ScheduleGeneratorService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the generation workers.
func (s *ScheduleGeneratorService) Stop() {
	s.queue.Stop()
}

// Generate builds and persists a schedule synchronously.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, req dto.GenerateScheduleRequest, progress ProgressFunc) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation request")
	}
	report := func(percent int, message string) {
		if progress != nil {
			progress(percent, message)
		}
	}

	if req.ScheduleType == models.ScheduleTypeBlock {
		report(10, "Generating block schedule")
		schedule, err := s.deps.Block.GenerateBlockSchedule(ctx, req)
		if err != nil {
			return nil, err
		}
		s.finalize(ctx, schedule)
		report(100, "Block schedule ready")
		return schedule, nil
	}

	started := time.Now()
	schedule, err := s.generateTraditional(ctx, req, report)
	s.metrics.ObserveGeneration(string(models.ScheduleTypeTraditional), err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

type placementUnit struct {
	course    models.Course
	section   *models.CourseSection
	students  []string
	singleton bool
}

type placedUnit struct {
	unit      placementUnit
	period    int
	teacherID string
	roomID    string
}

func (s *ScheduleGeneratorService) generateTraditional(ctx context.Context, req dto.GenerateScheduleRequest, report func(int, string)) (*models.Schedule, error) {
	year := req.ScheduleYear

	report(5, "Building conflict matrix")
	if _, err := s.deps.Matrix.GenerateConflictMatrix(ctx, year); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	report(20, "Identifying singletons")
	singletons, err := s.deps.Singletons.IdentifySingletons(ctx, year)
	if err != nil {
		return nil, err
	}
	singletonEntries, err := s.deps.Matrix.GetSingletonConflicts(ctx, year)
	if err != nil {
		return nil, err
	}
	conflicting := make(map[string]map[string]bool)
	for _, entry := range singletonEntries {
		if entry.ConflictCount > 0 {
			markPair(conflicting, entry.Course1ID, entry.Course2ID)
		}
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	report(35, "Loading sections")
	units, err := s.buildUnits(ctx, req, singletons)
	if err != nil {
		return nil, err
	}
	teachers, rooms, err := loadResourcePools(ctx, s.deps.Teachers, s.deps.Rooms, req.TeacherIDs, req.RoomIDs, s.cfg.PeriodsPerDay-s.cfg.MinPlanningPeriods)
	if err != nil {
		return nil, err
	}
	if teachers.Len() == 0 || rooms.Len() == 0 {
		return nil, appErrors.Clone(appErrors.ErrCapacity, "generation needs at least one active teacher and room")
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	report(50, "Placing sections")
	days := normalizeDays(req.Days)
	if len(days) == 0 {
		days = normalizeDays(s.cfg.SchoolDays)
	}
	placements, err := s.place(units, days, teachers, rooms, conflicting)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	report(75, "Saving schedule")
	schedule := &models.Schedule{
		Name:         req.Name,
		ScheduleType: models.ScheduleTypeTraditional,
		Status:       models.ScheduleStatusDraft,
		ScheduleYear: year,
		StartDate:    time.Date(year, time.August, 15, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(year+1, time.June, 15, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}
	slots := s.slotsFor(placements, days)
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.deps.Schedules.Create(ctx, tx, schedule); err != nil {
			return appErrors.Internal(err, "failed to create schedule")
		}
		for i := range slots {
			slots[i].ScheduleID = schedule.ID
		}
		if err := s.deps.Slots.InsertBatch(ctx, tx, slots); err != nil {
			return appErrors.Internal(err, "failed to store schedule slots")
		}
		for _, placed := range placements {
			if placed.unit.section == nil {
				continue
			}
			if err := s.deps.Sections.AssignResources(ctx, tx, placed.unit.section.ID, placed.teacherID, placed.roomID, placed.period); err != nil {
				return appErrors.Internal(err, "failed to assign section resources")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	schedule.Slots = slots

	report(90, "Scoring schedule")
	s.finalize(ctx, schedule)
	report(100, "Schedule ready")

	s.logger.Info("schedule generated",
		zap.String("schedule_id", schedule.ID),
		zap.Int("year", year),
		zap.Int("sections", len(placements)),
		zap.Int("slots", len(slots)),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return schedule, nil
}

// finalize refreshes the conflict counter and quality score; failures only log.
func (s *ScheduleGeneratorService) finalize(ctx context.Context, schedule *models.Schedule) {
	if s.deps.Conflicts != nil {
		total, err := s.deps.Conflicts.RefreshConflictCount(ctx, schedule.ID)
		if err != nil {
			s.logger.Warn("failed to refresh conflict count", zap.String("schedule_id", schedule.ID), zap.Error(err))
		} else {
			schedule.TotalConflicts = total
		}
	}
	if s.deps.Health == nil {
		return
	}
	metrics, err := s.deps.Health.CalculateHealthMetrics(ctx, schedule)
	if err != nil {
		s.logger.Warn("failed to score schedule", zap.String("schedule_id", schedule.ID), zap.Error(err))
		return
	}
	schedule.QualityScore = metrics.OverallScore
	if err := s.deps.Schedules.UpdateQualityScore(ctx, nil, schedule.ID, metrics.OverallScore); err != nil {
		s.logger.Warn("failed to store quality score", zap.String("schedule_id", schedule.ID), zap.Error(err))
	}
}

func (s *ScheduleGeneratorService) buildUnits(ctx context.Context, req dto.GenerateScheduleRequest, singletons []models.CourseSection) ([]placementUnit, error) {
	courses, err := loadActiveCourses(ctx, s.deps.Courses, req.CourseIDs, s.logger)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no active courses to schedule")
	}
	sections, err := s.deps.Sections.ListByYear(ctx, req.ScheduleYear)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load sections")
	}
	students, err := requestedStudents(ctx, s.deps.Requests, req.ScheduleYear, req.StudentIDs)
	if err != nil {
		return nil, err
	}

	singletonSection := make(map[string]bool, len(singletons))
	for _, section := range singletons {
		singletonSection[section.ID] = true
	}
	byCourse := groupSectionsByCourse(sections)

	units := make([]placementUnit, 0, len(courses))
	for _, course := range courses {
		courseSections := byCourse[course.ID]
		count := len(courseSections)
		if count == 0 {
			count = course.SectionsNeeded
			if count <= 0 {
				count = 1
			}
		}
		rosters := splitRoster(students[course.ID], count)
		for i := 0; i < count; i++ {
			unit := placementUnit{course: course, students: rosters[i], singleton: course.IsSingleton}
			if i < len(courseSections) {
				section := courseSections[i]
				unit.section = &section
				unit.singleton = unit.singleton || section.IsSingleton || singletonSection[section.ID]
			}
			units = append(units, unit)
		}
	}

	sort.SliceStable(units, func(i, j int) bool {
		if units[i].singleton != units[j].singleton {
			return units[i].singleton
		}
		return units[i].course.Code < units[j].course.Code
	})
	return units, nil
}

func splitRoster(students []string, parts int) [][]string {
	rosters := make([][]string, parts)
	for i := range rosters {
		rosters[i] = []string{}
	}
	for i, id := range students {
		rosters[i%parts] = append(rosters[i%parts], id)
	}
	return rosters
}

func (s *ScheduleGeneratorService) place(units []placementUnit, days []int, teachers, rooms *resourcePool, conflicting map[string]map[string]bool) ([]placedUnit, error) {
	var studentIDs []string
	for _, unit := range units {
		studentIDs = append(studentIDs, unit.students...)
	}
	students := newResourcePool(studentIDs, 0)

	singletonsAt := make(map[int][]string)
	placements := make([]placedUnit, 0, len(units))
	for _, unit := range units {
		placed := false
		for _, period := range s.candidatePeriods(unit.singleton) {
			if unit.singleton && clashesWithSingletons(unit.course.ID, singletonsAt[period], conflicting) {
				continue
			}
			if !students.FreeAll(unit.students, days, period) {
				continue
			}
			var preferredTeacher, preferredRoom string
			if unit.section != nil {
				preferredTeacher, preferredRoom = unit.section.TeacherID, unit.section.RoomID
			}
			teacherID, ok := teachers.Pick(days, period, preferredTeacher)
			if !ok {
				continue
			}
			roomID, ok := rooms.Pick(days, period, preferredRoom)
			if !ok {
				continue
			}
			teachers.Reserve(teacherID, days, period)
			rooms.Reserve(roomID, days, period)
			for _, studentID := range unit.students {
				students.Reserve(studentID, days, period)
			}
			if unit.singleton {
				singletonsAt[period] = append(singletonsAt[period], unit.course.ID)
			}
			placements = append(placements, placedUnit{unit: unit, period: period, teacherID: teacherID, roomID: roomID})
			placed = true
			break
		}
		if !placed {
			return nil, appErrors.Clone(appErrors.ErrCapacity, fmt.Sprintf("no period with a free teacher, room and student roster for course %s", unit.course.Code))
		}
	}
	return placements, nil
}

func clashesWithSingletons(courseID string, placed []string, conflicting map[string]map[string]bool) bool {
	for _, other := range placed {
		if conflicting[courseID][other] {
			return true
		}
	}
	return false
}

func (s *ScheduleGeneratorService) candidatePeriods(singleton bool) []int {
	if singleton {
		periods := make([]int, 0, s.cfg.PeriodsPerDay)
		seen := make(map[int]bool)
		for _, p := range preferredSingletonPeriods {
			if p <= s.cfg.PeriodsPerDay {
				periods = append(periods, p)
				seen[p] = true
			}
		}
		for p := 1; p <= s.cfg.PeriodsPerDay; p++ {
			if !seen[p] {
				periods = append(periods, p)
			}
		}
		return periods
	}
	periods := make([]int, s.cfg.PeriodsPerDay)
	for i := range periods {
		periods[i] = i + 1
	}
	return periods
}

func (s *ScheduleGeneratorService) periodStart(period int) models.ClockTime {
	return s.cfg.DayStart.Add((period - 1) * (s.cfg.PeriodMinutes + s.cfg.PassingMinutes))
}

func (s *ScheduleGeneratorService) slotsFor(placements []placedUnit, days []int) []models.ScheduleSlot {
	slots := make([]models.ScheduleSlot, 0, len(placements)*len(days))
	for _, placed := range placements {
		start := s.periodStart(placed.period)
		sectionID := ""
		if placed.unit.section != nil {
			sectionID = placed.unit.section.ID
		}
		for _, day := range days {
			roster := make([]string, len(placed.unit.students))
			copy(roster, placed.unit.students)
			slots = append(slots, models.ScheduleSlot{
				CourseID:     placed.unit.course.ID,
				SectionID:    sectionID,
				TeacherID:    placed.teacherID,
				RoomID:       placed.roomID,
				DayOfWeek:    day,
				StartTime:    start,
				EndTime:      start.Add(s.cfg.PeriodMinutes),
				PeriodNumber: placed.period,
				DayType:      models.DayTypeDaily,
				StudentIDs:   roster,
			})
		}
	}
	return slots
}

func normalizeDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, day := range days {
		if day < 1 || day > 7 || seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, day)
	}
	sort.Ints(out)
	return out
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return appErrors.Internal(err, "schedule generation cancelled")
	}
	return nil
}

// Enqueue validates the request and schedules it on the worker queue.
func (s *ScheduleGeneratorService) Enqueue(ctx context.Context, req dto.GenerateScheduleRequest) (*models.GenerationJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation request")
	}
	job := models.GenerationJob{
		ID:        uuid.NewString(),
		Status:    models.GenerationQueued,
		Message:   "Queued",
		UpdatedAt: s.now().UTC(),
	}
	s.jobs.Add(job.ID, job)
	if _, err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generate", Payload: req}); err != nil {
		s.jobs.Remove(job.ID)
		return nil, appErrors.Internal(err, "generation queue unavailable")
	}
	s.logger.Info("schedule generation queued",
		zap.String("job_id", job.ID),
		zap.Int("year", req.ScheduleYear),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return &job, nil
}

// Job returns the stored progress of an asynchronous generation.
func (s *ScheduleGeneratorService) Job(id string) (*models.GenerationJob, error) {
	job, ok := s.jobs.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return &job, nil
}

// Get loads a schedule with its slot arena.
func (s *ScheduleGeneratorService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.deps.Schedules.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrNotFound, "schedule not found")
	}
	slots, err := s.deps.Slots.ListBySchedule(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule slots")
	}
	if slots == nil {
		slots = []models.ScheduleSlot{}
	}
	schedule.Slots = slots
	return schedule, nil
}

func (s *ScheduleGeneratorService) handleJob(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateScheduleRequest)
	if !ok {
		s.updateJob(job.ID, func(j *models.GenerationJob) {
			j.Status = models.GenerationFailed
			j.Error = "invalid job payload"
		})
		return nil
	}
	s.updateJob(job.ID, func(j *models.GenerationJob) {
		j.Status = models.GenerationRunning
		j.Message = "Starting"
	})
	schedule, err := s.Generate(ctx, req, func(percent int, message string) {
		s.updateJob(job.ID, func(j *models.GenerationJob) {
			if percent > j.Percent {
				j.Percent = percent
			}
			j.Message = message
		})
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Status < 500 {
			s.failJob(job.ID, err)
			return nil
		}
		return err
	}
	s.updateJob(job.ID, func(j *models.GenerationJob) {
		j.Status = models.GenerationCompleted
		j.Percent = 100
		j.ScheduleID = schedule.ID
		j.Error = ""
	})
	return nil
}

func (s *ScheduleGeneratorService) jobExhausted(job jobs.Job, err error) {
	s.failJob(job.ID, err)
}

func (s *ScheduleGeneratorService) failJob(id string, err error) {
	s.updateJob(id, func(j *models.GenerationJob) {
		j.Status = models.GenerationFailed
		j.Error = err.Error()
	})
}

func (s *ScheduleGeneratorService) updateJob(id string, mutate func(*models.GenerationJob)) {
	job, ok := s.jobs.Peek(id)
	if !ok {
		job = models.GenerationJob{ID: id}
	}
	mutate(&job)
	job.UpdatedAt = s.now().UTC()
	s.jobs.Add(id, job)
}
