package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

type masterSectionRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CourseSection, error)
	ListByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.CourseSection, error)
	ListByYear(ctx context.Context, year int) ([]models.CourseSection, error)
	UpdateEnrollment(ctx context.Context, exec sqlx.ExtContext, id string, enrollment int, status models.SectionStatus) error
	MarkSingleton(ctx context.Context, exec sqlx.ExtContext, ids []string) error
	AssignPeriod(ctx context.Context, exec sqlx.ExtContext, id string, period int) error
	AddStudent(ctx context.Context, exec sqlx.ExtContext, sectionID, studentID string) error
	MoveStudents(ctx context.Context, exec sqlx.ExtContext, fromID, toID string, n int) (int64, error)
	ListStudentPeriods(ctx context.Context, studentID string) ([]int, error)
}

type masterCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListActive(ctx context.Context) ([]models.Course, error)
}

type masterRequestRepository interface {
	ListPendingByYear(ctx context.Context, year int) ([]models.CourseRequest, error)
	CountForCourse(ctx context.Context, courseID string, year int) (int, error)
}

type singletonConflictSource interface {
	ListSingleton(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error)
}

type waitlistRepository interface {
	ListActiveByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.WaitlistEntry, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id string, position int) error
	MarkEnrolled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
	MarkNotified(ctx context.Context, id string) error
}

type masterStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type masterSlotRepository interface {
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ScheduleSlot, error)
}

type masterTeacherRepository interface {
	ListActiveByDepartment(ctx context.Context, department string) ([]models.Teacher, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Teacher, error)
	UpdatePlanning(ctx context.Context, teacher *models.Teacher) error
}

// Notifier delivers scheduling notifications to students.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// MasterScheduleConfig tunes the master scheduler.
type MasterScheduleConfig struct {
	PeriodsPerDay    int
	BalanceTolerance int
	LockTimeout      time.Duration
}

// MasterScheduleRepositories groups the stores the master scheduler reads and writes.
type MasterScheduleRepositories struct {
	Sections   masterSectionRepository
	Courses    masterCourseRepository
	Requests   masterRequestRepository
	Singletons singletonConflictSource
	Waitlist   waitlistRepository
	Students   masterStudentRepository
	Slots      masterSlotRepository
	Teachers   masterTeacherRepository
}

// MasterScheduleService places singletons, balances sections, promotes waitlists and plans teacher free time.
type MasterScheduleService struct {
	repos    MasterScheduleRepositories
	notifier Notifier
	tx       txProvider
	locks    keyLocker
	metrics  *MetricsService
	cfg      MasterScheduleConfig
	logger   *zap.Logger
	now      func() time.Time
}

const (
	planningNotePrefix = "Planning Period:"
	needsPlanningNote  = "NEEDS MORE PLANNING TIME:"
	maxRecommendations = 3
)

var preferredSingletonPeriods = []int{3, 4, 5, 2, 6, 1, 7, 8}

// NewMasterScheduleService constructs the master scheduler.
func NewMasterScheduleService(
	repos MasterScheduleRepositories,
	notifier Notifier,
	tx txProvider,
	locks *lock.KeyedMutex,
	metrics *MetricsService,
	cfg MasterScheduleConfig,
	logger *zap.Logger,
) *MasterScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PeriodsPerDay <= 0 {
		cfg.PeriodsPerDay = 8
	}
	if cfg.BalanceTolerance < 0 {
		cfg.BalanceTolerance = 0
	}
	return &MasterScheduleService{
		repos:    repos,
		notifier: notifier,
		tx:       tx,
		locks:    newKeyLocker(locks, cfg.LockTimeout),
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// IdentifySingletons flags and returns the year's single-offering sections.
func (s *MasterScheduleService) IdentifySingletons(ctx context.Context, year int) ([]models.CourseSection, error) {
	sections, err := s.repos.Sections.ListByYear(ctx, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sections")
	}
	courses, err := s.repos.Courses.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	courseByID := make(map[string]models.Course, len(courses))
	for _, course := range courses {
		courseByID[course.ID] = course
	}

	singletons := make([]models.CourseSection, 0)
	ids := make([]string, 0)
	decided := make(map[string]bool)
	for _, section := range sections {
		isSingleton, ok := decided[section.CourseID]
		if !ok {
			isSingleton = s.courseIsSingleton(ctx, courseByID, section, year)
			decided[section.CourseID] = isSingleton
		}
		if !isSingleton {
			continue
		}
		section.IsSingleton = true
		singletons = append(singletons, section)
		ids = append(ids, section.ID)
	}

	if err := s.repos.Sections.MarkSingleton(ctx, nil, ids); err != nil {
		return nil, appErrors.Internal(err, "failed to flag singleton sections")
	}
	s.logger.Info("singletons identified", zap.Int("year", year), zap.Int("sections", len(singletons)))
	return singletons, nil
}

func (s *MasterScheduleService) courseIsSingleton(ctx context.Context, courses map[string]models.Course, section models.CourseSection, year int) bool {
	course, ok := courses[section.CourseID]
	if !ok {
		return section.IsSingleton
	}
	if course.IsSingleton {
		return true
	}
	if course.SectionsNeeded != 1 {
		return false
	}
	capacity := section.MaxEnrollment
	if capacity <= 0 {
		capacity = course.MaxStudents
	}
	requested, err := s.repos.Requests.CountForCourse(ctx, course.ID, year)
	if err != nil {
		s.logger.Warn("failed to count course requests", zap.String("course_id", course.ID), zap.Error(err))
		return false
	}
	return requested <= capacity
}

// IsSingleton reports whether the course is offered as a singleton in year.
func (s *MasterScheduleService) IsSingleton(ctx context.Context, courseID string, year int) (bool, error) {
	course, err := s.repos.Courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load course")
	}
	if course.IsSingleton {
		return true, nil
	}
	sections, err := s.repos.Sections.ListByCourse(ctx, nil, courseID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to list sections")
	}
	for _, section := range sections {
		if section.ScheduleYear == year && section.IsSingleton {
			return true, nil
		}
	}
	return false, nil
}

// ScheduleSingletons spreads singleton sections over middle periods, keeping conflicting singletons apart.
func (s *MasterScheduleService) ScheduleSingletons(ctx context.Context, year int) ([]models.CourseSection, error) {
	singletons, err := s.IdentifySingletons(ctx, year)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.singletonConflictPairs(ctx, year)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(singletons, func(i, j int) bool {
		return singletons[i].CourseID < singletons[j].CourseID
	})

	periods := s.periodOrder()
	placed := make(map[int][]string)
	for i := range singletons {
		period := pickSingletonPeriod(periods, placed, conflicts, singletons[i].CourseID)
		if period == 0 {
			period = leastLoadedPeriod(periods, placed)
			s.logger.Warn("no conflict-free period for singleton",
				zap.String("section_id", singletons[i].ID),
				zap.String("course_id", singletons[i].CourseID),
				zap.Int("fallback_period", period),
			)
		}
		placed[period] = append(placed[period], singletons[i].CourseID)
		p := period
		singletons[i].AssignedPeriod = &p
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		for _, section := range singletons {
			if err := s.repos.Sections.AssignPeriod(ctx, tx, section.ID, *section.AssignedPeriod); err != nil {
				return appErrors.Internal(err, "failed to assign singleton period")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return singletons, nil
}

func (s *MasterScheduleService) periodOrder() []int {
	periods := make([]int, 0, s.cfg.PeriodsPerDay)
	for _, p := range preferredSingletonPeriods {
		if p <= s.cfg.PeriodsPerDay {
			periods = append(periods, p)
		}
	}
	for p := len(preferredSingletonPeriods) + 1; p <= s.cfg.PeriodsPerDay; p++ {
		periods = append(periods, p)
	}
	return periods
}

func (s *MasterScheduleService) singletonConflictPairs(ctx context.Context, year int) (map[string]map[string]bool, error) {
	pairs := make(map[string]map[string]bool)
	if s.repos.Singletons == nil {
		return pairs, nil
	}
	entries, err := s.repos.Singletons.ListSingleton(ctx, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load singleton conflicts")
	}
	for _, entry := range entries {
		if entry.ConflictCount <= 0 {
			continue
		}
		markPair(pairs, entry.Course1ID, entry.Course2ID)
	}
	return pairs, nil
}

func markPair(pairs map[string]map[string]bool, a, b string) {
	if pairs[a] == nil {
		pairs[a] = make(map[string]bool)
	}
	if pairs[b] == nil {
		pairs[b] = make(map[string]bool)
	}
	pairs[a][b] = true
	pairs[b][a] = true
}

func pickSingletonPeriod(periods []int, placed map[int][]string, conflicts map[string]map[string]bool, courseID string) int {
	for _, period := range periods {
		clash := false
		for _, other := range placed[period] {
			if other == courseID || conflicts[courseID][other] {
				clash = true
				break
			}
		}
		if !clash {
			return period
		}
	}
	return 0
}

func leastLoadedPeriod(periods []int, placed map[int][]string) int {
	best := periods[0]
	for _, period := range periods[1:] {
		if len(placed[period]) < len(placed[best]) {
			best = period
		}
	}
	return best
}

// BalanceSections moves students one at a time from the fullest to the emptiest section until the spread is within tolerance.
func (s *MasterScheduleService) BalanceSections(ctx context.Context, courseID string, tolerance int) (*models.BalanceResult, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	if tolerance < 0 {
		tolerance = s.cfg.BalanceTolerance
	}
	if _, err := s.repos.Courses.FindByID(ctx, courseID); err != nil {
		return nil, notFoundAs(err, appErrors.ErrCapacity, "course not found")
	}

	unlock, err := s.locks.acquire(ctx, lock.CourseKey(courseID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &models.BalanceResult{CourseID: courseID, Before: map[string]int{}, After: map[string]int{}}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		sections, err := s.repos.Sections.ListByCourse(ctx, tx, courseID)
		if err != nil {
			return appErrors.Internal(err, "failed to list sections")
		}
		if len(sections) == 0 {
			return appErrors.Clone(appErrors.ErrCapacity, "course has no sections to balance")
		}
		for _, section := range sections {
			result.Before[section.ID] = section.CurrentEnrollment
		}

		moves := planBalanceMoves(sections, tolerance)
		for _, move := range moves {
			moved, err := s.repos.Sections.MoveStudents(ctx, tx, sections[move.from].ID, sections[move.to].ID, move.count)
			if err != nil {
				return appErrors.Internal(err, "failed to move students")
			}
			if int(moved) != move.count {
				s.logger.Warn("roster smaller than enrollment count",
					zap.String("section_id", sections[move.from].ID),
					zap.Int("expected", move.count),
					zap.Int64("moved", moved),
				)
			}
			result.MovedStudents += move.count
		}
		for _, section := range sections {
			if section.CurrentEnrollment == result.Before[section.ID] {
				continue
			}
			if err := s.repos.Sections.UpdateEnrollment(ctx, tx, section.ID, section.CurrentEnrollment, section.StatusFor(section.CurrentEnrollment)); err != nil {
				return appErrors.Internal(err, "failed to update section enrollment")
			}
		}
		for _, section := range sections {
			result.After[section.ID] = section.CurrentEnrollment
		}
		min, max := enrollmentRange(sections)
		result.Balanced = max-min <= tolerance
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sections balanced", zap.String("course_id", courseID), zap.Int("moved", result.MovedStudents), zap.Bool("balanced", result.Balanced))
	return result, nil
}

type balanceMove struct {
	from, to int
	count    int
}

// planBalanceMoves mutates sections' enrollment and returns the aggregated moves.
func planBalanceMoves(sections []models.CourseSection, tolerance int) []balanceMove {
	totals := make(map[[2]int]int)
	var order [][2]int
	limit := 0
	for _, section := range sections {
		limit += section.CurrentEnrollment
	}
	for step := 0; step < limit; step++ {
		maxIdx, minIdx := -1, -1
		for i, section := range sections {
			if section.Status == models.SectionStatusClosed {
				continue
			}
			if maxIdx == -1 || section.CurrentEnrollment > sections[maxIdx].CurrentEnrollment {
				maxIdx = i
			}
			if section.CurrentEnrollment >= section.MaxEnrollment {
				continue
			}
			if minIdx == -1 || section.CurrentEnrollment < sections[minIdx].CurrentEnrollment {
				minIdx = i
			}
		}
		if maxIdx == -1 || minIdx == -1 || maxIdx == minIdx {
			break
		}
		spread := sections[maxIdx].CurrentEnrollment - sections[minIdx].CurrentEnrollment
		if spread <= tolerance || spread < 2 {
			break
		}
		sections[maxIdx].CurrentEnrollment--
		sections[minIdx].CurrentEnrollment++
		key := [2]int{maxIdx, minIdx}
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key]++
	}
	moves := make([]balanceMove, 0, len(order))
	for _, key := range order {
		moves = append(moves, balanceMove{from: key[0], to: key[1], count: totals[key]})
	}
	return moves
}

func enrollmentRange(sections []models.CourseSection) (int, int) {
	if len(sections) == 0 {
		return 0, 0
	}
	min, max := sections[0].CurrentEnrollment, sections[0].CurrentEnrollment
	for _, section := range sections[1:] {
		if section.CurrentEnrollment < min {
			min = section.CurrentEnrollment
		}
		if section.CurrentEnrollment > max {
			max = section.CurrentEnrollment
		}
	}
	return min, max
}

// GetSectionBalanceReport summarises enrollment spread for a course.
func (s *MasterScheduleService) GetSectionBalanceReport(ctx context.Context, courseID string) (*models.SectionBalanceReport, error) {
	course, err := s.repos.Courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrNotFound, "course not found")
	}
	sections, err := s.repos.Sections.ListByCourse(ctx, nil, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sections")
	}
	report := &models.SectionBalanceReport{
		CourseID:             course.ID,
		CourseName:           course.Name,
		CourseCode:           course.Code,
		TotalSections:        len(sections),
		PerSectionEnrollment: make(map[string]int, len(sections)),
	}
	if len(sections) == 0 {
		report.IsBalanced = true
		return report, nil
	}
	total := 0
	for _, section := range sections {
		total += section.CurrentEnrollment
		report.PerSectionEnrollment[fmt.Sprintf("Section %d", section.SectionNumber)] = section.CurrentEnrollment
	}
	avg := float64(total) / float64(len(sections))
	report.AverageEnrollment = &avg
	report.MinEnrollment, report.MaxEnrollment = enrollmentRange(sections)
	report.Imbalance = report.MaxEnrollment - report.MinEnrollment
	report.IsBalanced = report.Imbalance <= s.cfg.BalanceTolerance
	return report, nil
}

// VerifySectionBalance checks every multi-section course of a year against tolerance.
func (s *MasterScheduleService) VerifySectionBalance(ctx context.Context, year, tolerance int) (*models.BalanceVerification, error) {
	if tolerance < 0 {
		tolerance = s.cfg.BalanceTolerance
	}
	sections, err := s.repos.Sections.ListByYear(ctx, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sections")
	}
	byCourse := groupSectionsByCourse(sections)
	result := &models.BalanceVerification{ScheduleYear: year, Tolerance: tolerance, UnbalancedCourse: []string{}}
	for _, courseID := range sortedKeys(byCourse) {
		group := byCourse[courseID]
		if len(group) < 2 {
			continue
		}
		min, max := enrollmentRange(group)
		if max-min > tolerance {
			result.UnbalancedCourse = append(result.UnbalancedCourse, courseID)
		}
	}
	result.Balanced = len(result.UnbalancedCourse) == 0
	return result, nil
}

// AddToWaitlist queues a student for a course, returning the existing ACTIVE entry when present.
func (s *MasterScheduleService) AddToWaitlist(ctx context.Context, studentID, courseID string, priorityWeight int) (*models.WaitlistEntry, error) {
	if studentID == "" || courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and course are required")
	}
	if _, err := s.repos.Courses.FindByID(ctx, courseID); err != nil {
		return nil, notFoundAs(err, appErrors.ErrValidation, "course not found")
	}
	if _, err := s.repos.Students.FindByID(ctx, studentID); err != nil {
		return nil, notFoundAs(err, appErrors.ErrValidation, "student not found")
	}

	unlock, err := s.locks.acquire(ctx, lock.CourseKey(courseID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *models.WaitlistEntry
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		entries, err := s.repos.Waitlist.ListActiveByCourse(ctx, tx, courseID)
		if err != nil {
			return appErrors.Internal(err, "failed to load waitlist")
		}
		for i := range entries {
			if entries[i].StudentID == studentID {
				result = &entries[i]
				return nil
			}
		}
		entry := &models.WaitlistEntry{
			StudentID:      studentID,
			CourseID:       courseID,
			PriorityWeight: priorityWeight,
			Status:         models.WaitlistActive,
			AddedAt:        s.now().UTC(),
		}
		if err := s.repos.Waitlist.Create(ctx, tx, entry); err != nil {
			return appErrors.Internal(err, "failed to create waitlist entry")
		}
		entries = append(entries, *entry)
		ranked, err := s.rerank(ctx, tx, entries)
		if err != nil {
			return err
		}
		for i := range ranked {
			if ranked[i].ID == entry.ID {
				result = &ranked[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RankWaitlist orders entries by priority weight desc then added time asc and assigns positions 1..n.
func RankWaitlist(entries []models.WaitlistEntry) []models.WaitlistEntry {
	ranked := make([]models.WaitlistEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PriorityWeight != ranked[j].PriorityWeight {
			return ranked[i].PriorityWeight > ranked[j].PriorityWeight
		}
		return ranked[i].AddedAt.Before(ranked[j].AddedAt)
	})
	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}

func (s *MasterScheduleService) rerank(ctx context.Context, tx sqlx.ExtContext, entries []models.WaitlistEntry) ([]models.WaitlistEntry, error) {
	previous := make(map[string]int, len(entries))
	for _, entry := range entries {
		previous[entry.ID] = entry.Position
	}
	ranked := RankWaitlist(entries)
	for _, entry := range ranked {
		if previous[entry.ID] == entry.Position {
			continue
		}
		if err := s.repos.Waitlist.UpdatePosition(ctx, tx, entry.ID, entry.Position); err != nil {
			return nil, appErrors.Internal(err, "failed to update waitlist position")
		}
	}
	return ranked, nil
}

// EnrollFromWaitlist promotes the first eligible waitlisted student into the section.
func (s *MasterScheduleService) EnrollFromWaitlist(ctx context.Context, sectionID string) (bool, error) {
	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, lock.CourseKey(section.CourseID))
	if err != nil {
		return false, err
	}
	defer unlock()

	entry, err := s.promote(ctx, sectionID)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	s.notifyPromotion(ctx, *entry, sectionID)
	return true, nil
}

// ProcessWaitlist promotes students until the section is full or nobody eligible remains.
func (s *MasterScheduleService) ProcessWaitlist(ctx context.Context, sectionID string) (int, error) {
	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return 0, err
	}
	unlock, err := s.locks.acquire(ctx, lock.CourseKey(section.CourseID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	promoted := 0
	for {
		if err := ctx.Err(); err != nil {
			return promoted, appErrors.Internal(err, "waitlist processing cancelled")
		}
		entry, err := s.promote(ctx, sectionID)
		if err != nil {
			return promoted, err
		}
		if entry == nil {
			return promoted, nil
		}
		promoted++
		s.notifyPromotion(ctx, *entry, sectionID)
	}
}

func (s *MasterScheduleService) loadSection(ctx context.Context, sectionID string) (*models.CourseSection, error) {
	if sectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section id is required")
	}
	section, err := s.repos.Sections.FindByID(ctx, nil, sectionID)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrValidation, "section not found")
	}
	return section, nil
}

// promote enrolls one eligible entry; the caller holds the course lock.
func (s *MasterScheduleService) promote(ctx context.Context, sectionID string) (*models.WaitlistEntry, error) {
	var promoted *models.WaitlistEntry
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		section, err := s.repos.Sections.FindByID(ctx, tx, sectionID)
		if err != nil {
			return notFoundAs(err, appErrors.ErrValidation, "section not found")
		}
		if !section.HasSeat() {
			return nil
		}
		entries, err := s.repos.Waitlist.ListActiveByCourse(ctx, tx, section.CourseID)
		if err != nil {
			return appErrors.Internal(err, "failed to load waitlist")
		}
		ranked := RankWaitlist(entries)

		chosen := -1
		for i, entry := range ranked {
			eligible, err := s.CanEnrollStudent(ctx, entry.StudentID, sectionID)
			if err != nil {
				return err
			}
			if eligible {
				chosen = i
				break
			}
		}
		if chosen == -1 {
			return nil
		}

		entry := ranked[chosen]
		enrollment := section.CurrentEnrollment + 1
		if err := s.repos.Sections.UpdateEnrollment(ctx, tx, section.ID, enrollment, section.StatusFor(enrollment)); err != nil {
			return appErrors.Internal(err, "failed to update section enrollment")
		}
		if err := s.repos.Sections.AddStudent(ctx, tx, section.ID, entry.StudentID); err != nil {
			return appErrors.Internal(err, "failed to add student to roster")
		}
		at := s.now().UTC()
		if err := s.repos.Waitlist.MarkEnrolled(ctx, tx, entry.ID, at); err != nil {
			return appErrors.Internal(err, "failed to mark waitlist entry enrolled")
		}
		remaining := append(append([]models.WaitlistEntry{}, ranked[:chosen]...), ranked[chosen+1:]...)
		if _, err := s.rerank(ctx, tx, remaining); err != nil {
			return err
		}
		entry.Status = models.WaitlistEnrolled
		entry.EnrolledAt = &at
		entry.Position = 0
		promoted = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

func (s *MasterScheduleService) notifyPromotion(ctx context.Context, entry models.WaitlistEntry, sectionID string) {
	s.metrics.RecordWaitlistPromotion()
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, models.Notification{
		Type:      "WAITLIST_ENROLLED",
		StudentID: entry.StudentID,
		Subject:   "You have been enrolled from the waitlist",
		Data:      map[string]string{"course_id": entry.CourseID, "section_id": sectionID},
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to send waitlist notification", zap.String("entry_id", entry.ID), zap.Error(err))
		return
	}
	if err := s.repos.Waitlist.MarkNotified(ctx, entry.ID); err != nil {
		s.logger.Warn("failed to mark waitlist notification", zap.String("entry_id", entry.ID), zap.Error(err))
	}
}

// CanEnrollStudent reports whether the student may join the section without a seat, hold or time clash.
func (s *MasterScheduleService) CanEnrollStudent(ctx context.Context, studentID, sectionID string) (bool, error) {
	if studentID == "" || sectionID == "" {
		return false, nil
	}
	section, err := s.repos.Sections.FindByID(ctx, nil, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load section")
	}
	if !section.HasSeat() {
		return false, nil
	}
	student, err := s.repos.Students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load student")
	}
	if !student.Active || student.HasHold {
		return false, nil
	}

	sectionSlots, err := s.repos.Slots.ListBySection(ctx, sectionID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to load section slots")
	}
	studentSlots, err := s.repos.Slots.ListByStudent(ctx, studentID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to load student slots")
	}
	for _, candidate := range sectionSlots {
		for _, held := range studentSlots {
			if held.ID == candidate.ID || held.SectionID == sectionID {
				continue
			}
			if candidate.TimeSlot().Overlaps(held.TimeSlot()) {
				return false, nil
			}
		}
	}

	if section.AssignedPeriod != nil {
		periods, err := s.repos.Sections.ListStudentPeriods(ctx, studentID)
		if err != nil {
			return false, appErrors.Internal(err, "failed to load student periods")
		}
		for _, period := range periods {
			if period == *section.AssignedPeriod {
				return false, nil
			}
		}
	}
	return true, nil
}

// AssignCommonPlanningTime gives every active teacher in a department the same planning period.
func (s *MasterScheduleService) AssignCommonPlanningTime(ctx context.Context, department string, period int) (int, error) {
	if strings.TrimSpace(department) == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}
	if period < 1 || period > s.cfg.PeriodsPerDay {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("period must be between 1 and %d", s.cfg.PeriodsPerDay))
	}
	teachers, err := s.repos.Teachers.ListActiveByDepartment(ctx, department)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list department teachers")
	}
	note := fmt.Sprintf("%s %d", planningNotePrefix, period)
	for i := range teachers {
		p := period
		teachers[i].PlanningPeriod = &p
		teachers[i].Notes = replaceNote(teachers[i].Notes, planningNotePrefix, note)
		if err := s.repos.Teachers.UpdatePlanning(ctx, &teachers[i]); err != nil {
			return 0, appErrors.Internal(err, "failed to update teacher planning period")
		}
	}
	s.logger.Info("common planning time assigned", zap.String("department", department), zap.Int("period", period), zap.Int("teachers", len(teachers)))
	return len(teachers), nil
}

// RecommendPlanningPeriods returns up to three periods where every listed teacher is free.
func (s *MasterScheduleService) RecommendPlanningPeriods(ctx context.Context, scheduleID string, teacherIDs []string) ([]int, error) {
	if len(teacherIDs) == 0 {
		out := make([]int, 0, maxRecommendations)
		for p := 1; p <= s.cfg.PeriodsPerDay && len(out) < maxRecommendations; p++ {
			out = append(out, p)
		}
		return out, nil
	}
	slots, err := s.repos.Slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule slots")
	}
	busy := busyPeriods(slots)

	type candidate struct {
		period int
		free   int
	}
	candidates := make([]candidate, 0)
	for p := 1; p <= s.cfg.PeriodsPerDay; p++ {
		allFree := true
		for _, id := range teacherIDs {
			if busy[id][p] {
				allFree = false
				break
			}
		}
		if !allFree {
			continue
		}
		free := 0
		for _, periods := range busy {
			if !periods[p] {
				free++
			}
		}
		candidates = append(candidates, candidate{period: p, free: free})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].free != candidates[j].free {
			return candidates[i].free > candidates[j].free
		}
		return candidates[i].period < candidates[j].period
	})
	out := make([]int, 0, maxRecommendations)
	for _, c := range candidates {
		if len(out) == maxRecommendations {
			break
		}
		out = append(out, c.period)
	}
	return out, nil
}

// EnsureMinimumPlanningTime flags teachers whose fewest daily free periods fall below minPeriods.
func (s *MasterScheduleService) EnsureMinimumPlanningTime(ctx context.Context, scheduleID string, minPeriods int) ([]string, error) {
	if minPeriods < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minimum periods must not be negative")
	}
	slots, err := s.repos.Slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule slots")
	}
	teaching := make(map[string]map[int]map[int]bool)
	for _, slot := range slots {
		if slot.TeacherID == "" || slot.DayOfWeek == 0 || slot.PeriodNumber <= 0 {
			continue
		}
		if teaching[slot.TeacherID] == nil {
			teaching[slot.TeacherID] = make(map[int]map[int]bool)
		}
		if teaching[slot.TeacherID][slot.DayOfWeek] == nil {
			teaching[slot.TeacherID][slot.DayOfWeek] = make(map[int]bool)
		}
		teaching[slot.TeacherID][slot.DayOfWeek][slot.PeriodNumber] = true
	}
	if len(teaching) == 0 {
		return []string{}, nil
	}

	ids := sortedKeys(teaching)
	teachers, err := s.repos.Teachers.ListByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teachers")
	}
	flagged := make([]string, 0)
	for i := range teachers {
		days := teaching[teachers[i].ID]
		fewest := s.cfg.PeriodsPerDay
		for _, periods := range days {
			if free := s.cfg.PeriodsPerDay - len(periods); free < fewest {
				fewest = free
			}
		}
		if fewest >= minPeriods {
			continue
		}
		note := fmt.Sprintf("%s Currently has %d periods, needs %d", needsPlanningNote, fewest, minPeriods)
		teachers[i].Notes = replaceNote(teachers[i].Notes, needsPlanningNote, note)
		if err := s.repos.Teachers.UpdatePlanning(ctx, &teachers[i]); err != nil {
			return nil, appErrors.Internal(err, "failed to flag teacher planning time")
		}
		flagged = append(flagged, teachers[i].ID)
	}
	return flagged, nil
}

// AreSingletonsConflictFree reports whether no student must attend two single-offering courses in one period.
func (s *MasterScheduleService) AreSingletonsConflictFree(ctx context.Context, year int) (bool, error) {
	sections, err := s.repos.Sections.ListByYear(ctx, year)
	if err != nil {
		return false, appErrors.Internal(err, "failed to list sections")
	}
	requests, err := s.repos.Requests.ListPendingByYear(ctx, year)
	if err != nil {
		return false, appErrors.Internal(err, "failed to list course requests")
	}

	fixedPeriod := make(map[string]int)
	for courseID, group := range groupSectionsByCourse(sections) {
		singleton := len(group) == 1
		for _, section := range group {
			singleton = singleton || section.IsSingleton
		}
		if !singleton {
			continue
		}
		period := 0
		for _, section := range group {
			if section.AssignedPeriod == nil {
				period = 0
				break
			}
			if period != 0 && period != *section.AssignedPeriod {
				period = 0
				break
			}
			period = *section.AssignedPeriod
		}
		if period > 0 {
			fixedPeriod[courseID] = period
		}
	}

	occupied := make(map[string]map[int]string)
	for _, req := range requests {
		period, ok := fixedPeriod[req.CourseID]
		if !ok || req.StudentID == "" {
			continue
		}
		if occupied[req.StudentID] == nil {
			occupied[req.StudentID] = make(map[int]string)
		}
		if other, taken := occupied[req.StudentID][period]; taken && other != req.CourseID {
			s.logger.Info("singleton period clash",
				zap.String("student_id", req.StudentID),
				zap.String("course_a", other),
				zap.String("course_b", req.CourseID),
				zap.Int("period", period),
			)
			return false, nil
		}
		occupied[req.StudentID][period] = req.CourseID
	}
	return true, nil
}

func busyPeriods(slots []models.ScheduleSlot) map[string]map[int]bool {
	busy := make(map[string]map[int]bool)
	for _, slot := range slots {
		if slot.TeacherID == "" {
			continue
		}
		if busy[slot.TeacherID] == nil {
			busy[slot.TeacherID] = make(map[int]bool)
		}
		if slot.PeriodNumber > 0 {
			busy[slot.TeacherID][slot.PeriodNumber] = true
		}
	}
	return busy
}

// replaceNote swaps any line starting with prefix for note, appending when absent.
func replaceNote(notes, prefix, note string) string {
	lines := make([]string, 0)
	for _, line := range strings.Split(notes, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, prefix) {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, note)
	return strings.Join(lines, "\n")
}

func groupSectionsByCourse(sections []models.CourseSection) map[string][]models.CourseSection {
	grouped := make(map[string][]models.CourseSection)
	for _, section := range sections {
		grouped[section.CourseID] = append(grouped[section.CourseID], section)
	}
	return grouped
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
