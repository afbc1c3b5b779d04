package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/config"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

type healthSlotReader interface {
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error)
}

type healthSectionReader interface {
	ListByYear(ctx context.Context, year int) ([]models.CourseSection, error)
}

type healthTeacherReader interface {
	ListActive(ctx context.Context) ([]models.Teacher, error)
}

type healthRoomReader interface {
	ListActive(ctx context.Context) ([]models.Room, error)
}

type healthStudentCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type healthScheduleReader interface {
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
}

// ScheduleHealthRepositories groups the read-only stores the health scorer scans.
type ScheduleHealthRepositories struct {
	Schedules healthScheduleReader
	Slots     healthSlotReader
	Sections  healthSectionReader
	Teachers  healthTeacherReader
	Rooms     healthRoomReader
	Students  healthStudentCounter
}

// ScheduleHealthService scores schedules on conflicts, balance, utilization, compliance and coverage.
type ScheduleHealthService struct {
	repos   ScheduleHealthRepositories
	cfg     config.HealthConfig
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

const weightTolerance = 1e-6

// NewScheduleHealthService validates the weights and constructs the scorer.
func NewScheduleHealthService(repos ScheduleHealthRepositories, cfg config.HealthConfig, metrics *MetricsService, logger *zap.Logger) (*ScheduleHealthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if math.Abs(cfg.Weights.Sum()-1) > weightTolerance {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("health weights sum to %.4f, expected 1.0", cfg.Weights.Sum()))
	}
	applyHealthDefaults(&cfg)
	return &ScheduleHealthService{repos: repos, cfg: cfg, metrics: metrics, logger: logger, now: time.Now}, nil
}

func applyHealthDefaults(cfg *config.HealthConfig) {
	if cfg.AcceptableScore <= 0 {
		cfg.AcceptableScore = 70
	}
	if cfg.BalanceTolerance < 0 {
		cfg.BalanceTolerance = 0
	}
	if cfg.ExpectedCourseLoad <= 0 {
		cfg.ExpectedCourseLoad = 6
	}
	if cfg.TeacherWeeklyCapacity <= 0 {
		cfg.TeacherWeeklyCapacity = 30
	}
	if cfg.RoomWeeklyCapacity <= 0 {
		cfg.RoomWeeklyCapacity = 30
	}
	if cfg.PeriodsPerDay <= 0 {
		cfg.PeriodsPerDay = 8
	}
	if cfg.ConflictPenalty <= 0 {
		cfg.ConflictPenalty = 10
	}
	if cfg.TeacherBandHigh <= 0 {
		cfg.TeacherBandLow, cfg.TeacherBandHigh = 70, 85
	}
	if cfg.RoomBandHigh <= 0 {
		cfg.RoomBandLow, cfg.RoomBandHigh = 60, 80
	}
}

// Threshold is the score a schedule must exceed to be acceptable.
func (s *ScheduleHealthService) Threshold() float64 {
	return s.cfg.AcceptableScore
}

type healthInputs struct {
	slots    []models.ScheduleSlot
	sections []models.CourseSection
	teachers []models.Teacher
	rooms    []models.Room
	students int
}

func (s *ScheduleHealthService) load(ctx context.Context, schedule *models.Schedule) (*healthInputs, error) {
	in := &healthInputs{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(schedule.Slots) > 0 || schedule.ID == "" {
			in.slots = schedule.Slots
			return nil
		}
		slots, err := s.repos.Slots.ListBySchedule(gctx, schedule.ID)
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		in.slots = slots
		return nil
	})
	g.Go(func() error {
		sections, err := s.repos.Sections.ListByYear(gctx, schedule.ScheduleYear)
		if err != nil {
			return fmt.Errorf("list sections: %w", err)
		}
		in.sections = sections
		return nil
	})
	g.Go(func() error {
		teachers, err := s.repos.Teachers.ListActive(gctx)
		if err != nil {
			return fmt.Errorf("list teachers: %w", err)
		}
		in.teachers = teachers
		return nil
	})
	g.Go(func() error {
		rooms, err := s.repos.Rooms.ListActive(gctx)
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		in.rooms = rooms
		return nil
	})
	g.Go(func() error {
		count, err := s.repos.Students.CountActive(gctx)
		if err != nil {
			return fmt.Errorf("count students: %w", err)
		}
		in.students = count
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule health inputs")
	}
	return in, nil
}

// CalculateHealthMetrics evaluates every component score of a schedule.
func (s *ScheduleHealthService) CalculateHealthMetrics(ctx context.Context, schedule *models.Schedule) (*models.HealthMetrics, error) {
	if schedule == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule is required")
	}
	in, err := s.load(ctx, schedule)
	if err != nil {
		return nil, err
	}

	live := len(FindSlotConflicts(in.slots, s.logger))
	balance, unbalanced := s.balanceScore(in.sections)
	violations := s.complianceViolations(in.slots, in.teachers)

	metrics := &models.HealthMetrics{
		ScheduleID:         schedule.ID,
		ConflictScore:      s.conflictScore(len(in.slots), live),
		BalanceScore:       balance,
		UtilizationScore:   s.utilizationScore(in.slots, in.teachers, in.rooms),
		ComplianceScore:    complianceScore(violations, len(in.teachers)),
		CoverageScore:      s.coverageScore(in.sections, in.students),
		UnbalancedSections: unbalanced,
		CalculatedAt:       s.now().UTC(),
	}

	metrics.TotalConflicts = schedule.TotalConflicts
	if live > metrics.TotalConflicts {
		metrics.TotalConflicts = live
	}
	metrics.CriticalConflicts = live
	metrics.WarningConflicts = metrics.TotalConflicts - metrics.CriticalConflicts
	for _, section := range in.sections {
		if section.CurrentEnrollment > section.MaxEnrollment {
			metrics.OverEnrolledSections++
		}
	}

	w := s.cfg.Weights
	overall := metrics.ConflictScore*w.Conflict +
		metrics.BalanceScore*w.Balance +
		metrics.UtilizationScore*w.Utilization +
		metrics.ComplianceScore*w.Compliance +
		metrics.CoverageScore*w.Coverage
	metrics.OverallScore = round1(clamp(overall, 0, 100))

	metrics.CriticalIssues = criticalIssues(metrics, live, violations)
	metrics.Recommendations = recommendations(metrics)

	s.metrics.SetHealthScore(schedule.ID, metrics.OverallScore)
	s.logger.Debug("schedule health calculated",
		zap.String("schedule_id", schedule.ID),
		zap.Float64("overall", metrics.OverallScore),
		zap.Int("live_conflicts", live),
	)
	return metrics, nil
}

// CalculateHealthScore returns only the overall score.
func (s *ScheduleHealthService) CalculateHealthScore(ctx context.Context, schedule *models.Schedule) (float64, error) {
	metrics, err := s.CalculateHealthMetrics(ctx, schedule)
	if err != nil {
		return 0, err
	}
	return metrics.OverallScore, nil
}

// IsScheduleAcceptable reports whether the overall score exceeds the threshold. Errors count as unacceptable.
func (s *ScheduleHealthService) IsScheduleAcceptable(ctx context.Context, schedule *models.Schedule) bool {
	score, err := s.CalculateHealthScore(ctx, schedule)
	if err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return false
	}
	return score > s.cfg.AcceptableScore
}

// GetHealthSummary renders the metrics as plain text.
func (s *ScheduleHealthService) GetHealthSummary(ctx context.Context, schedule *models.Schedule) (string, error) {
	metrics, err := s.CalculateHealthMetrics(ctx, schedule)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Schedule Health Summary\n")
	b.WriteString("=======================\n")
	if schedule.Name != "" {
		fmt.Fprintf(&b, "Schedule: %s\n", schedule.Name)
	}
	fmt.Fprintf(&b, "Overall Score: %.1f/100 (%s)\n", metrics.OverallScore, HealthGrade(metrics.OverallScore))
	fmt.Fprintf(&b, "Conflict Score: %.1f\n", metrics.ConflictScore)
	fmt.Fprintf(&b, "Balance Score: %.1f\n", metrics.BalanceScore)
	fmt.Fprintf(&b, "Utilization Score: %.1f\n", metrics.UtilizationScore)
	fmt.Fprintf(&b, "Compliance Score: %.1f\n", metrics.ComplianceScore)
	fmt.Fprintf(&b, "Coverage Score: %.1f\n", metrics.CoverageScore)
	fmt.Fprintf(&b, "Total Conflicts: %d (critical %d, warning %d)\n", metrics.TotalConflicts, metrics.CriticalConflicts, metrics.WarningConflicts)
	if len(metrics.CriticalIssues) > 0 {
		b.WriteString("Critical Issues:\n")
		for _, issue := range metrics.CriticalIssues {
			fmt.Fprintf(&b, "  - %s\n", issue)
		}
	}
	if len(metrics.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, rec := range metrics.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	return b.String(), nil
}

// LoadSchedule fetches a schedule header for health evaluation.
func (s *ScheduleHealthService) LoadSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.repos.Schedules.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrNotFound, "schedule not found")
	}
	return schedule, nil
}

// HealthGrade labels an overall score.
func HealthGrade(score float64) string {
	switch {
	case score >= 90:
		return "EXCELLENT"
	case score >= 80:
		return "GOOD"
	case score >= 70:
		return "FAIR"
	default:
		return "POOR"
	}
}

func (s *ScheduleHealthService) conflictScore(slots, live int) float64 {
	if slots == 0 {
		return 0
	}
	return math.Max(0, 100-s.cfg.ConflictPenalty*float64(live))
}

func (s *ScheduleHealthService) balanceScore(sections []models.CourseSection) (float64, int) {
	tolerance := s.cfg.BalanceTolerance
	var (
		courses    int
		totalCost  float64
		unbalanced int
	)
	for _, group := range groupSectionsByCourse(sections) {
		if len(group) < 2 {
			continue
		}
		courses++
		min, max := enrollmentRange(group)
		spread := max - min
		if spread <= tolerance {
			continue
		}
		totalCost += math.Min(100, float64(spread-tolerance)*5)
		unbalanced += len(group)
	}
	if courses == 0 {
		return 100, 0
	}
	return 100 - totalCost/float64(courses), unbalanced
}

func (s *ScheduleHealthService) utilizationScore(slots []models.ScheduleSlot, teachers []models.Teacher, rooms []models.Room) float64 {
	teacherLoad := make(map[string]int)
	roomLoad := make(map[string]int)
	for _, slot := range slots {
		if slot.TeacherID != "" {
			teacherLoad[slot.TeacherID]++
		}
		if slot.RoomID != "" {
			roomLoad[slot.RoomID]++
		}
	}

	var averages []float64
	if len(teachers) > 0 {
		var sum float64
		for _, teacher := range teachers {
			pct := float64(teacherLoad[teacher.ID]) / float64(s.cfg.TeacherWeeklyCapacity) * 100
			sum += bandScore(pct, s.cfg.TeacherBandLow, s.cfg.TeacherBandHigh)
		}
		averages = append(averages, sum/float64(len(teachers)))
	}
	if len(rooms) > 0 {
		var sum float64
		for _, room := range rooms {
			pct := float64(roomLoad[room.ID]) / float64(s.cfg.RoomWeeklyCapacity) * 100
			sum += bandScore(pct, s.cfg.RoomBandLow, s.cfg.RoomBandHigh)
		}
		averages = append(averages, sum/float64(len(rooms)))
	}
	if len(averages) == 0 {
		return 100
	}
	var total float64
	for _, avg := range averages {
		total += avg
	}
	return total / float64(len(averages))
}

func bandScore(pct, low, high float64) float64 {
	distance := 0.0
	switch {
	case pct < low:
		distance = low - pct
	case pct > high:
		distance = pct - high
	}
	return math.Max(0, 100-2*distance)
}

// complianceViolations counts teacher-days with no free period.
func (s *ScheduleHealthService) complianceViolations(slots []models.ScheduleSlot, teachers []models.Teacher) int {
	active := make(map[string]bool, len(teachers))
	for _, teacher := range teachers {
		active[teacher.ID] = true
	}
	perDay := make(map[string]map[int]map[int]bool)
	for _, slot := range slots {
		if !active[slot.TeacherID] || slot.DayOfWeek == 0 {
			continue
		}
		if perDay[slot.TeacherID] == nil {
			perDay[slot.TeacherID] = make(map[int]map[int]bool)
		}
		if perDay[slot.TeacherID][slot.DayOfWeek] == nil {
			perDay[slot.TeacherID][slot.DayOfWeek] = make(map[int]bool)
		}
		key := slot.PeriodNumber
		if key <= 0 {
			key = -int(slot.StartTime)
		}
		perDay[slot.TeacherID][slot.DayOfWeek][key] = true
	}
	violations := 0
	for _, days := range perDay {
		for _, periods := range days {
			if len(periods) >= s.cfg.PeriodsPerDay {
				violations++
			}
		}
	}
	return violations
}

func complianceScore(violations, teachers int) float64 {
	if teachers == 0 {
		return 100
	}
	return math.Max(0, 100-10*float64(violations))
}

func (s *ScheduleHealthService) coverageScore(sections []models.CourseSection, students int) float64 {
	if students <= 0 {
		return 100
	}
	total := 0
	for _, section := range sections {
		total += section.CurrentEnrollment
	}
	expected := float64(students * s.cfg.ExpectedCourseLoad)
	return math.Min(100, float64(total)/expected*100)
}

func criticalIssues(m *models.HealthMetrics, live, violations int) []string {
	issues := make([]string, 0)
	if live > 0 {
		issues = append(issues, fmt.Sprintf("%d teacher or room double-bookings detected", live))
	}
	if recorded := m.TotalConflicts - live; recorded > 0 {
		issues = append(issues, fmt.Sprintf("%d recorded scheduling conflicts are unresolved", recorded))
	}
	if m.OverEnrolledSections > 0 {
		issues = append(issues, fmt.Sprintf("%d sections are over-enrolled", m.OverEnrolledSections))
	}
	if violations > 0 {
		issues = append(issues, fmt.Sprintf("%d teacher-days have no free period", violations))
	}
	if m.CoverageScore < 50 {
		issues = append(issues, fmt.Sprintf("Enrollment coverage is only %.1f%%", m.CoverageScore))
	}
	return issues
}

func recommendations(m *models.HealthMetrics) []string {
	recs := make([]string, 0)
	if m.ConflictScore < 100 {
		recs = append(recs, "Resolve conflicting slots by moving them to free periods")
	}
	if m.UnbalancedSections > 0 {
		recs = append(recs, fmt.Sprintf("Rebalance enrollment across %d sections", m.UnbalancedSections))
	}
	if m.UtilizationScore < 70 {
		recs = append(recs, "Review teacher and room workloads against their target bands")
	}
	if m.ComplianceScore < 100 {
		recs = append(recs, "Give every teacher at least one planning period per day")
	}
	if m.CoverageScore < 80 {
		recs = append(recs, "Enroll students in more courses to reach the expected course load")
	}
	return recs
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
