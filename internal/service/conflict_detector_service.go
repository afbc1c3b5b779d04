package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
)

type conflictSlotRepository interface {
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error)
	UpdateTime(ctx context.Context, exec sqlx.ExtContext, slot *models.ScheduleSlot) error
}

type conflictScheduleRepository interface {
	UpdateConflictCount(ctx context.Context, exec sqlx.ExtContext, id string, total int) error
}

// ConflictDetectorService finds teacher and room double-bookings inside a schedule.
type ConflictDetectorService struct {
	slots     conflictSlotRepository
	schedules conflictScheduleRepository
	tx        txProvider
	locks     keyLocker
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewConflictDetectorService constructs the detector.
func NewConflictDetectorService(
	slots conflictSlotRepository,
	schedules conflictScheduleRepository,
	tx txProvider,
	locks *lock.KeyedMutex,
	lockTimeout time.Duration,
	metrics *MetricsService,
	logger *zap.Logger,
) *ConflictDetectorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetectorService{
		slots:     slots,
		schedules: schedules,
		tx:        tx,
		locks:     newKeyLocker(locks, lockTimeout),
		metrics:   metrics,
		logger:    logger,
	}
}

type resourceKey struct {
	resource string
	day      int
	start    models.ClockTime
}

// FindSlotConflicts groups slots by (teacher, day, start) and (room, day, start) and
// returns one conflict per colliding pair. Slots missing an id or a day are skipped.
func FindSlotConflicts(slots []models.ScheduleSlot, logger *zap.Logger) []models.Conflict {
	if logger == nil {
		logger = zap.NewNop()
	}
	conflicts := make([]models.Conflict, 0)
	if len(slots) < 2 {
		return conflicts
	}

	byTeacher := make(map[resourceKey][]int)
	byRoom := make(map[resourceKey][]int)
	var teacherOrder, roomOrder []resourceKey

	for i, slot := range slots {
		if slot.ID == "" || slot.DayOfWeek == 0 {
			logger.Warn("skipping slot with incomplete data",
				zap.String("slot_id", slot.ID),
				zap.String("schedule_id", slot.ScheduleID),
				zap.Int("day_of_week", slot.DayOfWeek),
			)
			continue
		}
		if slot.TeacherID != "" {
			key := resourceKey{resource: slot.TeacherID, day: slot.DayOfWeek, start: slot.StartTime}
			if _, seen := byTeacher[key]; !seen {
				teacherOrder = append(teacherOrder, key)
			}
			byTeacher[key] = append(byTeacher[key], i)
		}
		if slot.RoomID != "" {
			key := resourceKey{resource: slot.RoomID, day: slot.DayOfWeek, start: slot.StartTime}
			if _, seen := byRoom[key]; !seen {
				roomOrder = append(roomOrder, key)
			}
			byRoom[key] = append(byRoom[key], i)
		}
	}

	emit := func(kind models.ConflictKind, order []resourceKey, groups map[resourceKey][]int) {
		for _, key := range order {
			members := groups[key]
			for a := 0; a < len(members); a++ {
				for b := a + 1; b < len(members); b++ {
					conflicts = append(conflicts, models.Conflict{
						Kind:   kind,
						SlotA:  slots[members[a]].ID,
						SlotB:  slots[members[b]].ID,
						Detail: fmt.Sprintf("%s %s double-booked on %s at %s", kindLabel(kind), key.resource, dayName(key.day), key.start),
					})
				}
			}
		}
	}
	emit(models.ConflictTeacher, teacherOrder, byTeacher)
	emit(models.ConflictRoom, roomOrder, byRoom)
	return conflicts
}

// DetectConflicts returns every hard conflict in a schedule. Unknown ids and store errors yield an empty list.
func (s *ConflictDetectorService) DetectConflicts(ctx context.Context, scheduleID string) []models.Conflict {
	if scheduleID == "" {
		return []models.Conflict{}
	}
	slots, err := s.slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		s.logger.Error("failed to load schedule slots", zap.String("schedule_id", scheduleID), zap.Error(err))
		return []models.Conflict{}
	}
	conflicts := FindSlotConflicts(slots, s.logger)
	s.recordConflicts(conflicts)
	return conflicts
}

// CheckSlotConflicts returns conflicts involving one slot.
func (s *ConflictDetectorService) CheckSlotConflicts(ctx context.Context, slotID string) []models.Conflict {
	if slotID == "" {
		return []models.Conflict{}
	}
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to load slot", zap.String("slot_id", slotID), zap.Error(err))
		}
		return []models.Conflict{}
	}
	slots, err := s.slots.ListBySchedule(ctx, slot.ScheduleID)
	if err != nil {
		s.logger.Error("failed to load schedule slots", zap.String("schedule_id", slot.ScheduleID), zap.Error(err))
		return []models.Conflict{}
	}
	return involving(FindSlotConflicts(slots, s.logger), slotID)
}

// CheckMoveConflicts simulates moving slot to candidate and returns the conflicts the moved slot would have.
func (s *ConflictDetectorService) CheckMoveConflicts(ctx context.Context, slot *models.ScheduleSlot, candidate *models.TimeSlot) []models.Conflict {
	if slot == nil || candidate == nil || slot.ID == "" {
		return []models.Conflict{}
	}
	slots, err := s.slots.ListBySchedule(ctx, slot.ScheduleID)
	if err != nil {
		s.logger.Error("failed to load schedule slots", zap.String("schedule_id", slot.ScheduleID), zap.Error(err))
		return []models.Conflict{}
	}
	return involving(FindSlotConflicts(simulateMove(slots, *slot, *candidate), s.logger), slot.ID)
}

// CheckSlotMove loads a slot and previews the conflicts a move to target would leave it in.
func (s *ConflictDetectorService) CheckSlotMove(ctx context.Context, slotID string, target models.TimeSlot) ([]models.Conflict, error) {
	if slotID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot id is required")
	}
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrNotFound, "slot not found")
	}
	return s.CheckMoveConflicts(ctx, slot, &target), nil
}

// DetectAllConflicts renders the schedule's conflicts as readable lines.
func (s *ConflictDetectorService) DetectAllConflicts(ctx context.Context, scheduleID string) []string {
	conflicts := s.DetectConflicts(ctx, scheduleID)
	lines := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		lines = append(lines, fmt.Sprintf("%s conflict between slots %s and %s: %s", c.Kind, c.SlotA, c.SlotB, c.Detail))
	}
	return lines
}

// MoveSlot applies a time change when it introduces no new conflict, refreshing the cached counter.
func (s *ConflictDetectorService) MoveSlot(ctx context.Context, slotID string, target models.TimeSlot) (*models.ScheduleSlot, error) {
	if slotID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot id is required")
	}
	if target.DayOfWeek < 1 || target.DayOfWeek > 7 || target.EndTime <= target.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target time slot is invalid")
	}
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrNotFound, "slot not found")
	}

	unlock, err := s.locks.acquire(ctx, lock.ScheduleKey(slot.ScheduleID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// the row may have changed while waiting for the lock
	slot, err = s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, notFoundAs(err, appErrors.ErrNotFound, "slot not found")
	}
	slots, err := s.slots.ListBySchedule(ctx, slot.ScheduleID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule slots")
	}
	before := involving(FindSlotConflicts(slots, s.logger), slotID)
	moved := simulateMove(slots, *slot, target)
	after := FindSlotConflicts(moved, s.logger)

	if introduced := newConflicts(before, involving(after, slotID)); len(introduced) > 0 {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, fmt.Sprintf("move would create %d conflict(s): %s", len(introduced), introduced[0].Detail))
	}

	updated := slot.WithTimeSlot(target)
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.slots.UpdateTime(ctx, tx, &updated); err != nil {
			return appErrors.Internal(err, "failed to move slot")
		}
		if err := s.schedules.UpdateConflictCount(ctx, tx, slot.ScheduleID, len(after)); err != nil {
			return notFoundAs(err, appErrors.ErrNotFound, "schedule not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("slot moved",
		zap.String("slot_id", slotID),
		zap.Int("day_of_week", target.DayOfWeek),
		zap.String("start", target.StartTime.String()),
	)
	return &updated, nil
}

// RefreshConflictCount recomputes and stores a schedule's conflict counter.
func (s *ConflictDetectorService) RefreshConflictCount(ctx context.Context, scheduleID string) (int, error) {
	slots, err := s.slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to load schedule slots")
	}
	total := len(FindSlotConflicts(slots, s.logger))
	if err := s.schedules.UpdateConflictCount(ctx, nil, scheduleID, total); err != nil {
		return 0, notFoundAs(err, appErrors.ErrNotFound, "schedule not found")
	}
	return total, nil
}

func (s *ConflictDetectorService) recordConflicts(conflicts []models.Conflict) {
	var teacher, room int
	for _, c := range conflicts {
		if c.Kind == models.ConflictTeacher {
			teacher++
		} else {
			room++
		}
	}
	s.metrics.RecordConflicts(string(models.ConflictTeacher), teacher)
	s.metrics.RecordConflicts(string(models.ConflictRoom), room)
}

func simulateMove(slots []models.ScheduleSlot, slot models.ScheduleSlot, target models.TimeSlot) []models.ScheduleSlot {
	moved := make([]models.ScheduleSlot, 0, len(slots)+1)
	found := false
	for _, existing := range slots {
		if existing.ID == slot.ID {
			moved = append(moved, existing.WithTimeSlot(target))
			found = true
			continue
		}
		moved = append(moved, existing)
	}
	if !found {
		moved = append(moved, slot.WithTimeSlot(target))
	}
	return moved
}

func involving(conflicts []models.Conflict, slotID string) []models.Conflict {
	out := make([]models.Conflict, 0)
	for _, c := range conflicts {
		if c.SlotA == slotID || c.SlotB == slotID {
			out = append(out, c)
		}
	}
	return out
}

func newConflicts(before, after []models.Conflict) []models.Conflict {
	seen := make(map[string]struct{}, len(before))
	for _, c := range before {
		seen[conflictID(c)] = struct{}{}
	}
	out := make([]models.Conflict, 0)
	for _, c := range after {
		if _, ok := seen[conflictID(c)]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func conflictID(c models.Conflict) string {
	a, b := models.OrderedPair(c.SlotA, c.SlotB)
	return string(c.Kind) + "|" + a + "|" + b
}

func kindLabel(kind models.ConflictKind) string {
	if kind == models.ConflictTeacher {
		return "teacher"
	}
	return "room"
}

var dayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func dayName(day int) string {
	if day < 1 || day >= len(dayNames) {
		return fmt.Sprintf("day %d", day)
	}
	return dayNames[day]
}
