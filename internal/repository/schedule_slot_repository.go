package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

const slotColumns = `id, schedule_id, course_id, COALESCE(section_id, '') AS section_id, COALESCE(teacher_id, '') AS teacher_id,
COALESCE(room_id, '') AS room_id, day_of_week, start_minute, end_minute, period_number, day_type, student_ids, created_at`

// ScheduleSlotRepository persists the slot arena of schedules.
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository constructs repository.
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

func (r *ScheduleSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores slots, assigning ids where missing.
func (r *ScheduleSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ScheduleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	const query = `
INSERT INTO schedule_slots (id, schedule_id, course_id, section_id, teacher_id, room_id, day_of_week, start_minute, end_minute, period_number, day_type, student_ids, created_at)
VALUES (:id, :schedule_id, :course_id, NULLIF(:section_id, ''), NULLIF(:teacher_id, ''), NULLIF(:room_id, ''), :day_of_week, :start_minute, :end_minute, :period_number, :day_type, :student_ids, :created_at)`
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		if slots[i].CreatedAt.IsZero() {
			slots[i].CreatedAt = now
		}
		if slots[i].StudentIDs == nil {
			slots[i].StudentIDs = []string{}
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slots[i]); err != nil {
			return fmt.Errorf("insert schedule slot: %w", err)
		}
	}
	return nil
}

// ListBySchedule returns every slot owned by a schedule.
func (r *ScheduleSlotRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE schedule_id = $1 ORDER BY day_of_week ASC, start_minute ASC`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule slots: %w", err)
	}
	return slots, nil
}

// FindByID loads one slot.
func (r *ScheduleSlotRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE id = $1`
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListBySection returns the meetings of a section.
func (r *ScheduleSlotRepository) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE section_id = $1`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section slots: %w", err)
	}
	return slots, nil
}

// ListByStudent returns every slot the student attends.
func (r *ScheduleSlotRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE $1 = ANY(student_ids)`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, studentID); err != nil {
		return nil, fmt.Errorf("list student slots: %w", err)
	}
	return slots, nil
}

// ListByDayType returns slots of a schedule meeting on dayType, DAILY included.
func (r *ScheduleSlotRepository) ListByDayType(ctx context.Context, scheduleID string, dayType models.DayType) ([]models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE schedule_id = $1 AND day_type IN ($2, 'DAILY') ORDER BY day_of_week ASC, start_minute ASC`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, scheduleID, dayType); err != nil {
		return nil, fmt.Errorf("list day type slots: %w", err)
	}
	return slots, nil
}

// ListCoursesForStudentDayType returns distinct courses a student attends on dayType, DAILY included.
func (r *ScheduleSlotRepository) ListCoursesForStudentDayType(ctx context.Context, studentID string, dayType models.DayType) ([]models.Course, error) {
	const query = `SELECT DISTINCT c.id, c.code, c.name, c.subject, c.is_singleton, c.sections_needed, c.max_students, c.active
FROM schedule_slots s JOIN courses c ON c.id = s.course_id
WHERE $1 = ANY(s.student_ids) AND s.day_type IN ($2, 'DAILY') ORDER BY c.code ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, studentID, dayType); err != nil {
		return nil, fmt.Errorf("list student day type courses: %w", err)
	}
	return courses, nil
}

// UpdateTime moves a slot to a new meeting time.
func (r *ScheduleSlotRepository) UpdateTime(ctx context.Context, exec sqlx.ExtContext, slot *models.ScheduleSlot) error {
	const query = `UPDATE schedule_slots SET day_of_week = $1, start_minute = $2, end_minute = $3, period_number = $4 WHERE id = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, slot.DayOfWeek, slot.StartTime, slot.EndTime, slot.PeriodNumber, slot.ID)
	if err != nil {
		return fmt.Errorf("update slot time: %w", err)
	}
	return requireAffected(result, "slot time")
}

// RemoveStudentFromBlockSlots detaches a student from the ODD/EVEN slots of a schedule and drops slots left empty.
func (r *ScheduleSlotRepository) RemoveStudentFromBlockSlots(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID string) (int64, error) {
	target := r.exec(exec)
	const detach = `UPDATE schedule_slots SET student_ids = array_remove(student_ids, $1)
WHERE schedule_id = $2 AND day_type IN ('ODD', 'EVEN') AND $1 = ANY(student_ids)`
	if _, err := target.ExecContext(ctx, detach, studentID, scheduleID); err != nil {
		return 0, fmt.Errorf("detach student from block slots: %w", err)
	}
	const prune = `DELETE FROM schedule_slots WHERE schedule_id = $1 AND day_type IN ('ODD', 'EVEN') AND cardinality(student_ids) = 0`
	result, err := target.ExecContext(ctx, prune, scheduleID)
	if err != nil {
		return 0, fmt.Errorf("prune empty block slots: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruned block slots rows affected: %w", err)
	}
	return removed, nil
}
