package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

const scheduleColumns = `id, name, schedule_type, status, schedule_year, start_date, end_date, total_conflicts, quality_score, active, created_at, updated_at`

// ScheduleRepository persists schedule aggregates without their slots.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a schedule header.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusDraft
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `
INSERT INTO schedules (id, name, schedule_type, status, schedule_year, start_date, end_date, total_conflicts, quality_score, active, created_at, updated_at)
VALUES (:id, :name, :schedule_type, :status, :schedule_year, :start_date, :end_date, :total_conflicts, :quality_score, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// FindByID loads a schedule header by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// UpdateConflictCount stores the cached conflict counter.
func (r *ScheduleRepository) UpdateConflictCount(ctx context.Context, exec sqlx.ExtContext, id string, total int) error {
	const query = `UPDATE schedules SET total_conflicts = $1, updated_at = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, total, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update schedule conflicts: %w", err)
	}
	return requireAffected(result, "schedule conflicts")
}

// UpdateQualityScore stores the latest overall health score.
func (r *ScheduleRepository) UpdateQualityScore(ctx context.Context, exec sqlx.ExtContext, id string, score float64) error {
	const query = `UPDATE schedules SET quality_score = $1, updated_at = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, score, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update schedule quality: %w", err)
	}
	return requireAffected(result, "schedule quality")
}

func requireAffected(result sql.Result, label string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", label, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
