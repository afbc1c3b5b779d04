package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

const teacherColumns = `id, full_name, department, active, planning_period, COALESCE(notes, '') AS notes`

// TeacherRepository reads and annotates the teacher directory.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// ListActive returns every active teacher.
func (r *TeacherRepository) ListActive(ctx context.Context) ([]models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE active = TRUE ORDER BY full_name ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}

// ListByIDs returns teachers matching ids.
func (r *TeacherRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return []models.Teacher{}, nil
	}
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE id = ANY($1) ORDER BY full_name ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list teachers by ids: %w", err)
	}
	return teachers, nil
}

// ListActiveByDepartment returns active teachers of one department.
func (r *TeacherRepository) ListActiveByDepartment(ctx context.Context, department string) ([]models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE active = TRUE AND department = $1 ORDER BY full_name ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, department); err != nil {
		return nil, fmt.Errorf("list department teachers: %w", err)
	}
	return teachers, nil
}

// UpdatePlanning stores the planning period and notes of a teacher.
func (r *TeacherRepository) UpdatePlanning(ctx context.Context, teacher *models.Teacher) error {
	const query = `UPDATE teachers SET planning_period = $1, notes = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, teacher.PlanningPeriod, teacher.Notes, teacher.ID)
	if err != nil {
		return fmt.Errorf("update teacher planning: %w", err)
	}
	return requireAffected(result, "teacher planning")
}
