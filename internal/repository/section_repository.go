package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

const sectionColumns = `id, course_id, section_number, current_enrollment, max_enrollment, status, schedule_year, is_singleton,
assigned_period, COALESCE(teacher_id, '') AS teacher_id, COALESCE(room_id, '') AS room_id`

// SectionRepository persists course sections and their rosters.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

func (r *SectionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a section. Pass a transaction to read inside it.
func (r *SectionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CourseSection, error) {
	query := `SELECT ` + sectionColumns + ` FROM course_sections WHERE id = $1`
	var section models.CourseSection
	if err := sqlx.GetContext(ctx, r.exec(exec), &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListByCourse returns sections of a course ordered by section number.
func (r *SectionRepository) ListByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.CourseSection, error) {
	query := `SELECT ` + sectionColumns + ` FROM course_sections WHERE course_id = $1 ORDER BY section_number ASC`
	var sections []models.CourseSection
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sections, query, courseID); err != nil {
		return nil, fmt.Errorf("list course sections: %w", err)
	}
	return sections, nil
}

// ListByYear returns every section offered in a school year.
func (r *SectionRepository) ListByYear(ctx context.Context, year int) ([]models.CourseSection, error) {
	query := `SELECT ` + sectionColumns + ` FROM course_sections WHERE schedule_year = $1 ORDER BY course_id ASC, section_number ASC`
	var sections []models.CourseSection
	if err := r.db.SelectContext(ctx, &sections, query, year); err != nil {
		return nil, fmt.Errorf("list year sections: %w", err)
	}
	return sections, nil
}

// ListByCourses returns sections for the given course ids.
func (r *SectionRepository) ListByCourses(ctx context.Context, courseIDs []string) ([]models.CourseSection, error) {
	if len(courseIDs) == 0 {
		return []models.CourseSection{}, nil
	}
	query := `SELECT ` + sectionColumns + ` FROM course_sections WHERE course_id = ANY($1) ORDER BY course_id ASC, section_number ASC`
	var sections []models.CourseSection
	if err := r.db.SelectContext(ctx, &sections, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list sections by courses: %w", err)
	}
	return sections, nil
}

// UpdateEnrollment stores the enrollment count and derived status.
func (r *SectionRepository) UpdateEnrollment(ctx context.Context, exec sqlx.ExtContext, id string, enrollment int, status models.SectionStatus) error {
	const query = `UPDATE course_sections SET current_enrollment = $1, status = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, enrollment, status, id)
	if err != nil {
		return fmt.Errorf("update section enrollment: %w", err)
	}
	return requireAffected(result, "section enrollment")
}

// MarkSingleton flags the given sections as singletons.
func (r *SectionRepository) MarkSingleton(ctx context.Context, exec sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE course_sections SET is_singleton = TRUE WHERE id = ANY($1)`
	if _, err := r.exec(exec).ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark singleton sections: %w", err)
	}
	return nil
}

// AssignPeriod records the period a section meets in.
func (r *SectionRepository) AssignPeriod(ctx context.Context, exec sqlx.ExtContext, id string, period int) error {
	const query = `UPDATE course_sections SET assigned_period = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, period, id)
	if err != nil {
		return fmt.Errorf("assign section period: %w", err)
	}
	return requireAffected(result, "section period")
}

// AssignResources stores the teacher and room picked for a section.
func (r *SectionRepository) AssignResources(ctx context.Context, exec sqlx.ExtContext, id, teacherID, roomID string, period int) error {
	const query = `UPDATE course_sections SET teacher_id = NULLIF($1, ''), room_id = NULLIF($2, ''), assigned_period = $3 WHERE id = $4`
	if _, err := r.exec(exec).ExecContext(ctx, query, teacherID, roomID, period, id); err != nil {
		return fmt.Errorf("assign section resources: %w", err)
	}
	return nil
}

// AddStudent appends a student to the section roster.
func (r *SectionRepository) AddStudent(ctx context.Context, exec sqlx.ExtContext, sectionID, studentID string) error {
	const query = `INSERT INTO section_students (section_id, student_id, enrolled_at) VALUES ($1, $2, $3) ON CONFLICT (section_id, student_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, sectionID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add section student: %w", err)
	}
	return nil
}

// ListStudents returns the roster of a section.
func (r *SectionRepository) ListStudents(ctx context.Context, sectionID string) ([]string, error) {
	const query = `SELECT student_id FROM section_students WHERE section_id = $1 ORDER BY enrolled_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section students: %w", err)
	}
	return ids, nil
}

// MoveStudents reassigns up to n of the most recently enrolled students from one section to another.
func (r *SectionRepository) MoveStudents(ctx context.Context, exec sqlx.ExtContext, fromID, toID string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	const query = `UPDATE section_students SET section_id = $2 WHERE ctid IN (
SELECT ctid FROM section_students WHERE section_id = $1 ORDER BY enrolled_at DESC LIMIT $3)`
	result, err := r.exec(exec).ExecContext(ctx, query, fromID, toID, n)
	if err != nil {
		return 0, fmt.Errorf("move section students: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("moved students rows affected: %w", err)
	}
	return moved, nil
}

// ListStudentPeriods returns assigned periods of every section the student is enrolled in.
func (r *SectionRepository) ListStudentPeriods(ctx context.Context, studentID string) ([]int, error) {
	const query = `SELECT cs.assigned_period FROM section_students ss
JOIN course_sections cs ON cs.id = ss.section_id
WHERE ss.student_id = $1 AND cs.assigned_period IS NOT NULL`
	var periods []int
	if err := r.db.SelectContext(ctx, &periods, query, studentID); err != nil {
		return nil, fmt.Errorf("list student periods: %w", err)
	}
	return periods, nil
}
