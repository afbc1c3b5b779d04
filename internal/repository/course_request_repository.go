package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

// CourseRequestRepository reads and loads the pending-course-request ledger.
type CourseRequestRepository struct {
	db *sqlx.DB
}

// NewCourseRequestRepository constructs repository.
func NewCourseRequestRepository(db *sqlx.DB) *CourseRequestRepository {
	return &CourseRequestRepository{db: db}
}

// ListPendingByYear returns PENDING requests for a year.
func (r *CourseRequestRepository) ListPendingByYear(ctx context.Context, year int) ([]models.CourseRequest, error) {
	const query = `SELECT id, student_id, course_id, schedule_year, priority_weight, status, created_at
FROM course_requests WHERE schedule_year = $1 AND status = 'PENDING' ORDER BY student_id ASC, course_id ASC`
	var requests []models.CourseRequest
	if err := r.db.SelectContext(ctx, &requests, query, year); err != nil {
		return nil, fmt.Errorf("list course requests: %w", err)
	}
	return requests, nil
}

// CountForCourse counts pending requests for one course.
func (r *CourseRequestRepository) CountForCourse(ctx context.Context, courseID string, year int) (int, error) {
	const query = `SELECT COUNT(*) FROM course_requests WHERE course_id = $1 AND schedule_year = $2 AND status = 'PENDING'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, year); err != nil {
		return 0, fmt.Errorf("count course requests: %w", err)
	}
	return count, nil
}

// InsertBatch stores imported requests, skipping duplicates.
func (r *CourseRequestRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, requests []models.CourseRequest) (int, error) {
	target := sqlx.ExtContext(r.db)
	if exec != nil {
		target = exec
	}
	const query = `
INSERT INTO course_requests (id, student_id, course_id, schedule_year, priority_weight, status, created_at)
VALUES (:id, :student_id, :course_id, :schedule_year, :priority_weight, :status, :created_at)
ON CONFLICT (student_id, course_id, schedule_year) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for i := range requests {
		if requests[i].ID == "" {
			requests[i].ID = uuid.NewString()
		}
		if requests[i].Status == "" {
			requests[i].Status = models.CourseRequestPending
		}
		if requests[i].CreatedAt.IsZero() {
			requests[i].CreatedAt = now
		}
		result, err := sqlx.NamedExecContext(ctx, target, query, requests[i])
		if err != nil {
			return inserted, fmt.Errorf("insert course request: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}
	return inserted, nil
}
