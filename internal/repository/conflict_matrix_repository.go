package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

const matrixSelect = `SELECT m.id, m.course1_id, m.course2_id, COALESCE(c1.name, '') AS course1_name, COALESCE(c2.name, '') AS course2_name,
m.schedule_year, m.conflict_count, m.conflict_percentage, m.is_singleton_conflict, m.updated_at
FROM conflict_matrix m
LEFT JOIN courses c1 ON c1.id = m.course1_id
LEFT JOIN courses c2 ON c2.id = m.course2_id`

// ConflictMatrixRepository persists pairwise course demand conflicts per year.
type ConflictMatrixRepository struct {
	db *sqlx.DB
}

// NewConflictMatrixRepository constructs repository.
func NewConflictMatrixRepository(db *sqlx.DB) *ConflictMatrixRepository {
	return &ConflictMatrixRepository{db: db}
}

func (r *ConflictMatrixRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// DeleteByYear clears every entry of a year.
func (r *ConflictMatrixRepository) DeleteByYear(ctx context.Context, exec sqlx.ExtContext, year int) (int64, error) {
	const query = `DELETE FROM conflict_matrix WHERE schedule_year = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, year)
	if err != nil {
		return 0, fmt.Errorf("clear conflict matrix: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("conflict matrix rows affected: %w", err)
	}
	return removed, nil
}

// Insert stores a new entry, normalising its pair order.
func (r *ConflictMatrixRepository) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.ConflictMatrixEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Course1ID, entry.Course2ID = models.OrderedPair(entry.Course1ID, entry.Course2ID)
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO conflict_matrix (id, course1_id, course2_id, schedule_year, conflict_count, conflict_percentage, is_singleton_conflict, updated_at)
VALUES (:id, :course1_id, :course2_id, :schedule_year, :conflict_count, :conflict_percentage, :is_singleton_conflict, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert conflict matrix entry: %w", err)
	}
	return nil
}

// UpdateCount rewrites the count and percentage of an existing entry.
func (r *ConflictMatrixRepository) UpdateCount(ctx context.Context, exec sqlx.ExtContext, entry *models.ConflictMatrixEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE conflict_matrix SET conflict_count = $1, conflict_percentage = $2, updated_at = $3 WHERE id = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, entry.ConflictCount, entry.ConflictPercentage, entry.UpdatedAt, entry.ID)
	if err != nil {
		return fmt.Errorf("update conflict matrix entry: %w", err)
	}
	return requireAffected(result, "conflict matrix entry")
}

// FindPair looks up an entry irrespective of argument order.
func (r *ConflictMatrixRepository) FindPair(ctx context.Context, exec sqlx.ExtContext, year int, a, b string) (*models.ConflictMatrixEntry, error) {
	first, second := models.OrderedPair(a, b)
	query := matrixSelect + ` WHERE m.schedule_year = $1 AND m.course1_id = $2 AND m.course2_id = $3`
	var entry models.ConflictMatrixEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, year, first, second); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByYear returns every entry of a year.
func (r *ConflictMatrixRepository) ListByYear(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	return r.list(ctx, matrixSelect+` WHERE m.schedule_year = $1 ORDER BY m.conflict_count DESC, m.course1_id ASC, m.course2_id ASC`, year)
}

// ListSingleton returns entries flagged as singleton conflicts.
func (r *ConflictMatrixRepository) ListSingleton(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	return r.list(ctx, matrixSelect+` WHERE m.schedule_year = $1 AND m.is_singleton_conflict = TRUE ORDER BY m.conflict_count DESC`, year)
}

// ListForCourse returns entries on either side of a course.
func (r *ConflictMatrixRepository) ListForCourse(ctx context.Context, year int, courseID string) ([]models.ConflictMatrixEntry, error) {
	return r.list(ctx, matrixSelect+` WHERE m.schedule_year = $1 AND (m.course1_id = $2 OR m.course2_id = $2) ORDER BY m.conflict_count DESC`, year, courseID)
}

// ListAtLeast returns entries whose count reaches threshold.
func (r *ConflictMatrixRepository) ListAtLeast(ctx context.Context, year, threshold int) ([]models.ConflictMatrixEntry, error) {
	return r.list(ctx, matrixSelect+` WHERE m.schedule_year = $1 AND m.conflict_count >= $2 ORDER BY m.conflict_count DESC`, year, threshold)
}

func (r *ConflictMatrixRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.ConflictMatrixEntry, error) {
	var entries []models.ConflictMatrixEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list conflict matrix: %w", err)
	}
	return entries, nil
}
