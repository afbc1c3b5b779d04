package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

const waitlistColumns = `id, student_id, course_id, position, priority_weight, status, added_at, enrolled_at, notification_sent`

// WaitlistRepository persists course waitlists.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListActiveByCourse returns ACTIVE entries in rank order.
func (r *WaitlistRepository) ListActiveByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE course_id = $1 AND status = 'ACTIVE'
ORDER BY priority_weight DESC, added_at ASC, id ASC`
	var entries []models.WaitlistEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query, courseID); err != nil {
		return nil, fmt.Errorf("list active waitlist: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry.
func (r *WaitlistRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = models.WaitlistActive
	}
	const query = `
INSERT INTO waitlist_entries (id, student_id, course_id, position, priority_weight, status, added_at, enrolled_at, notification_sent)
VALUES (:id, :student_id, :course_id, :position, :priority_weight, :status, :added_at, :enrolled_at, :notification_sent)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// UpdatePosition stores a recomputed rank.
func (r *WaitlistRepository) UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id string, position int) error {
	const query = `UPDATE waitlist_entries SET position = $1 WHERE id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, position, id); err != nil {
		return fmt.Errorf("update waitlist position: %w", err)
	}
	return nil
}

// MarkEnrolled moves an entry to ENROLLED.
func (r *WaitlistRepository) MarkEnrolled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE waitlist_entries SET status = 'ENROLLED', enrolled_at = $1, position = 0 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark waitlist enrolled: %w", err)
	}
	return requireAffected(result, "waitlist enrolled")
}

// MarkNotified records that the promotion notice went out.
func (r *WaitlistRepository) MarkNotified(ctx context.Context, id string) error {
	const query = `UPDATE waitlist_entries SET notification_sent = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark waitlist notified: %w", err)
	}
	return nil
}
