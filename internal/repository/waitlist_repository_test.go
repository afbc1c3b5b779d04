package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

func TestWaitlistRepositoryListActiveByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "position", "priority_weight", "status", "added_at", "enrolled_at", "notification_sent"}).
		AddRow("w-1", "stu-1", "course-1", 1, 5, "ACTIVE", now, nil, false).
		AddRow("w-2", "stu-2", "course-1", 2, 1, "ACTIVE", now, nil, false)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY priority_weight DESC, added_at ASC, id ASC")).
		WithArgs("course-1").
		WillReturnRows(rows)

	entries, err := repo.ListActiveByCourse(context.Background(), nil, "course-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].EnrolledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist_entries")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "course-1", 0, 3, "ACTIVE", sqlmock.AnyArg(), nil, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.WaitlistEntry{StudentID: "stu-1", CourseID: "course-1", PriorityWeight: 3}
	require.NoError(t, repo.Create(context.Background(), nil, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.AddedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryMarkEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET status = 'ENROLLED'")).
		WithArgs(at, "w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkEnrolled(context.Background(), nil, "w-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
