package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

// RoomRepository reads the room directory.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// ListActive returns active rooms.
func (r *RoomRepository) ListActive(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, room_number, capacity, active FROM rooms WHERE active = TRUE ORDER BY room_number ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	return rooms, nil
}

// ListByIDs returns rooms matching ids.
func (r *RoomRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Room, error) {
	if len(ids) == 0 {
		return []models.Room{}, nil
	}
	const query = `SELECT id, room_number, capacity, active FROM rooms WHERE id = ANY($1) ORDER BY room_number ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list rooms by ids: %w", err)
	}
	return rooms, nil
}
