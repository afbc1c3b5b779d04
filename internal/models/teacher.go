package models

// Teacher is the directory view of an instructor.
type Teacher struct {
	ID             string `db:"id" json:"id"`
	FullName       string `db:"full_name" json:"full_name"`
	Department     string `db:"department" json:"department"`
	Active         bool   `db:"active" json:"active"`
	PlanningPeriod *int   `db:"planning_period" json:"planning_period,omitempty"`
	Notes          string `db:"notes" json:"notes,omitempty"`
}

// Room is a schedulable space.
type Room struct {
	ID         string `db:"id" json:"id"`
	RoomNumber string `db:"room_number" json:"room_number"`
	Capacity   int    `db:"capacity" json:"capacity"`
	Active     bool   `db:"active" json:"active"`
}
