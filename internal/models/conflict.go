package models

import "time"

// ConflictKind names the resource two slots collide on.
type ConflictKind string

const (
	ConflictTeacher ConflictKind = "TEACHER"
	ConflictRoom    ConflictKind = "ROOM"
)

// Conflict is a pair of slots double-booking one teacher or room.
type Conflict struct {
	Kind   ConflictKind `json:"kind"`
	SlotA  string       `json:"slot_a"`
	SlotB  string       `json:"slot_b"`
	Detail string       `json:"detail"`
}

// ConflictMatrixEntry counts students who requested both courses of a pair in a year.
// Course1ID always sorts before Course2ID.
type ConflictMatrixEntry struct {
	ID                  string    `db:"id" json:"id"`
	Course1ID           string    `db:"course1_id" json:"course1_id"`
	Course2ID           string    `db:"course2_id" json:"course2_id"`
	Course1Name         string    `db:"course1_name" json:"course1_name,omitempty"`
	Course2Name         string    `db:"course2_name" json:"course2_name,omitempty"`
	ScheduleYear        int       `db:"schedule_year" json:"schedule_year"`
	ConflictCount       int       `db:"conflict_count" json:"conflict_count"`
	ConflictPercentage  float64   `db:"conflict_percentage" json:"conflict_percentage"`
	IsSingletonConflict bool      `db:"is_singleton_conflict" json:"is_singleton_conflict"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// OrderedPair normalises a course pair so the smaller id comes first.
func OrderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Involves reports whether courseID is one side of the entry.
func (e ConflictMatrixEntry) Involves(courseID string) bool {
	return e.Course1ID == courseID || e.Course2ID == courseID
}
