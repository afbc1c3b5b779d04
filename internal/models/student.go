package models

// Student is the directory view of a learner.
type Student struct {
	ID            string `db:"id" json:"id"`
	StudentNumber string `db:"student_number" json:"student_number"`
	FullName      string `db:"full_name" json:"full_name"`
	GradeLevel    int    `db:"grade_level" json:"grade_level"`
	Active        bool   `db:"active" json:"active"`
	HasHold       bool   `db:"has_hold" json:"has_hold"`
}
