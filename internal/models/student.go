package models

import "time"

// Student represents a learner registered with a college. StudyYear is the
// year of study within the programme ("1".."4"); AcademicYearID points at the
// institution year the student is currently enrolled under.
type Student struct {
	ID             string    `db:"id" json:"id"`
	RollNo         string    `db:"roll_no" json:"roll_no"`
	FullName       string    `db:"full_name" json:"full_name"`
	Email          string    `db:"email" json:"email"`
	CollegeID      string    `db:"college_id" json:"college_id"`
	Department     string    `db:"department" json:"department"`
	SectionID      *string   `db:"section_id" json:"section_id,omitempty"`
	StudyYear      string    `db:"study_year" json:"study_year"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	CollegeID      string
	AcademicYearID string
	StudyYear      string
	SectionID      string
	Active         *bool
	Search         string
	Page           int
	PageSize       int
}
