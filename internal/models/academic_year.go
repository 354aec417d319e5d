package models

import "time"

// AcademicYear models one institution year (e.g. "2024-25") for a college.
// At most one year per college is current; the repository enforces the flip
// transactionally.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	CollegeID string    `db:"college_id" json:"college_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsCurrent bool      `db:"is_current" json:"is_current"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AcademicYearFilter constrains listing queries.
type AcademicYearFilter struct {
	CollegeID       string
	IsCurrent       *bool
	IncludeArchived bool
}
