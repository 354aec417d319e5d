package dto

import "time"

// CreateAcademicYearRequest registers a new institution year for a college.
type CreateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	CollegeID string    `json:"college_id"`
	IsCurrent bool      `json:"is_current"`
}

// CreateCollegeRequest registers a new tenant institution.
type CreateCollegeRequest struct {
	Name    string `json:"name" validate:"required"`
	Code    string `json:"code" validate:"required,alphanum"`
	Address string `json:"address,omitempty"`
}
