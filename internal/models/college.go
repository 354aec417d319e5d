package models

import "time"

// College is a tenant institution. Every domain row is scoped to one college;
// platform-wide (SvnaPro) content carries no college binding.
type College struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	Address   string    `db:"address" json:"address"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CollegeFilter narrows college listings.
type CollegeFilter struct {
	Search string
	Active *bool
	Limit  int
	Offset int
}
