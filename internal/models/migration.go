package models

import "time"

// MigrationType enumerates supported migration categories.
type MigrationType string

const (
	MigrationTypeYearPromotion MigrationType = "YEAR_PROMOTION"
	MigrationTypeArchive       MigrationType = "ARCHIVE"
)

// MigrationStatus captures the lifecycle of a migration run. Values are
// lowercase on the wire to match the dashboard contract.
type MigrationStatus string

const (
	MigrationStatusPending    MigrationStatus = "pending"
	MigrationStatusInProgress MigrationStatus = "in_progress"
	MigrationStatusCompleted  MigrationStatus = "completed"
	MigrationStatusFailed     MigrationStatus = "failed"
)

// Migration records one promotion or archival run for a college.
type Migration struct {
	ID                 string          `db:"id" json:"id"`
	FromAcademicYearID *string         `db:"from_academic_year_id" json:"from_academic_year_id,omitempty"`
	ToAcademicYearID   *string         `db:"to_academic_year_id" json:"to_academic_year_id,omitempty"`
	CollegeID          string          `db:"college_id" json:"college_id"`
	MigrationType      MigrationType   `db:"migration_type" json:"migration_type"`
	Status             MigrationStatus `db:"status" json:"status"`
	StudentsPromoted   int             `db:"students_promoted" json:"students_promoted"`
	SectionsArchived   int             `db:"sections_archived" json:"sections_archived"`
	SubjectsArchived   int             `db:"subjects_archived" json:"subjects_archived"`
	AssignmentsCleared int             `db:"assignments_cleared" json:"assignments_cleared"`
	CanRollback        bool            `db:"can_rollback" json:"can_rollback"`
	Notes              *string         `db:"notes" json:"notes,omitempty"`
	TriggeredBy        string          `db:"triggered_by" json:"triggered_by"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	StartedAt          *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// MigrationFilter constrains history listings.
type MigrationFilter struct {
	CollegeID string
	Status    []MigrationStatus
	Type      MigrationType
	Limit     int
	Offset    int
}

// StudentMigrationLog stores one per-student promotion entry, which is what
// makes a completed promotion reversible.
type StudentMigrationLog struct {
	ID                 string    `db:"id" json:"id"`
	MigrationID        string    `db:"migration_id" json:"migration_id"`
	StudentID          string    `db:"student_id" json:"student_id"`
	FromStudyYear      string    `db:"from_study_year" json:"from_study_year"`
	ToStudyYear        string    `db:"to_study_year" json:"to_study_year"`
	FromAcademicYearID string    `db:"from_academic_year_id" json:"from_academic_year_id"`
	ToAcademicYearID   string    `db:"to_academic_year_id" json:"to_academic_year_id"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// YearCount is a per-study-year aggregate used by migration previews.
type YearCount struct {
	StudyYear string `db:"study_year" json:"study_year"`
	Count     int    `db:"count" json:"count"`
}

// SectionCount is a per-section aggregate used by migration previews.
type SectionCount struct {
	SectionID   string `db:"section_id" json:"section_id"`
	SectionName string `db:"section_name" json:"section_name"`
	Count       int    `db:"count" json:"count"`
}

// ArchivePreviewCounts aggregates what an archive run would touch.
type ArchivePreviewCounts struct {
	Sections    int `db:"sections" json:"sections"`
	Subjects    int `db:"subjects" json:"subjects"`
	Assignments int `db:"assignments" json:"assignments"`
}
