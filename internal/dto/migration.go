package dto

import "github.com/svnapro/campus-api/internal/models"

// PreviewMigrationRequest asks what a promotion/archive run would touch.
// All three identifiers are required.
type PreviewMigrationRequest struct {
	FromAcademicYearID string `json:"from_academic_year_id" validate:"required"`
	ToAcademicYearID   string `json:"to_academic_year_id" validate:"required"`
	CollegeID          string `json:"college_id" validate:"required"`
}

// MigrationPreviewResponse aggregates counts plus per-year and per-section breakdowns.
type MigrationPreviewResponse struct {
	StudentsToPromote  int                   `json:"students_to_promote"`
	SectionsToArchive  int                   `json:"sections_to_archive"`
	SubjectsToArchive  int                   `json:"subjects_to_archive"`
	AssignmentsToClear int                   `json:"assignments_to_clear"`
	ByYear             []models.YearCount    `json:"by_year"`
	BySection          []models.SectionCount `json:"by_section"`
}

// PromotionRule maps one study year onto its successor ("1" -> "2").
type PromotionRule struct {
	FromYear string `json:"from_year" validate:"required"`
	ToYear   string `json:"to_year" validate:"required"`
}

// PromoteStudentsRequest triggers a bulk year promotion run.
type PromoteStudentsRequest struct {
	AcademicYearID string          `json:"academic_year_id" validate:"required"`
	CollegeID      string          `json:"college_id" validate:"required"`
	PromotionRules []PromotionRule `json:"promotion_rules" validate:"required,min=1,dive"`
	AutoApprove    bool            `json:"auto_approve"`
}

// PromoteStudentsResponse reports the synchronous outcome of a promotion run.
type PromoteStudentsResponse struct {
	MigrationID      string                 `json:"migration_id"`
	Status           models.MigrationStatus `json:"status"`
	StudentsPromoted int                    `json:"students_promoted"`
	RequestsCreated  int                    `json:"requests_created"`
}

// ArchiveRequest retires sections/subjects/assignments of an old academic year.
type ArchiveRequest struct {
	FromAcademicYearID string `json:"from_academic_year_id" validate:"required"`
	ToAcademicYearID   string `json:"to_academic_year_id" validate:"required"`
	CollegeID          string `json:"college_id" validate:"required"`
	ArchiveSections    bool   `json:"archive_sections"`
	ArchiveSubjects    bool   `json:"archive_subjects"`
	ArchiveAssignments bool   `json:"archive_assignments"`
}

// ArchiveResponse reports per-category archive counts.
type ArchiveResponse struct {
	MigrationID        string                 `json:"migration_id"`
	Status             models.MigrationStatus `json:"status"`
	SectionsArchived   int                    `json:"sections_archived"`
	SubjectsArchived   int                    `json:"subjects_archived"`
	AssignmentsCleared int                    `json:"assignments_cleared"`
}

// MigrationQuery mirrors supported history listing filters.
type MigrationQuery struct {
	Status   []models.MigrationStatus
	Type     models.MigrationType
	Page     int
	PageSize int
}
