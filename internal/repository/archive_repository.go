package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/svnapro/campus-api/internal/models"
)

// ArchiveRepository retires sections and subjects of an old academic year and
// clears its assignments.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// PreviewCounts reports how many rows an archive run over the year would touch.
func (r *ArchiveRepository) PreviewCounts(ctx context.Context, collegeID, academicYearID string) (*models.ArchivePreviewCounts, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM sections WHERE college_id = $1 AND academic_year_id = $2 AND archived = false) AS sections,
	(SELECT COUNT(*) FROM subjects WHERE college_id = $1 AND academic_year_id = $2 AND archived = false) AS subjects,
	(SELECT COUNT(*) FROM assignments WHERE college_id = $1 AND academic_year_id = $2 AND cleared = false) AS assignments`
	var counts models.ArchivePreviewCounts
	if err := r.db.GetContext(ctx, &counts, query, collegeID, academicYearID); err != nil {
		return nil, fmt.Errorf("preview archive counts: %w", err)
	}
	return &counts, nil
}

// ArchiveSections flags the year's sections as archived, returning the count.
func (r *ArchiveRepository) ArchiveSections(ctx context.Context, collegeID, academicYearID string) (int, error) {
	const query = `UPDATE sections SET archived = true, archived_at = $3
	WHERE college_id = $1 AND academic_year_id = $2 AND archived = false`
	return r.exec(ctx, query, collegeID, academicYearID, "archive sections")
}

// ArchiveSubjects flags the year's subjects as archived, returning the count.
func (r *ArchiveRepository) ArchiveSubjects(ctx context.Context, collegeID, academicYearID string) (int, error) {
	const query = `UPDATE subjects SET archived = true, archived_at = $3
	WHERE college_id = $1 AND academic_year_id = $2 AND archived = false`
	return r.exec(ctx, query, collegeID, academicYearID, "archive subjects")
}

// ClearAssignments retires the year's assignments, returning the count.
func (r *ArchiveRepository) ClearAssignments(ctx context.Context, collegeID, academicYearID string) (int, error) {
	const query = `UPDATE assignments SET cleared = true, cleared_at = $3
	WHERE college_id = $1 AND academic_year_id = $2 AND cleared = false`
	return r.exec(ctx, query, collegeID, academicYearID, "clear assignments")
}

func (r *ArchiveRepository) exec(ctx context.Context, query, collegeID, academicYearID, op string) (int, error) {
	result, err := r.db.ExecContext(ctx, query, collegeID, academicYearID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows: %w", op, err)
	}
	return int(rows), nil
}
