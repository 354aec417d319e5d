package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/svnapro/campus-api/internal/models"
)

// AcademicYearRepository persists institution years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository constructs the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// List returns academic years matching the filter, newest first.
func (r *AcademicYearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT id, college_id, name, start_date, end_date, is_current, archived, created_at, updated_at
	FROM academic_years`)

	conditions := make([]string, 0, 3)
	if filter.CollegeID != "" {
		args = append(args, filter.CollegeID)
		conditions = append(conditions, fmt.Sprintf("college_id = $%d", len(args)))
	}
	if filter.IsCurrent != nil {
		args = append(args, *filter.IsCurrent)
		conditions = append(conditions, fmt.Sprintf("is_current = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "archived = false")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY start_date DESC")

	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}

// GetByID fetches one academic year.
func (r *AcademicYearRepository) GetByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	const query = `SELECT id, college_id, name, start_date, end_date, is_current, archived, created_at, updated_at
	FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// Create inserts a new academic year row.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now
	const query = `INSERT INTO academic_years
	(id, college_id, name, start_date, end_date, is_current, archived, created_at, updated_at)
	VALUES (:id, :college_id, :name, :start_date, :end_date, :is_current, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// SetCurrent atomically makes the given year the sole current year of its
// college: every other year is cleared first, inside one transaction.
func (r *AcademicYearRepository) SetCurrent(ctx context.Context, collegeID, yearID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current year: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE academic_years SET is_current = false, updated_at = $2 WHERE college_id = $1 AND is_current = true`,
		collegeID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("clear current year: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE academic_years SET is_current = true, updated_at = $3 WHERE id = $1 AND college_id = $2 AND archived = false`,
		yearID, collegeID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set current year: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check current year rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set current year: %w", err)
	}
	return nil
}

// CurrentForCollege resolves the single current year of a college.
func (r *AcademicYearRepository) CurrentForCollege(ctx context.Context, collegeID string) (*models.AcademicYear, error) {
	const query = `SELECT id, college_id, name, start_date, end_date, is_current, archived, created_at, updated_at
	FROM academic_years WHERE college_id = $1 AND is_current = true`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, collegeID); err != nil {
		return nil, err
	}
	return &year, nil
}

// MarkArchived flags a retired academic year.
func (r *AcademicYearRepository) MarkArchived(ctx context.Context, id string) error {
	const query = `UPDATE academic_years SET archived = true, is_current = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("archive academic year: %w", err)
	}
	return nil
}
