package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/svnapro/campus-api/internal/models"
)

// StudentRepository handles student persistence including the bulk promotion
// transaction and its rollback ledger.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// CountByStudyYear aggregates active students of a college per study year.
func (r *StudentRepository) CountByStudyYear(ctx context.Context, collegeID, academicYearID string) ([]models.YearCount, error) {
	const query = `SELECT study_year, COUNT(*) AS count FROM students
	WHERE college_id = $1 AND academic_year_id = $2 AND active = true
	GROUP BY study_year ORDER BY study_year`
	var counts []models.YearCount
	if err := r.db.SelectContext(ctx, &counts, query, collegeID, academicYearID); err != nil {
		return nil, fmt.Errorf("count students by study year: %w", err)
	}
	return counts, nil
}

// CountBySection aggregates active students of a college per section.
func (r *StudentRepository) CountBySection(ctx context.Context, collegeID, academicYearID string) ([]models.SectionCount, error) {
	const query = `SELECT s.section_id, sec.name AS section_name, COUNT(*) AS count FROM students s
	JOIN sections sec ON sec.id = s.section_id
	WHERE s.college_id = $1 AND s.academic_year_id = $2 AND s.active = true AND s.section_id IS NOT NULL
	GROUP BY s.section_id, sec.name ORDER BY sec.name`
	var counts []models.SectionCount
	if err := r.db.SelectContext(ctx, &counts, query, collegeID, academicYearID); err != nil {
		return nil, fmt.Errorf("count students by section: %w", err)
	}
	return counts, nil
}

// ListPromotable returns active students of a college in the given study year.
func (r *StudentRepository) ListPromotable(ctx context.Context, collegeID, studyYear string) ([]models.Student, error) {
	const query = `SELECT id, roll_no, full_name, email, college_id, department, section_id,
	study_year, academic_year_id, active, created_at, updated_at
	FROM students WHERE college_id = $1 AND study_year = $2 AND active = true ORDER BY roll_no`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, collegeID, studyYear); err != nil {
		return nil, fmt.Errorf("list promotable students: %w", err)
	}
	return students, nil
}

// PromoteRule pairs a study-year transition for the bulk update.
type PromoteRule struct {
	FromYear string
	ToYear   string
}

// PromoteByRules applies every rule in one transaction: matching students move
// to the new study year and target academic year, and a ledger row is written
// per student so the run can be rolled back. Returns the promoted count.
func (r *StudentRepository) PromoteByRules(ctx context.Context, migrationID, collegeID, targetYearID string, rules []PromoteRule) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin promotion: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	promoted := 0
	for _, rule := range rules {
		var candidates []models.Student
		const selectQuery = `SELECT id, study_year, academic_year_id FROM students
		WHERE college_id = $1 AND study_year = $2 AND active = true FOR UPDATE`
		if err := tx.SelectContext(ctx, &candidates, selectQuery, collegeID, rule.FromYear); err != nil {
			return 0, fmt.Errorf("select promotion candidates: %w", err)
		}
		if len(candidates) == 0 {
			continue
		}

		ids := make([]string, len(candidates))
		for i, student := range candidates {
			ids[i] = student.ID
		}
		updateQuery, args, err := sqlx.In(
			`UPDATE students SET study_year = ?, academic_year_id = ?, updated_at = ? WHERE id IN (?)`,
			rule.ToYear, targetYearID, now, ids,
		)
		if err != nil {
			return 0, fmt.Errorf("build promotion update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(updateQuery), args...); err != nil {
			return 0, fmt.Errorf("promote students %s->%s: %w", rule.FromYear, rule.ToYear, err)
		}

		const logQuery = `INSERT INTO student_migration_logs
		(id, migration_id, student_id, from_study_year, to_study_year, from_academic_year_id, to_academic_year_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		for _, student := range candidates {
			if _, err := tx.ExecContext(ctx, logQuery,
				uuid.NewString(), migrationID, student.ID,
				rule.FromYear, rule.ToYear, student.AcademicYearID, targetYearID, now,
			); err != nil {
				return 0, fmt.Errorf("write promotion ledger: %w", err)
			}
		}
		promoted += len(candidates)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit promotion: %w", err)
	}
	return promoted, nil
}

// RollbackMigration restores every student touched by the migration to the
// study year and academic year recorded in its ledger. Returns the number of
// students reverted.
func (r *StudentRepository) RollbackMigration(ctx context.Context, migrationID string) (int, error) {
	const query = `UPDATE students AS s
	SET study_year = l.from_study_year, academic_year_id = l.from_academic_year_id, updated_at = $2
	FROM student_migration_logs AS l
	WHERE l.migration_id = $1 AND s.id = l.student_id`
	result, err := r.db.ExecContext(ctx, query, migrationID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("rollback migration students: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rollback rows: %w", err)
	}
	return int(rows), nil
}

// ApplyPromotion moves a single student to a new study year within the given
// academic year; used when an individual promotion request is approved.
func (r *StudentRepository) ApplyPromotion(ctx context.Context, studentID, toYear, academicYearID string) error {
	const query = `UPDATE students SET study_year = $2, academic_year_id = $3, updated_at = $4 WHERE id = $1 AND active = true`
	result, err := r.db.ExecContext(ctx, query, studentID, toYear, academicYearID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("apply student promotion: %w", err)
	}
	return requireRows(result)
}

// GetByID fetches one student row.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, roll_no, full_name, email, college_id, department, section_id,
	study_year, academic_year_id, active, created_at, updated_at
	FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}
