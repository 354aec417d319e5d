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

const migrationColumns = `id, from_academic_year_id, to_academic_year_id, college_id, migration_type, status,
       students_promoted, sections_archived, subjects_archived, assignments_cleared,
       can_rollback, notes, triggered_by, created_at, started_at, completed_at`

// MigrationRepository persists migration run records.
type MigrationRepository struct {
	db *sqlx.DB
}

// NewMigrationRepository constructs the repository.
func NewMigrationRepository(db *sqlx.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// Create inserts a new migration row in pending state.
func (r *MigrationRepository) Create(ctx context.Context, migration *models.Migration) error {
	if migration.ID == "" {
		migration.ID = uuid.NewString()
	}
	if migration.Status == "" {
		migration.Status = models.MigrationStatusPending
	}
	if migration.CreatedAt.IsZero() {
		migration.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO migrations
	(id, from_academic_year_id, to_academic_year_id, college_id, migration_type, status,
	 students_promoted, sections_archived, subjects_archived, assignments_cleared,
	 can_rollback, notes, triggered_by, created_at, started_at, completed_at)
	VALUES (:id, :from_academic_year_id, :to_academic_year_id, :college_id, :migration_type, :status,
	 :students_promoted, :sections_archived, :subjects_archived, :assignments_cleared,
	 :can_rollback, :notes, :triggered_by, :created_at, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, migration); err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	return nil
}

// GetByID fetches a migration by identifier.
func (r *MigrationRepository) GetByID(ctx context.Context, id string) (*models.Migration, error) {
	query := fmt.Sprintf(`SELECT %s FROM migrations WHERE id = $1`, migrationColumns)
	var migration models.Migration
	if err := r.db.GetContext(ctx, &migration, query, id); err != nil {
		return nil, err
	}
	return &migration, nil
}

// List returns migrations matching the filter, newest first, plus the total count.
func (r *MigrationRepository) List(ctx context.Context, filter models.MigrationFilter) ([]models.Migration, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)

	if filter.CollegeID != "" {
		args = append(args, filter.CollegeID)
		conditions = append(conditions, fmt.Sprintf("college_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("migration_type = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM migrations%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		migrationColumns, clause, limit, offset)

	var migrations []models.Migration
	if err := r.db.SelectContext(ctx, &migrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list migrations: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM migrations" + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count migrations: %w", err)
	}
	return migrations, total, nil
}

// HasActive reports whether a pending or in-progress migration exists for the college.
// This is the server-side mutual exclusion the dashboards cannot provide.
func (r *MigrationRepository) HasActive(ctx context.Context, collegeID string) (bool, error) {
	const query = `SELECT 1 FROM migrations WHERE college_id = $1 AND status IN ($2, $3) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, collegeID, models.MigrationStatusPending, models.MigrationStatusInProgress)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active migration: %w", err)
	}
	return true, nil
}

// MarkInProgress transitions pending -> in_progress. Returns sql.ErrNoRows when
// the migration is not pending anymore.
func (r *MigrationRepository) MarkInProgress(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE migrations SET status = $2, started_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.MigrationStatusInProgress, startedAt, models.MigrationStatusPending)
	if err != nil {
		return fmt.Errorf("mark migration in progress: %w", err)
	}
	return requireRows(result)
}

// CompleteParams groups the terminal counters of a successful run.
type CompleteParams struct {
	ID                 string
	StudentsPromoted   int
	SectionsArchived   int
	SubjectsArchived   int
	AssignmentsCleared int
	CanRollback        bool
	CompletedAt        time.Time
}

// Complete transitions in_progress -> completed and stores the counters.
func (r *MigrationRepository) Complete(ctx context.Context, params CompleteParams) error {
	const query = `UPDATE migrations SET status = $2, students_promoted = $3, sections_archived = $4,
	subjects_archived = $5, assignments_cleared = $6, can_rollback = $7, completed_at = $8
	WHERE id = $1 AND status = $9`
	result, err := r.db.ExecContext(ctx, query,
		params.ID, models.MigrationStatusCompleted,
		params.StudentsPromoted, params.SectionsArchived, params.SubjectsArchived, params.AssignmentsCleared,
		params.CanRollback, params.CompletedAt, models.MigrationStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("complete migration: %w", err)
	}
	return requireRows(result)
}

// Fail transitions any non-terminal state to failed and records the cause.
func (r *MigrationRepository) Fail(ctx context.Context, id, notes string, failedAt time.Time) error {
	const query = `UPDATE migrations SET status = $2, notes = $3, completed_at = $4
	WHERE id = $1 AND status IN ($5, $6)`
	result, err := r.db.ExecContext(ctx, query,
		id, models.MigrationStatusFailed, notes, failedAt,
		models.MigrationStatusPending, models.MigrationStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("fail migration: %w", err)
	}
	return requireRows(result)
}

// DisableRollback clears can_rollback after a rollback was consumed. The
// conditional guard makes double rollback impossible.
func (r *MigrationRepository) DisableRollback(ctx context.Context, id, notes string) error {
	const query = `UPDATE migrations SET can_rollback = false, notes = $2
	WHERE id = $1 AND can_rollback = true AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, notes, models.MigrationStatusCompleted)
	if err != nil {
		return fmt.Errorf("disable migration rollback: %w", err)
	}
	return requireRows(result)
}

func requireRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
