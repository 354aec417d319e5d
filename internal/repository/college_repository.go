package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/svnapro/campus-api/internal/models"
)

// CollegeRepository persists tenant institutions.
type CollegeRepository struct {
	db *sqlx.DB
}

// NewCollegeRepository constructs the repository.
func NewCollegeRepository(db *sqlx.DB) *CollegeRepository {
	return &CollegeRepository{db: db}
}

// List returns colleges matching the filter.
func (r *CollegeRepository) List(ctx context.Context, filter models.CollegeFilter) ([]models.College, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 2)
	builder.WriteString(`SELECT id, name, code, address, active, created_at, updated_at FROM colleges`)

	conditions := make([]string, 0, 2)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY name")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var colleges []models.College
	if err := r.db.SelectContext(ctx, &colleges, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list colleges: %w", err)
	}
	return colleges, nil
}

// GetByID fetches one college.
func (r *CollegeRepository) GetByID(ctx context.Context, id string) (*models.College, error) {
	const query = `SELECT id, name, code, address, active, created_at, updated_at FROM colleges WHERE id = $1`
	var college models.College
	if err := r.db.GetContext(ctx, &college, query, id); err != nil {
		return nil, err
	}
	return &college, nil
}

// Create inserts a new college row.
func (r *CollegeRepository) Create(ctx context.Context, college *models.College) error {
	if college.ID == "" {
		college.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if college.CreatedAt.IsZero() {
		college.CreatedAt = now
	}
	college.UpdatedAt = now
	const query = `INSERT INTO colleges (id, name, code, address, active, created_at, updated_at)
	VALUES (:id, :name, :code, :address, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, college); err != nil {
		return fmt.Errorf("create college: %w", err)
	}
	return nil
}
