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

// ReportRepository persists asynchronous export jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued report job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, result_url, created_by, created_at, finished_at, error_message)
	VALUES (:id, :type, :params, :status, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID fetches one report job.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, type, params, status, result_url, created_by, created_at, finished_at, error_message
	FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateReportJobParams groups mutable job columns.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update patches job lifecycle fields.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	setParts := make([]string, 0, 4)
	args := map[string]interface{}{"id": id}
	if params.Status != nil {
		setParts = append(setParts, "status = :status")
		args["status"] = *params.Status
	}
	if params.ResultURL != nil {
		setParts = append(setParts, "result_url = :result_url")
		args["result_url"] = *params.ResultURL
	}
	if params.ErrorMessage != nil {
		setParts = append(setParts, "error_message = :error_message")
		args["error_message"] = *params.ErrorMessage
	}
	if params.FinishedAt != nil {
		setParts = append(setParts, "finished_at = :finished_at")
		args["finished_at"] = *params.FinishedAt
	}
	if len(setParts) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return requireRows(result)
}

// ListFinishedBefore returns finished jobs older than the cutoff, for cleanup.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, type, params, status, result_url, created_by, created_at, finished_at, error_message
	FROM report_jobs WHERE status = $1 AND finished_at < $2 ORDER BY finished_at LIMIT %d`, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusFinished, cutoff); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}
