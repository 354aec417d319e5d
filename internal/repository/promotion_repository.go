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

const promotionColumns = `id, student_id, college_id, from_year, to_year, fee_paid, fee_amount,
       payment_reference, status, rejection_reason, notes, requested_at, reviewed_by, reviewed_at, promoted_at`

// PromotionRepository persists student promotion requests.
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs the repository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// Create inserts a new promotion request row.
func (r *PromotionRepository) Create(ctx context.Context, request *models.PromotionRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.PromotionStatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO promotion_requests
	(id, student_id, college_id, from_year, to_year, fee_paid, fee_amount, payment_reference,
	 status, rejection_reason, notes, requested_at, reviewed_by, reviewed_at, promoted_at)
	VALUES (:id, :student_id, :college_id, :from_year, :to_year, :fee_paid, :fee_amount, :payment_reference,
	 :status, :rejection_reason, :notes, :requested_at, :reviewed_by, :reviewed_at, :promoted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create promotion request: %w", err)
	}
	return nil
}

// CreateBulk inserts pending requests for a batch of students, as produced by
// a promotion run with auto_approve disabled.
func (r *PromotionRepository) CreateBulk(ctx context.Context, requests []models.PromotionRequest) (int, error) {
	if len(requests) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk promotion requests: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const query = `INSERT INTO promotion_requests
	(id, student_id, college_id, from_year, to_year, fee_paid, status, notes, requested_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i := range requests {
		request := &requests[i]
		if request.ID == "" {
			request.ID = uuid.NewString()
		}
		if request.Status == "" {
			request.Status = models.PromotionStatusPending
		}
		if request.RequestedAt.IsZero() {
			request.RequestedAt = now
		}
		if _, err := tx.ExecContext(ctx, query,
			request.ID, request.StudentID, request.CollegeID,
			request.FromYear, request.ToYear, request.FeePaid,
			request.Status, request.Notes, request.RequestedAt,
		); err != nil {
			return 0, fmt.Errorf("insert promotion request: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk promotion requests: %w", err)
	}
	return len(requests), nil
}

// GetByID fetches a promotion request by identifier.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*models.PromotionRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM promotion_requests WHERE id = $1`, promotionColumns)
	var request models.PromotionRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns promotion requests matching the filter, newest first.
func (r *PromotionRepository) List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)

	if filter.CollegeID != "" {
		args = append(args, filter.CollegeID)
		conditions = append(conditions, fmt.Sprintf("college_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
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

	query := fmt.Sprintf("SELECT %s FROM promotion_requests%s ORDER BY requested_at DESC LIMIT %d OFFSET %d",
		promotionColumns, clause, limit, offset)

	var requests []models.PromotionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list promotion requests: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM promotion_requests" + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count promotion requests: %w", err)
	}
	return requests, total, nil
}

// ReviewParams groups the mutable review columns.
type ReviewParams struct {
	ID              string
	Status          models.PromotionStatus
	ReviewedBy      string
	ReviewedAt      time.Time
	RejectionReason *string
	PromotedAt      *time.Time
}

// Review persists the reviewer decision. Only pending requests transition;
// anything else yields sql.ErrNoRows.
func (r *PromotionRepository) Review(ctx context.Context, params ReviewParams) error {
	query := fmt.Sprintf(`UPDATE promotion_requests
	SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
	    rejection_reason = :rejection_reason, promoted_at = :promoted_at
	WHERE id = :id AND status = '%s'`, models.PromotionStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"reviewed_by":      params.ReviewedBy,
		"reviewed_at":      params.ReviewedAt,
		"rejection_reason": params.RejectionReason,
		"promoted_at":      params.PromotedAt,
	})
	if err != nil {
		return fmt.Errorf("review promotion request: %w", err)
	}
	return requireRows(result)
}
