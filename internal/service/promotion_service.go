package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	"github.com/svnapro/campus-api/internal/repository"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type promotionStore interface {
	Create(ctx context.Context, request *models.PromotionRequest) error
	GetByID(ctx context.Context, id string) (*models.PromotionRequest, error)
	List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, int, error)
	Review(ctx context.Context, params repository.ReviewParams) error
}

type studentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
	ApplyPromotion(ctx context.Context, studentID, toYear, academicYearID string) error
}

type currentYearReader interface {
	CurrentForCollege(ctx context.Context, collegeID string) (*models.AcademicYear, error)
}

// PromotionService handles student self-service promotion requests and the
// admin review flow.
type PromotionService struct {
	promotions promotionStore
	students   studentReader
	years      currentYearReader
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewPromotionService constructs the service.
func NewPromotionService(promotions promotionStore, students studentReader, years currentYearReader, audit auditLogger, logger *zap.Logger) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{
		promotions: promotions,
		students:   students,
		years:      years,
		audit:      audit,
		validator:  validator.New(),
		logger:     logger,
	}
}

// CreateRequest files a promotion request for the authenticated student. The
// from-year must match the student's current study year, and at most one
// pending request per student is allowed.
func (s *PromotionService) CreateRequest(ctx context.Context, req dto.CreatePromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from year and to year are required")
	}
	if actor == nil || actor.StudentID == nil || actor.CollegeID == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only student accounts can request promotion")
	}

	student, err := s.students.GetByID(ctx, *actor.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "inactive students cannot request promotion")
	}
	if student.StudyYear != req.FromYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from year does not match the student's current study year")
	}

	pending, _, err := s.promotions.List(ctx, models.PromotionFilter{
		StudentID: student.ID,
		Status:    []models.PromotionStatus{models.PromotionStatusPending},
		Limit:     1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing requests")
	}
	if len(pending) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending promotion request already exists")
	}

	request := &models.PromotionRequest{
		StudentID: student.ID,
		CollegeID: student.CollegeID,
		FromYear:  req.FromYear,
		ToYear:    req.ToYear,
		FeeAmount: req.FeeAmount,
		FeePaid:   req.PaymentReference != "",
		Status:    models.PromotionStatusPending,
	}
	if req.PaymentReference != "" {
		request.PaymentReference = &req.PaymentReference
	}
	if req.Notes != "" {
		request.Notes = &req.Notes
	}
	if err := s.promotions.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create promotion request")
	}

	s.emitAudit(ctx, actor, models.AuditActionPromotionRequest, request.ID)
	return request, nil
}

// ListMine returns the authenticated student's own requests.
func (s *PromotionService) ListMine(ctx context.Context, query dto.PromotionQuery, actor *models.JWTClaims) ([]models.PromotionRequest, *models.Pagination, error) {
	if actor == nil || actor.StudentID == nil {
		return nil, nil, appErrors.ErrForbidden
	}
	page, size := normalisePage(query.Page, query.PageSize)
	requests, total, err := s.promotions.List(ctx, models.PromotionFilter{
		StudentID: *actor.StudentID,
		Status:    query.Status,
		Limit:     size,
		Offset:    (page - 1) * size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list promotion requests")
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// List returns college-scoped requests for reviewers.
func (s *PromotionService) List(ctx context.Context, query dto.PromotionQuery, actor *models.JWTClaims) ([]models.PromotionRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.PromotionFilter{Status: query.Status}
	if actor.Role != models.RoleSuperAdmin {
		if actor.CollegeID == nil {
			return nil, nil, appErrors.ErrForbidden
		}
		filter.CollegeID = *actor.CollegeID
	}
	page, size := normalisePage(query.Page, query.PageSize)
	filter.Limit = size
	filter.Offset = (page - 1) * size

	requests, total, err := s.promotions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list promotion requests")
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Review applies the admin decision. An approval moves the student immediately
// and stores the request as completed with a promotion timestamp; a rejection
// requires a reason.
func (s *PromotionService) Review(ctx context.Context, id string, req dto.ReviewPromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error) {
	if req.Status != models.PromotionStatusApproved && req.Status != models.PromotionStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}
	if req.Status == models.PromotionStatusRejected && req.Reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}

	request, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion request")
	}
	if actor.Role != models.RoleSuperAdmin && (actor.CollegeID == nil || *actor.CollegeID != request.CollegeID) {
		return nil, appErrors.ErrTenantMismatch
	}
	if request.Status != models.PromotionStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "promotion request has already been reviewed")
	}

	now := time.Now().UTC()
	params := repository.ReviewParams{
		ID:         request.ID,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
	}
	switch req.Status {
	case models.PromotionStatusApproved:
		currentYear, err := s.years.CurrentForCollege(ctx, request.CollegeID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current academic year")
		}
		if err := s.students.ApplyPromotion(ctx, request.StudentID, request.ToYear, currentYear.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote student")
		}
		params.Status = models.PromotionStatusCompleted
		params.PromotedAt = &now
	case models.PromotionStatusRejected:
		params.Status = models.PromotionStatusRejected
		params.RejectionReason = &req.Reason
	}

	if err := s.promotions.Review(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "promotion request has already been reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review decision")
	}

	s.emitAudit(ctx, actor, models.AuditActionPromotionReview, request.ID)

	request.Status = params.Status
	request.ReviewedBy = &actor.UserID
	request.ReviewedAt = &now
	request.RejectionReason = params.RejectionReason
	request.PromotedAt = params.PromotedAt
	return request, nil
}

func (s *PromotionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, requestID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		CollegeID:  actor.CollegeID,
		Action:     action,
		Resource:   "promotion_request",
		ResourceID: &requestID,
		IPAddress:  "system",
		UserAgent:  "promotion-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
