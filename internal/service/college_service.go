package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type collegeStore interface {
	List(ctx context.Context, filter models.CollegeFilter) ([]models.College, error)
	GetByID(ctx context.Context, id string) (*models.College, error)
	Create(ctx context.Context, college *models.College) error
}

// CollegeService manages tenant institutions. Creation is superadmin-only.
type CollegeService struct {
	colleges  collegeStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCollegeService constructs the service.
func NewCollegeService(colleges collegeStore, logger *zap.Logger) *CollegeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollegeService{colleges: colleges, validator: validator.New(), logger: logger}
}

// List returns colleges visible to the actor. Non-superadmins only see their
// own institution.
func (s *CollegeService) List(ctx context.Context, search string, actor *models.JWTClaims) ([]models.College, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleSuperAdmin {
		if actor.CollegeID == nil {
			return nil, appErrors.ErrForbidden
		}
		college, err := s.colleges.GetByID(ctx, *actor.CollegeID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load college")
		}
		return []models.College{*college}, nil
	}
	colleges, err := s.colleges.List(ctx, models.CollegeFilter{Search: search})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list colleges")
	}
	return colleges, nil
}

// Create registers a new tenant institution.
func (s *CollegeService) Create(ctx context.Context, req dto.CreateCollegeRequest, actor *models.JWTClaims) (*models.College, error) {
	if actor == nil || actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name and an alphanumeric code are required")
	}
	college := &models.College{
		Name:    req.Name,
		Code:    req.Code,
		Address: req.Address,
		Active:  true,
	}
	if err := s.colleges.Create(ctx, college); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create college")
	}
	return college, nil
}
