package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type academicYearStore interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error)
	GetByID(ctx context.Context, id string) (*models.AcademicYear, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	SetCurrent(ctx context.Context, collegeID, yearID string) error
}

// AcademicYearServiceConfig tunes listing cache behaviour.
type AcademicYearServiceConfig struct {
	ListCacheTTL time.Duration
}

// AcademicYearService manages institution years and the current-year flip.
type AcademicYearService struct {
	years     academicYearStore
	cache     migrationCache
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AcademicYearServiceConfig
}

// NewAcademicYearService constructs the service.
func NewAcademicYearService(years academicYearStore, cache migrationCache, audit auditLogger, logger *zap.Logger, cfg AcademicYearServiceConfig) *AcademicYearService {
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{
		years:     years,
		cache:     cache,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
	}
}

// List returns the college's academic years, cached per college.
func (s *AcademicYearService) List(ctx context.Context, includeArchived bool, actor *models.JWTClaims) ([]models.AcademicYear, error) {
	collegeID, err := s.resolveCollege(actor, "")
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("academic_years:%s:%t", collegeID, includeArchived)
	if s.cache != nil {
		var cached []models.AcademicYear
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	years, err := s.years.List(ctx, models.AcademicYearFilter{
		CollegeID:       collegeID,
		IncludeArchived: includeArchived,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, years, s.cfg.ListCacheTTL); err != nil {
			s.logger.Warn("failed to cache academic years", zap.Error(err))
		}
	}
	return years, nil
}

// Create registers a new academic year. When is_current is set the flip runs
// after the insert so the one-current invariant holds.
func (s *AcademicYearService) Create(ctx context.Context, req dto.CreateAcademicYearRequest, actor *models.JWTClaims) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name, start date, and a later end date are required")
	}
	collegeID, err := s.resolveCollege(actor, req.CollegeID)
	if err != nil {
		return nil, err
	}

	year := &models.AcademicYear{
		CollegeID: collegeID,
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := s.years.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}
	if req.IsCurrent {
		if err := s.years.SetCurrent(ctx, collegeID, year.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current year")
		}
		year.IsCurrent = true
	}

	s.invalidate(ctx, collegeID)
	return year, nil
}

// SetCurrent flips the college's current year to the given one.
func (s *AcademicYearService) SetCurrent(ctx context.Context, yearID string, actor *models.JWTClaims) (*models.AcademicYear, error) {
	year, err := s.years.GetByID(ctx, yearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if _, err := s.resolveCollege(actor, year.CollegeID); err != nil {
		return nil, err
	}
	if year.Archived {
		return nil, appErrors.Clone(appErrors.ErrYearArchived, "an archived year cannot become current")
	}

	if err := s.years.SetCurrent(ctx, year.CollegeID, year.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "academic year is no longer eligible to become current")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current year")
	}

	s.invalidate(ctx, year.CollegeID)
	s.emitAudit(ctx, actor, year)

	year.IsCurrent = true
	return year, nil
}

// resolveCollege returns the effective tenant for the call. Superadmins may
// pass an explicit college; everyone else is pinned to their own.
func (s *AcademicYearService) resolveCollege(actor *models.JWTClaims, requested string) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleSuperAdmin {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "college_id is required for superadmin requests")
		}
		return requested, nil
	}
	if actor.CollegeID == nil {
		return "", appErrors.ErrForbidden
	}
	if requested != "" && requested != *actor.CollegeID {
		return "", appErrors.ErrTenantMismatch
	}
	return *actor.CollegeID, nil
}

func (s *AcademicYearService) invalidate(ctx context.Context, collegeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("academic_years:%s:*", collegeID)); err != nil {
		s.logger.Warn("failed to invalidate academic year cache", zap.Error(err))
	}
}

func (s *AcademicYearService) emitAudit(ctx context.Context, actor *models.JWTClaims, year *models.AcademicYear) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"year_name": year.Name, "college_id": year.CollegeID})
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		CollegeID:  &year.CollegeID,
		Action:     models.AuditActionYearSetCurrent,
		Resource:   "academic_year",
		ResourceID: &year.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "academic-year-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
