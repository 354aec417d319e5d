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
	"github.com/svnapro/campus-api/internal/repository"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type migrationStore interface {
	Create(ctx context.Context, migration *models.Migration) error
	GetByID(ctx context.Context, id string) (*models.Migration, error)
	List(ctx context.Context, filter models.MigrationFilter) ([]models.Migration, int, error)
	HasActive(ctx context.Context, collegeID string) (bool, error)
	MarkInProgress(ctx context.Context, id string, startedAt time.Time) error
	Complete(ctx context.Context, params repository.CompleteParams) error
	Fail(ctx context.Context, id, notes string, failedAt time.Time) error
	DisableRollback(ctx context.Context, id, notes string) error
}

type yearStore interface {
	GetByID(ctx context.Context, id string) (*models.AcademicYear, error)
	CurrentForCollege(ctx context.Context, collegeID string) (*models.AcademicYear, error)
	MarkArchived(ctx context.Context, id string) error
}

type promotionStudentStore interface {
	CountByStudyYear(ctx context.Context, collegeID, academicYearID string) ([]models.YearCount, error)
	CountBySection(ctx context.Context, collegeID, academicYearID string) ([]models.SectionCount, error)
	ListPromotable(ctx context.Context, collegeID, studyYear string) ([]models.Student, error)
	PromoteByRules(ctx context.Context, migrationID, collegeID, targetYearID string, rules []repository.PromoteRule) (int, error)
	RollbackMigration(ctx context.Context, migrationID string) (int, error)
}

type archiveStore interface {
	PreviewCounts(ctx context.Context, collegeID, academicYearID string) (*models.ArchivePreviewCounts, error)
	ArchiveSections(ctx context.Context, collegeID, academicYearID string) (int, error)
	ArchiveSubjects(ctx context.Context, collegeID, academicYearID string) (int, error)
	ClearAssignments(ctx context.Context, collegeID, academicYearID string) (int, error)
}

type promotionRequestWriter interface {
	CreateBulk(ctx context.Context, requests []models.PromotionRequest) (int, error)
}

type migrationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// MigrationServiceConfig tunes preview caching.
type MigrationServiceConfig struct {
	PreviewCacheTTL time.Duration
}

// MigrationService owns the year promotion / archival workflow: preview,
// trigger, history, and rollback.
type MigrationService struct {
	migrations migrationStore
	years      yearStore
	students   promotionStudentStore
	archives   archiveStore
	requests   promotionRequestWriter
	cache      migrationCache
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        MigrationServiceConfig
}

// MigrationServiceParams groups constructor dependencies.
type MigrationServiceParams struct {
	Migrations migrationStore
	Years      yearStore
	Students   promotionStudentStore
	Archives   archiveStore
	Requests   promotionRequestWriter
	Cache      migrationCache
	Audit      auditLogger
	Validator  *validator.Validate
	Logger     *zap.Logger
	Config     MigrationServiceConfig
}

// NewMigrationService constructs the service with sane defaults.
func NewMigrationService(params MigrationServiceParams) *MigrationService {
	cfg := params.Config
	if cfg.PreviewCacheTTL <= 0 {
		cfg.PreviewCacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &MigrationService{
		migrations: params.Migrations,
		years:      params.Years,
		students:   params.Students,
		archives:   params.Archives,
		requests:   params.Requests,
		cache:      params.Cache,
		audit:      params.Audit,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Preview computes what a migration between two years would touch. The second
// return value reports whether the response was served from cache.
func (s *MigrationService) Preview(ctx context.Context, req dto.PreviewMigrationRequest, actor *models.JWTClaims) (*dto.MigrationPreviewResponse, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from year, to year, and college are required")
	}
	if err := s.checkTenant(actor, req.CollegeID); err != nil {
		return nil, false, err
	}
	if req.FromAcademicYearID == req.ToAcademicYearID {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "from and to academic years must differ")
	}
	fromYear, toYear, err := s.resolveYearPair(ctx, req.FromAcademicYearID, req.ToAcademicYearID, req.CollegeID)
	if err != nil {
		return nil, false, err
	}

	cacheKey := fmt.Sprintf("migration:preview:%s:%s:%s", req.CollegeID, fromYear.ID, toYear.ID)
	if s.cache != nil {
		var cached dto.MigrationPreviewResponse
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, true, nil
		}
	}

	byYear, err := s.students.CountByStudyYear(ctx, req.CollegeID, fromYear.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate students by year")
	}
	bySection, err := s.students.CountBySection(ctx, req.CollegeID, fromYear.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate students by section")
	}
	archive, err := s.archives.PreviewCounts(ctx, req.CollegeID, fromYear.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate archive counts")
	}

	total := 0
	for _, count := range byYear {
		total += count.Count
	}
	preview := &dto.MigrationPreviewResponse{
		StudentsToPromote:  total,
		SectionsToArchive:  archive.Sections,
		SubjectsToArchive:  archive.Subjects,
		AssignmentsToClear: archive.Assignments,
		ByYear:             byYear,
		BySection:          bySection,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, preview, s.cfg.PreviewCacheTTL); err != nil {
			s.logger.Warn("failed to cache migration preview", zap.Error(err))
		}
	}
	return preview, false, nil
}

// Promote runs a bulk year promotion. With auto-approve the matched students
// move immediately inside one transaction; without it a pending promotion
// request is created per student for later admin review.
func (s *MigrationService) Promote(ctx context.Context, req dto.PromoteStudentsRequest, actor *models.JWTClaims) (*dto.PromoteStudentsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "target year, college, and at least one promotion rule are required")
	}
	if err := s.checkTenant(actor, req.CollegeID); err != nil {
		return nil, err
	}
	targetYear, err := s.loadCollegeYear(ctx, req.AcademicYearID, req.CollegeID)
	if err != nil {
		return nil, err
	}
	if targetYear.Archived {
		return nil, appErrors.Clone(appErrors.ErrYearArchived, "cannot promote into an archived academic year")
	}

	running, err := s.migrations.HasActive(ctx, req.CollegeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check running migrations")
	}
	if running {
		return nil, appErrors.ErrMigrationRunning
	}

	var fromYearID *string
	if current, err := s.years.CurrentForCollege(ctx, req.CollegeID); err == nil {
		fromYearID = &current.ID
	}

	migration := &models.Migration{
		FromAcademicYearID: fromYearID,
		ToAcademicYearID:   &targetYear.ID,
		CollegeID:          req.CollegeID,
		MigrationType:      models.MigrationTypeYearPromotion,
		TriggeredBy:        actor.UserID,
	}
	if err := s.migrations.Create(ctx, migration); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create migration record")
	}
	if err := s.migrations.MarkInProgress(ctx, migration.ID, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start migration")
	}

	promoted := 0
	requestsCreated := 0
	if req.AutoApprove {
		rules := make([]repository.PromoteRule, len(req.PromotionRules))
		for i, rule := range req.PromotionRules {
			rules[i] = repository.PromoteRule{FromYear: rule.FromYear, ToYear: rule.ToYear}
		}
		promoted, err = s.students.PromoteByRules(ctx, migration.ID, req.CollegeID, targetYear.ID, rules)
	} else {
		requestsCreated, err = s.createReviewRequests(ctx, req, targetYear.ID)
	}
	if err != nil {
		s.failMigration(ctx, migration.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "promotion run failed")
	}

	if err := s.migrations.Complete(ctx, repository.CompleteParams{
		ID:               migration.ID,
		StudentsPromoted: promoted,
		CanRollback:      req.AutoApprove && promoted > 0,
		CompletedAt:      time.Now().UTC(),
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise migration")
	}

	s.invalidatePreview(ctx, req.CollegeID)
	s.emitAudit(ctx, actor, models.AuditActionMigrationPromote, migration.ID, map[string]interface{}{
		"students_promoted": promoted,
		"requests_created":  requestsCreated,
		"auto_approve":      req.AutoApprove,
	})

	return &dto.PromoteStudentsResponse{
		MigrationID:      migration.ID,
		Status:           models.MigrationStatusCompleted,
		StudentsPromoted: promoted,
		RequestsCreated:  requestsCreated,
	}, nil
}

// Archive retires sections, subjects, and assignments of an old year according
// to the request flags and marks the year archived.
func (s *MigrationService) Archive(ctx context.Context, req dto.ArchiveRequest, actor *models.JWTClaims) (*dto.ArchiveResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from year, to year, and college are required")
	}
	if err := s.checkTenant(actor, req.CollegeID); err != nil {
		return nil, err
	}
	fromYear, _, err := s.resolveYearPair(ctx, req.FromAcademicYearID, req.ToAcademicYearID, req.CollegeID)
	if err != nil {
		return nil, err
	}
	if fromYear.IsCurrent {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cannot archive the current academic year")
	}

	running, err := s.migrations.HasActive(ctx, req.CollegeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check running migrations")
	}
	if running {
		return nil, appErrors.ErrMigrationRunning
	}

	migration := &models.Migration{
		FromAcademicYearID: &req.FromAcademicYearID,
		ToAcademicYearID:   &req.ToAcademicYearID,
		CollegeID:          req.CollegeID,
		MigrationType:      models.MigrationTypeArchive,
		TriggeredBy:        actor.UserID,
	}
	if err := s.migrations.Create(ctx, migration); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create migration record")
	}
	if err := s.migrations.MarkInProgress(ctx, migration.ID, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start migration")
	}

	var sections, subjects, assignments int
	run := func() error {
		if req.ArchiveSections {
			if sections, err = s.archives.ArchiveSections(ctx, req.CollegeID, fromYear.ID); err != nil {
				return err
			}
		}
		if req.ArchiveSubjects {
			if subjects, err = s.archives.ArchiveSubjects(ctx, req.CollegeID, fromYear.ID); err != nil {
				return err
			}
		}
		if req.ArchiveAssignments {
			if assignments, err = s.archives.ClearAssignments(ctx, req.CollegeID, fromYear.ID); err != nil {
				return err
			}
		}
		return s.years.MarkArchived(ctx, fromYear.ID)
	}
	if err := run(); err != nil {
		s.failMigration(ctx, migration.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "archive run failed")
	}

	if err := s.migrations.Complete(ctx, repository.CompleteParams{
		ID:                 migration.ID,
		SectionsArchived:   sections,
		SubjectsArchived:   subjects,
		AssignmentsCleared: assignments,
		CompletedAt:        time.Now().UTC(),
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise migration")
	}

	s.invalidatePreview(ctx, req.CollegeID)
	s.emitAudit(ctx, actor, models.AuditActionMigrationArchive, migration.ID, map[string]interface{}{
		"sections_archived":   sections,
		"subjects_archived":   subjects,
		"assignments_cleared": assignments,
	})

	return &dto.ArchiveResponse{
		MigrationID:        migration.ID,
		Status:             models.MigrationStatusCompleted,
		SectionsArchived:   sections,
		SubjectsArchived:   subjects,
		AssignmentsCleared: assignments,
	}, nil
}

// List returns the tenant's migration history, newest first.
func (s *MigrationService) List(ctx context.Context, query dto.MigrationQuery, actor *models.JWTClaims) ([]models.Migration, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page, size := normalisePage(query.Page, query.PageSize)
	filter := models.MigrationFilter{
		Status: query.Status,
		Type:   query.Type,
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if actor.Role != models.RoleSuperAdmin {
		if actor.CollegeID == nil {
			return nil, nil, appErrors.ErrForbidden
		}
		filter.CollegeID = *actor.CollegeID
	}
	migrations, total, err := s.migrations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list migrations")
	}
	return migrations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one migration, enforcing tenant scope.
func (s *MigrationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Migration, error) {
	migration, err := s.loadMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTenant(actor, migration.CollegeID); err != nil {
		return nil, err
	}
	return migration, nil
}

// Rollback reverses a completed promotion run using its student ledger.
func (s *MigrationService) Rollback(ctx context.Context, id string, actor *models.JWTClaims) (*models.Migration, error) {
	migration, err := s.loadMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTenant(actor, migration.CollegeID); err != nil {
		return nil, err
	}
	if migration.MigrationType != models.MigrationTypeYearPromotion ||
		migration.Status != models.MigrationStatusCompleted || !migration.CanRollback {
		return nil, appErrors.ErrRollbackUnavailable
	}

	reverted, err := s.students.RollbackMigration(ctx, migration.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revert promoted students")
	}
	notes := fmt.Sprintf("rolled back by %s: %d students reverted", actor.UserID, reverted)
	if err := s.migrations.DisableRollback(ctx, migration.ID, notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "migration already rolled back")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark migration rolled back")
	}

	s.invalidatePreview(ctx, migration.CollegeID)
	s.emitAudit(ctx, actor, models.AuditActionMigrationRollback, migration.ID, map[string]interface{}{
		"students_reverted": reverted,
	})

	migration.CanRollback = false
	migration.Notes = &notes
	return migration, nil
}

func (s *MigrationService) createReviewRequests(ctx context.Context, req dto.PromoteStudentsRequest, targetYearID string) (int, error) {
	requests := make([]models.PromotionRequest, 0, 64)
	for _, rule := range req.PromotionRules {
		students, err := s.students.ListPromotable(ctx, req.CollegeID, rule.FromYear)
		if err != nil {
			return 0, err
		}
		note := fmt.Sprintf("bulk promotion into year %s pending review", targetYearID)
		for _, student := range students {
			requests = append(requests, models.PromotionRequest{
				StudentID: student.ID,
				CollegeID: req.CollegeID,
				FromYear:  rule.FromYear,
				ToYear:    rule.ToYear,
				Status:    models.PromotionStatusPending,
				Notes:     &note,
			})
		}
	}
	return s.requests.CreateBulk(ctx, requests)
}

func (s *MigrationService) resolveYearPair(ctx context.Context, fromID, toID, collegeID string) (*models.AcademicYear, *models.AcademicYear, error) {
	fromYear, err := s.loadCollegeYear(ctx, fromID, collegeID)
	if err != nil {
		return nil, nil, err
	}
	toYear, err := s.loadCollegeYear(ctx, toID, collegeID)
	if err != nil {
		return nil, nil, err
	}
	return fromYear, toYear, nil
}

func (s *MigrationService) loadCollegeYear(ctx context.Context, id, collegeID string) (*models.AcademicYear, error) {
	year, err := s.years.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if year.CollegeID != collegeID {
		return nil, appErrors.ErrTenantMismatch
	}
	return year, nil
}

func (s *MigrationService) loadMigration(ctx context.Context, id string) (*models.Migration, error) {
	migration, err := s.migrations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load migration")
	}
	return migration, nil
}

func (s *MigrationService) checkTenant(actor *models.JWTClaims, collegeID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleSuperAdmin {
		return nil
	}
	if actor.CollegeID == nil || *actor.CollegeID != collegeID {
		return appErrors.ErrTenantMismatch
	}
	return nil
}

func (s *MigrationService) failMigration(ctx context.Context, id string, cause error) {
	if err := s.migrations.Fail(ctx, id, cause.Error(), time.Now().UTC()); err != nil {
		s.logger.Error("failed to mark migration failed", zap.String("migration_id", id), zap.Error(err))
	}
}

func (s *MigrationService) invalidatePreview(ctx context.Context, collegeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("migration:preview:%s:*", collegeID)); err != nil {
		s.logger.Warn("failed to invalidate preview cache", zap.Error(err))
	}
}

func (s *MigrationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, migrationID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		CollegeID:  actor.CollegeID,
		Action:     action,
		Resource:   "migration",
		ResourceID: &migrationID,
		NewValues:  raw,
		IPAddress:  "system",
		UserAgent:  "migration-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
