package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	"github.com/svnapro/campus-api/internal/repository"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
	"github.com/svnapro/campus-api/pkg/jobs"
	"github.com/svnapro/campus-api/pkg/storage"
)

type reportStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type reportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) ([]byte, string, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

type reportMetrics interface {
	ObserveReportJob(status string)
}

// ReportServiceConfig tunes file retention.
type ReportServiceConfig struct {
	FileTTL time.Duration
}

// ReportService queues, processes, and serves asynchronous export jobs.
type ReportService struct {
	reports   reportStore
	generator reportGenerator
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	queue     reportQueue
	metrics   reportMetrics
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// NewReportService constructs the service. The queue is wired after
// construction because its handler closes over the service.
func NewReportService(reports reportStore, generator reportGenerator, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics reportMetrics, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if cfg.FileTTL <= 0 {
		cfg.FileTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:   reports,
		generator: generator,
		storage:   store,
		signer:    signer,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
	}
}

// AttachQueue binds the background queue used for processing.
func (s *ReportService) AttachQueue(queue reportQueue) {
	s.queue = queue
}

// CreateJob validates the request, persists a queued job, and enqueues it.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actor *models.JWTClaims) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "report type and a csv or pdf format are required")
	}
	if req.Type != models.ReportTypeMigrationHistory && req.Type != models.ReportTypePromotionLedger {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if actor == nil || actor.CollegeID == nil {
		return nil, appErrors.ErrForbidden
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report processing is not available")
	}

	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			CollegeID: *actor.CollegeID,
			Format:    req.Format,
			Status:    req.Status,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.UserID,
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		s.failJob(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// GetStatus returns job progress for the owning tenant.
func (s *ReportService) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ReportStatusResponse, error) {
	job, err := s.loadScoped(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	resp := &dto.ReportStatusResponse{ID: job.ID, Status: job.Status, Error: job.ErrorMessage}
	if job.Status == models.ReportStatusFinished && job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	return resp, nil
}

// Download validates a signed token and opens the underlying file.
func (s *ReportService) Download(ctx context.Context, id, token string, actor *models.JWTClaims) (*os.File, string, error) {
	job, err := s.loadScoped(ctx, id, actor)
	if err != nil {
		return nil, "", err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "report is not ready")
	}
	tokenID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || tokenID != job.ID {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file no longer available")
	}
	return file, relPath, nil
}

// ProcessJob is the queue handler: it renders the report, stores the file, and
// finalises the job row.
func (s *ReportService) ProcessJob(ctx context.Context, queued jobs.Job) error {
	job, err := s.reports.GetByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", queued.ID, err)
	}
	if job.Status != models.ReportStatusQueued && job.Status != models.ReportStatusProcessing {
		return nil
	}

	processing := models.ReportStatusProcessing
	if err := s.reports.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}

	data, filename, err := s.generator.Generate(ctx, job)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return err
	}
	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return err
	}
	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return err
	}

	now := time.Now().UTC()
	finished := models.ReportStatusFinished
	resultURL := fmt.Sprintf("/reports/%s/download?token=%s", job.ID, token)
	if err := s.reports.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     &finished,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finalise report job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveReportJob(string(finished))
	}
	s.logger.Info("report job finished", zap.String("job_id", job.ID), zap.String("file", relPath))
	return nil
}

// RunCleanup periodically removes expired report files and is meant to run in
// its own goroutine.
func (s *ReportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.storage.CleanupOlderThan(s.cfg.FileTTL)
			if err != nil {
				s.logger.Warn("report cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				s.logger.Info("report files cleaned up", zap.Int("count", len(deleted)))
			}
		}
	}
}

func (s *ReportService) loadScoped(ctx context.Context, id string, actor *models.JWTClaims) (*models.ReportJob, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if actor.Role != models.RoleSuperAdmin {
		if actor.CollegeID == nil || *actor.CollegeID != job.Params.CollegeID {
			return nil, appErrors.ErrTenantMismatch
		}
	}
	return job, nil
}

func (s *ReportService) failJob(ctx context.Context, id, message string) {
	failed := models.ReportStatusFailed
	now := time.Now().UTC()
	if err := s.reports.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Error("failed to mark report job failed", zap.String("job_id", id), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.ObserveReportJob(string(failed))
	}
}
