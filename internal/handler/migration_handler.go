package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
	"github.com/svnapro/campus-api/pkg/response"
)

// MigrationWorkflowService defines the subset of the migration service used by
// the handler.
type MigrationWorkflowService interface {
	Preview(ctx context.Context, req dto.PreviewMigrationRequest, actor *models.JWTClaims) (*dto.MigrationPreviewResponse, bool, error)
	Promote(ctx context.Context, req dto.PromoteStudentsRequest, actor *models.JWTClaims) (*dto.PromoteStudentsResponse, error)
	Archive(ctx context.Context, req dto.ArchiveRequest, actor *models.JWTClaims) (*dto.ArchiveResponse, error)
	List(ctx context.Context, query dto.MigrationQuery, actor *models.JWTClaims) ([]models.Migration, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Migration, error)
	Rollback(ctx context.Context, id string, actor *models.JWTClaims) (*models.Migration, error)
}

// MigrationHandler exposes the academic year migration workflow.
type MigrationHandler struct {
	service MigrationWorkflowService
	metrics migrationMetrics
}

type migrationMetrics interface {
	ObserveCacheLookup(hit bool)
	ObserveMigrationRun(migrationType, status string)
}

// NewMigrationHandler creates a new handler. Metrics may be nil.
func NewMigrationHandler(svc MigrationWorkflowService, metrics migrationMetrics) *MigrationHandler {
	return &MigrationHandler{service: svc, metrics: metrics}
}

// Preview godoc
// @Summary Preview migration impact
// @Description Compute how many students, sections, subjects, and assignments a migration would touch
// @Tags Migrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.PreviewMigrationRequest true "Preview payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /migrations/preview [post]
func (h *MigrationHandler) Preview(c *gin.Context) {
	var req dto.PreviewMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preview payload"))
		return
	}
	preview, cached, err := h.service.Preview(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveCacheLookup(cached)
	}
	response.JSON(c, http.StatusOK, preview, nil, map[string]interface{}{"cached": cached})
}

// Promote godoc
// @Summary Promote students
// @Description Run a bulk year promotion; without auto_approve each student gets a pending request instead
// @Tags Migrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.PromoteStudentsRequest true "Promotion payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/promote [post]
func (h *MigrationHandler) Promote(c *gin.Context) {
	var req dto.PromoteStudentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid promotion payload"))
		return
	}
	result, err := h.service.Promote(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		if h.metrics != nil {
			h.metrics.ObserveMigrationRun(string(models.MigrationTypeYearPromotion), string(models.MigrationStatusFailed))
		}
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveMigrationRun(string(models.MigrationTypeYearPromotion), string(result.Status))
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Archive godoc
// @Summary Archive academic year data
// @Description Archive sections and subjects and clear assignments of an old year
// @Tags Migrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ArchiveRequest true "Archive payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/archive [post]
func (h *MigrationHandler) Archive(c *gin.Context) {
	var req dto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid archive payload"))
		return
	}
	result, err := h.service.Archive(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		if h.metrics != nil {
			h.metrics.ObserveMigrationRun(string(models.MigrationTypeArchive), string(models.MigrationStatusFailed))
		}
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveMigrationRun(string(models.MigrationTypeArchive), string(result.Status))
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List migrations
// @Description List the college's migration history, newest first
// @Tags Migrations
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma-separated statuses"
// @Param type query string false "Migration type"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /migrations [get]
func (h *MigrationHandler) List(c *gin.Context) {
	query := dto.MigrationQuery{
		Type: models.MigrationType(c.Query("type")),
	}
	query.Page, _ = strconv.Atoi(c.Query("page"))
	query.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	if raw := c.Query("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			query.Status = append(query.Status, models.MigrationStatus(strings.TrimSpace(status)))
		}
	}

	migrations, pagination, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, migrations, pagination)
}

// Get godoc
// @Summary Get migration
// @Description Fetch one migration by identifier
// @Tags Migrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Migration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /migrations/{id} [get]
func (h *MigrationHandler) Get(c *gin.Context) {
	migration, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, migration, nil)
}

// Rollback godoc
// @Summary Roll back migration
// @Description Revert a completed promotion run using its per-student ledger
// @Tags Migrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Migration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /migrations/{id}/rollback [post]
func (h *MigrationHandler) Rollback(c *gin.Context) {
	migration, err := h.service.Rollback(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, migration, nil)
}
