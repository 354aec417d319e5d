package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
	"github.com/svnapro/campus-api/pkg/response"
)

// ReportJobService defines the subset of the report service used by the handler.
type ReportJobService interface {
	CreateJob(ctx context.Context, req dto.ReportRequest, actor *models.JWTClaims) (*dto.ReportJobResponse, error)
	GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ReportStatusResponse, error)
	Download(ctx context.Context, id, token string, actor *models.JWTClaims) (*os.File, string, error)
}

// ReportHandler exposes asynchronous export job endpoints.
type ReportHandler struct {
	service ReportJobService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc ReportJobService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Create godoc
// @Summary Queue report export
// @Description Queue an asynchronous migration history or promotion ledger export
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ReportRequest true "Report request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /migrations/reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Report job status
// @Description Return report job progress and, once finished, the signed download URL
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download report file
// @Description Stream a finished report file given a valid signed token
// @Tags Reports
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Report job ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	file, relPath, err := h.service.Download(c.Request.Context(), c.Param("id"), c.Query("token"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(relPath))
	c.File(file.Name())
}
