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

// PromotionRequestService defines the subset of the promotion service used by
// the handler.
type PromotionRequestService interface {
	CreateRequest(ctx context.Context, req dto.CreatePromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error)
	ListMine(ctx context.Context, query dto.PromotionQuery, actor *models.JWTClaims) ([]models.PromotionRequest, *models.Pagination, error)
	List(ctx context.Context, query dto.PromotionQuery, actor *models.JWTClaims) ([]models.PromotionRequest, *models.Pagination, error)
	Review(ctx context.Context, id string, req dto.ReviewPromotionRequest, actor *models.JWTClaims) (*models.PromotionRequest, error)
}

// PromotionHandler exposes student self-service promotion endpoints and the
// admin review flow.
type PromotionHandler struct {
	service PromotionRequestService
	metrics promotionMetrics
}

type promotionMetrics interface {
	ObservePromotionEvent(event string)
}

// NewPromotionHandler creates a new handler. Metrics may be nil.
func NewPromotionHandler(svc PromotionRequestService, metrics promotionMetrics) *PromotionHandler {
	return &PromotionHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Request promotion
// @Description File a promotion request for the authenticated student
// @Tags Promotions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreatePromotionRequest true "Promotion request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /promotions [post]
func (h *PromotionHandler) Create(c *gin.Context) {
	var req dto.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid promotion request payload"))
		return
	}
	request, err := h.service.CreateRequest(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObservePromotionEvent("requested")
	}
	response.Created(c, request)
}

// ListMine godoc
// @Summary List own promotion requests
// @Description List the authenticated student's promotion requests
// @Tags Promotions
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma-separated statuses"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /promotions/mine [get]
func (h *PromotionHandler) ListMine(c *gin.Context) {
	requests, pagination, err := h.service.ListMine(c.Request.Context(), parsePromotionQuery(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// List godoc
// @Summary List promotion requests
// @Description List college-scoped promotion requests for reviewers
// @Tags Promotions
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma-separated statuses"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /promotions [get]
func (h *PromotionHandler) List(c *gin.Context) {
	requests, pagination, err := h.service.List(c.Request.Context(), parsePromotionQuery(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Review godoc
// @Summary Review promotion request
// @Description Approve or reject a pending promotion request
// @Tags Promotions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Promotion request ID"
// @Param payload body dto.ReviewPromotionRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /promotions/{id} [patch]
func (h *PromotionHandler) Review(c *gin.Context) {
	var req dto.ReviewPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	request, err := h.service.Review(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObservePromotionEvent(string(request.Status))
	}
	response.JSON(c, http.StatusOK, request, nil)
}

func parsePromotionQuery(c *gin.Context) dto.PromotionQuery {
	query := dto.PromotionQuery{}
	query.Page, _ = strconv.Atoi(c.Query("page"))
	query.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	if raw := c.Query("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			query.Status = append(query.Status, models.PromotionStatus(strings.TrimSpace(status)))
		}
	}
	return query
}
