package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/service"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
	"github.com/svnapro/campus-api/pkg/response"
)

// CollegeHandler exposes tenant administration endpoints.
type CollegeHandler struct {
	service *service.CollegeService
}

// NewCollegeHandler creates a new handler.
func NewCollegeHandler(svc *service.CollegeService) *CollegeHandler {
	return &CollegeHandler{service: svc}
}

// List godoc
// @Summary List colleges
// @Description List colleges visible to the caller
// @Tags Colleges
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name or code search"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /colleges [get]
func (h *CollegeHandler) List(c *gin.Context) {
	colleges, err := h.service.List(c.Request.Context(), c.Query("search"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, colleges, nil)
}

// Create godoc
// @Summary Create college
// @Description Register a new tenant institution (superadmin only)
// @Tags Colleges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateCollegeRequest true "College payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /colleges [post]
func (h *CollegeHandler) Create(c *gin.Context) {
	var req dto.CreateCollegeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid college payload"))
		return
	}
	college, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, college)
}
