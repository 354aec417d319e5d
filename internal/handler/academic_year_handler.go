package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/svnapro/campus-api/internal/dto"
	"github.com/svnapro/campus-api/internal/service"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
	"github.com/svnapro/campus-api/pkg/response"
)

// AcademicYearHandler exposes academic year management endpoints.
type AcademicYearHandler struct {
	service *service.AcademicYearService
}

// NewAcademicYearHandler creates a new handler.
func NewAcademicYearHandler(svc *service.AcademicYearService) *AcademicYearHandler {
	return &AcademicYearHandler{service: svc}
}

// List godoc
// @Summary List academic years
// @Description List the college's academic years, optionally including archived ones
// @Tags AcademicYears
// @Produce json
// @Security BearerAuth
// @Param include_archived query bool false "Include archived years"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /academic-years [get]
func (h *AcademicYearHandler) List(c *gin.Context) {
	includeArchived, _ := strconv.ParseBool(c.Query("include_archived"))
	years, err := h.service.List(c.Request.Context(), includeArchived, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// Create godoc
// @Summary Create academic year
// @Description Register a new academic year for the college
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateAcademicYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /academic-years [post]
func (h *AcademicYearHandler) Create(c *gin.Context) {
	var req dto.CreateAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid academic year payload"))
		return
	}
	year, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// SetCurrent godoc
// @Summary Set current academic year
// @Description Flip the college's current year to the given one
// @Tags AcademicYears
// @Produce json
// @Security BearerAuth
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id}/current [patch]
func (h *AcademicYearHandler) SetCurrent(c *gin.Context) {
	year, err := h.service.SetCurrent(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}
