package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/colegio-smp/matricula-api/internal/models"
	"github.com/colegio-smp/matricula-api/internal/service"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
	"github.com/colegio-smp/matricula-api/pkg/response"
)

type enrollmentReviewer interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	Review(ctx context.Context, id string, req service.ReviewEnrollmentRequest) (*models.Enrollment, error)
}

// EnrollmentHandler wires the admin enrollment endpoints.
type EnrollmentHandler struct {
	service enrollmentReviewer
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc enrollmentReviewer) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List enrollments
// @Description Paginated enrollment list for the admin panel
// @Tags Enrollments
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param estado query string false "Filter by status"
// @Param estudiante query string false "Filter by student ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /matriculas/ [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.EnrollmentFilter{
		Page:      page,
		PageSize:  size,
		Status:    models.EnrollmentStatus(c.Query("estado")),
		StudentID: c.Query("estudiante"),
	}

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Review godoc
// @Summary Review enrollment
// @Description Apply an admin decision to an enrollment status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ReviewEnrollmentRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /matriculas/{id}/verificar/ [patch]
func (h *EnrollmentHandler) Review(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required"))
		return
	}

	var req service.ReviewEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	enrollment, err := h.service.Review(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollment, nil)
}
