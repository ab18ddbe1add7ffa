package handler

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-smp/matricula-api/internal/service"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
	"github.com/colegio-smp/matricula-api/pkg/response"
)

type studentEnroller interface {
	CreateStudentWithEnrollment(ctx context.Context, userID string, req service.CreateStudentRequest, certificate *multipart.FileHeader) (*service.PaymentIntentResponse, error)
	VerifyStudent(ctx context.Context, userID string) (*service.VerifyStudentResponse, error)
	CheckStudent(ctx context.Context, userID string) (*service.CheckStudentResponse, error)
}

// StudentHandler wires the student onboarding endpoints.
type StudentHandler struct {
	service studentEnroller
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(svc studentEnroller) *StudentHandler {
	return &StudentHandler{service: svc}
}

// Create godoc
// @Summary Create student and enrollment
// @Description Register the student, open a pending enrollment and return the payment intent
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param nombre formData string true "Full name"
// @Param dni formData string true "DNI"
// @Param fecha_nacimiento formData string true "Birth date YYYY-MM-DD"
// @Param grado formData string true "Grade"
// @Param direccion formData string true "Address"
// @Param certificado_estudios formData file false "Study certificate"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /estudiante/crear/ [post]
func (h *StudentHandler) Create(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateStudentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}

	certificate, err := c.FormFile("certificado_estudios")
	if err != nil && err != http.ErrMissingFile {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "certificado_estudios could not be read"))
		return
	}

	res, err := h.service.CreateStudentWithEnrollment(c.Request.Context(), claims.UserID, req, certificate)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Verify godoc
// @Summary Verify student record
// @Description Report whether the user owns a student and return a live client secret for pending payments
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /estudiante/verificar/ [get]
func (h *StudentHandler) Verify(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.VerifyStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Check godoc
// @Summary Check onboarding status
// @Description Compact projection of student and payment state for the onboarding flow
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /check-student/ [get]
func (h *StudentHandler) Check(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.CheckStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}
