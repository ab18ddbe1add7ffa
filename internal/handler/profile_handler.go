package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-smp/matricula-api/internal/service"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
	"github.com/colegio-smp/matricula-api/pkg/response"
)

// ProfileHandler wires the perfil endpoints.
type ProfileHandler struct {
	service *service.ProfileService
}

// NewProfileHandler creates a new handler.
func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// Get godoc
// @Summary Get profile
// @Description Return the authenticated account with its profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /perfil/ [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	view, err := h.service.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Update profile photo
// @Description Store a new profile photo for the authenticated user
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Param foto_perfil formData file true "Profile photo"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /perfil/ [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	photo, err := c.FormFile("foto_perfil")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "foto_perfil is required"))
		return
	}

	profile, err := h.service.UpdatePhoto(c.Request.Context(), claims.UserID, photo)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile, nil)
}
