package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colegio-smp/matricula-api/internal/models"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
	"github.com/colegio-smp/matricula-api/pkg/response"
)

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, intentID string) (string, error)
}

type receiptService interface {
	Render(ctx context.Context, intentID, userID string, role models.UserRole) ([]byte, error)
}

// PaymentHandler wires the payment confirmation and receipt endpoints.
type PaymentHandler struct {
	service  paymentConfirmer
	receipts receiptService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc paymentConfirmer, receipts receiptService) *PaymentHandler {
	return &PaymentHandler{service: svc, receipts: receipts}
}

// Confirm godoc
// @Summary Confirm payment
// @Description Verify intent status with the gateway and mark the payment and enrollment as paid
// @Tags Payments
// @Produce json
// @Param intent_id path string true "Payment intent ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /pago/confirmar/{intent_id}/ [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	intentID := c.Param("intent_id")
	if intentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "intent_id is required"))
		return
	}

	message, err := h.service.ConfirmPayment(c.Request.Context(), intentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"mensaje": message}, nil)
}

// Receipt godoc
// @Summary Download payment receipt
// @Description Render the PDF receipt for a completed payment
// @Tags Payments
// @Produce application/pdf
// @Param intent_id path string true "Payment intent ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pago/recibo/{intent_id}/ [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	intentID := c.Param("intent_id")
	if intentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "intent_id is required"))
		return
	}

	pdf, err := h.receipts.Render(c.Request.Context(), intentID, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=recibo_%s.pdf", intentID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
