package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-smp/matricula-api/internal/middleware"
	"github.com/colegio-smp/matricula-api/internal/models"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
)

type paymentServiceMock struct {
	confirmMsg   string
	confirmErr   error
	lastIntentID string
}

func (m *paymentServiceMock) ConfirmPayment(ctx context.Context, intentID string) (string, error) {
	m.lastIntentID = intentID
	return m.confirmMsg, m.confirmErr
}

type receiptServiceMock struct {
	pdf      []byte
	err      error
	lastUser string
	lastRole models.UserRole
}

func (m *receiptServiceMock) Render(ctx context.Context, intentID, userID string, role models.UserRole) ([]byte, error) {
	m.lastUser = userID
	m.lastRole = role
	return m.pdf, m.err
}

func TestPaymentHandlerConfirm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentServiceMock{confirmMsg: "Pago confirmado exitosamente."}
	handler := NewPaymentHandler(mockSvc, &receiptServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/pago/confirmar/pi_123/", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "intent_id", Value: "pi_123"}}

	handler.Confirm(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pi_123", mockSvc.lastIntentID)
	assert.Contains(t, w.Body.String(), "Pago confirmado exitosamente.")
}

func TestPaymentHandlerConfirmDeclined(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentServiceMock{confirmErr: appErrors.Clone(appErrors.ErrPaymentDeclined, "El pago no se ha completado.")}
	handler := NewPaymentHandler(mockSvc, &receiptServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/pago/confirmar/pi_123/", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "intent_id", Value: "pi_123"}}

	handler.Confirm(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "PAYMENT_DECLINED")
}

func TestPaymentHandlerConfirmNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentServiceMock{confirmErr: appErrors.Clone(appErrors.ErrNotFound, "pago no encontrado")}
	handler := NewPaymentHandler(mockSvc, &receiptServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/pago/confirmar/pi_missing/", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "intent_id", Value: "pi_missing"}}

	handler.Confirm(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandlerReceipt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	receipts := &receiptServiceMock{pdf: []byte("%PDF-1.4 fake")}
	handler := NewPaymentHandler(&paymentServiceMock{}, receipts)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/pago/recibo/pi_123/", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "intent_id", Value: "pi_123"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "recibo_pi_123.pdf")
	assert.Equal(t, "user-1", receipts.lastUser)
}

func TestPaymentHandlerReceiptForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	receipts := &receiptServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "el pago no pertenece al usuario")}
	handler := NewPaymentHandler(&paymentServiceMock{}, receipts)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/pago/recibo/pi_123/", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "intent_id", Value: "pi_123"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-2", Role: models.RoleUser})

	handler.Receipt(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
