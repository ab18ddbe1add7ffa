package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/colegio-smp/matricula-api/internal/models"
	"github.com/colegio-smp/matricula-api/internal/repository"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
	"github.com/colegio-smp/matricula-api/pkg/export"
)

type receiptRepository interface {
	FindReceiptByIntentID(ctx context.Context, intentID string) (*repository.ReceiptRow, error)
}

type receiptRenderer interface {
	Render(r export.Receipt) ([]byte, error)
}

// ReceiptService renders PDF receipts for completed payments.
type ReceiptService struct {
	payments receiptRepository
	exporter receiptRenderer
	currency string
	logger   *zap.Logger
}

// NewReceiptService constructs a ReceiptService.
func NewReceiptService(payments receiptRepository, exporter receiptRenderer, currency string, logger *zap.Logger) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "usd"
	}
	return &ReceiptService{payments: payments, exporter: exporter, currency: currency, logger: logger}
}

// Render returns the receipt PDF for the given intent. Regular users may only
// fetch receipts for their own payments; admins and staff may fetch any.
func (s *ReceiptService) Render(ctx context.Context, intentID, userID string, role models.UserRole) ([]byte, error) {
	row, err := s.payments.FindReceiptByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pago no encontrado")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	if role != models.RoleAdmin && role != models.RoleStaff && row.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "el pago no pertenece al usuario")
	}

	if row.Status != string(models.PaymentStatusCompleted) {
		return nil, appErrors.Clone(appErrors.ErrPaymentDeclined, "El pago no se ha completado.")
	}

	pdf, err := s.exporter.Render(export.Receipt{
		StudentName: row.StudentName,
		Course:      row.Course,
		Amount:      row.Amount,
		Currency:    strings.ToUpper(s.currency),
		IntentID:    row.IntentID,
		PaidAt:      row.PaidAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return pdf, nil
}
