package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-smp/matricula-api/internal/models"
)

// PaymentRepository handles persistence of payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	if !payment.Status.Valid() {
		return fmt.Errorf("invalid payment status %q", payment.Status)
	}
	const query = `INSERT INTO payments (id, enrollment_id, intent_id, client_secret, status, created_at, updated_at)
        VALUES (:id, :enrollment_id, :intent_id, :client_secret, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByIntentID returns the payment referencing a gateway intent.
func (r *PaymentRepository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	const query = `SELECT id, enrollment_id, intent_id, client_secret, status, created_at, updated_at FROM payments WHERE intent_id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, intentID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindLatestByEnrollment returns the most recent payment for an enrollment.
func (r *PaymentRepository) FindLatestByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error) {
	const query = `SELECT id, enrollment_id, intent_id, client_secret, status, created_at, updated_at FROM payments WHERE enrollment_id = $1 ORDER BY created_at DESC LIMIT 1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, enrollmentID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CompleteByIntentID marks the payment Completado and its enrollment Pagado
// inside a single transaction. The payment row is locked so concurrent
// confirmations of the same intent serialize, and a reader can never observe
// one status flipped without the other.
func (r *PaymentRepository) CompleteByIntentID(ctx context.Context, intentID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked struct {
		ID           string `db:"id"`
		EnrollmentID string `db:"enrollment_id"`
	}
	const selectQuery = `SELECT id, enrollment_id FROM payments WHERE intent_id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &locked, selectQuery, intentID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock payment: %w", err)
	}

	now := time.Now().UTC()
	const updatePayment = `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updatePayment, locked.ID, models.PaymentStatusCompleted, now); err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}

	const updateEnrollment = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateEnrollment, locked.EnrollmentID, models.EnrollmentStatusPaid); err != nil {
		return fmt.Errorf("mark enrollment paid: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payment confirmation: %w", err)
	}
	return nil
}

// ReceiptRow joins the payment with its enrollment and student for receipts.
type ReceiptRow struct {
	IntentID    string    `db:"intent_id"`
	Status      string    `db:"status"`
	Course      string    `db:"course"`
	Amount      string    `db:"amount"`
	StudentName string    `db:"student_name"`
	UserID      string    `db:"user_id"`
	PaidAt      time.Time `db:"paid_at"`
}

// FindReceiptByIntentID loads the data printed on a payment receipt.
func (r *PaymentRepository) FindReceiptByIntentID(ctx context.Context, intentID string) (*ReceiptRow, error) {
	const query = `SELECT p.intent_id, p.status, e.course, e.amount::text AS amount,
        s.full_name AS student_name, s.user_id, p.updated_at AS paid_at
        FROM payments p
        JOIN enrollments e ON e.id = p.enrollment_id
        JOIN students s ON s.id = e.student_id
        WHERE p.intent_id = $1`
	var row ReceiptRow
	if err := r.db.GetContext(ctx, &row, query, intentID); err != nil {
		return nil, err
	}
	return &row, nil
}
