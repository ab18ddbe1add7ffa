package models

import "time"

// PaymentStatus represents the lifecycle of a payment (pago).
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusPending   PaymentStatus = "Pendiente"
	PaymentStatusCompleted PaymentStatus = "Completado"
)

// Valid reports whether the status belongs to the enumerated domain.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted
}

// Payment records a gateway charge attempt against an enrollment.
type Payment struct {
	ID           string        `db:"id" json:"id"`
	EnrollmentID string        `db:"enrollment_id" json:"matricula"`
	IntentID     *string       `db:"intent_id" json:"stripe_payment_intent_id,omitempty"`
	ClientSecret string        `db:"client_secret" json:"-"`
	Status       PaymentStatus `db:"status" json:"estado"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}
