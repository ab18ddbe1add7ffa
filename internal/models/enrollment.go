package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus represents the lifecycle of an enrollment (matrícula).
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending  EnrollmentStatus = "Pendiente"
	EnrollmentStatusPaid     EnrollmentStatus = "Pagado"
	EnrollmentStatusApproved EnrollmentStatus = "Aprobado"
	EnrollmentStatusRejected EnrollmentStatus = "Rechazado"
)

// Valid reports whether the status belongs to the enumerated domain.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusPaid, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	}
	return false
}

// Reviewable reports whether an admin may set this status during review.
func (s EnrollmentStatus) Reviewable() bool {
	switch s {
	case EnrollmentStatusApproved, EnrollmentStatusRejected, EnrollmentStatusPending:
		return true
	}
	return false
}

// Enrollment captures a student's registration to a course with its fee.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"estudiante"`
	Course    string           `db:"course" json:"curso"`
	Amount    decimal.Decimal  `db:"amount" json:"monto"`
	Status    EnrollmentStatus `db:"status" json:"estado"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with student info for admin listings.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"nombre_estudiante"`
	StudentDNI  string `db:"student_dni" json:"dni_estudiante"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}
