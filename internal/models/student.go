package models

import "time"

// Student captures the enrollment subject tied one-to-one to a user account.
type Student struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"usuario"`
	FullName        string    `db:"full_name" json:"nombre"`
	DNI             string    `db:"dni" json:"dni"`
	BirthDate       time.Time `db:"birth_date" json:"fecha_nacimiento"`
	Grade           string    `db:"grade" json:"grado"`
	Address         string    `db:"address" json:"direccion"`
	CertificatePath *string   `db:"certificate_path" json:"certificado_estudios,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
