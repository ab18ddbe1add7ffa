package models

import "time"

// UserProfile is the mutable profile created alongside every user account.
type UserProfile struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"usuario"`
	PhotoPath *string   `db:"photo_path" json:"foto_perfil,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileView combines the account and its profile for the perfil endpoint.
type ProfileView struct {
	User    UserInfo    `json:"user"`
	Profile UserProfile `json:"perfil"`
}
