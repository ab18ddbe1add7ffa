package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-smp/matricula-api/internal/models"
)

// ProfileRepository handles persistence of user profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create persists the profile row created alongside a new account.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO user_profiles (id, user_id, photo_path, created_at, updated_at)
        VALUES (:id, :user_id, :photo_path, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// FindByUserID returns the profile owned by a user.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.UserProfile, error) {
	const query = `SELECT id, user_id, photo_path, created_at, updated_at FROM user_profiles WHERE user_id = $1`
	var profile models.UserProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdatePhoto replaces the stored profile photo path.
func (r *ProfileRepository) UpdatePhoto(ctx context.Context, userID string, photoPath *string) error {
	const query = `UPDATE user_profiles SET photo_path = $2, updated_at = $3 WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, photoPath, time.Now().UTC()); err != nil {
		return fmt.Errorf("update profile photo: %w", err)
	}
	return nil
}
