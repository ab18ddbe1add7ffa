package service

import (
	"context"
	"database/sql"
	"errors"
	"mime/multipart"

	"go.uber.org/zap"

	"github.com/colegio-smp/matricula-api/internal/models"
	appErrors "github.com/colegio-smp/matricula-api/pkg/errors"
)

type profileRepository interface {
	Create(ctx context.Context, profile *models.UserProfile) error
	FindByUserID(ctx context.Context, userID string) (*models.UserProfile, error)
	UpdatePhoto(ctx context.Context, userID string, photoPath *string) error
}

type profileUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ProfileService serves the perfil endpoints.
type ProfileService struct {
	profiles profileRepository
	users    profileUserReader
	files    fileStore
	logger   *zap.Logger
}

// NewProfileService constructs ProfileService.
func NewProfileService(profiles profileRepository, users profileUserReader, files fileStore, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{profiles: profiles, users: users, files: files, logger: logger}
}

// Get returns the account together with its profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.ProfileView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
		}
		// Accounts created before profiles existed get one lazily.
		profile = &models.UserProfile{UserID: userID}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
		}
	}

	return &models.ProfileView{
		User: models.UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		},
		Profile: *profile,
	}, nil
}

// UpdatePhoto stores a new profile photo and records its path.
func (s *ProfileService) UpdatePhoto(ctx context.Context, userID string, photo *multipart.FileHeader) (*models.UserProfile, error) {
	if photo == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "foto_perfil is required")
	}

	path, err := s.files.SaveUpload("fotos_perfil", photo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "foto_perfil could not be stored")
	}

	if err := s.profiles.UpdatePhoto(ctx, userID, &path); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload profile")
	}
	return profile, nil
}
