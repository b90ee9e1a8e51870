package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create returns gorm.ErrDuplicatedKey when the email or external id is taken.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByResetTokenHash(ctx context.Context, digest string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("reset_token_hash = ?", digest).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// LinkExternalID attaches an external identity only if none is linked yet.
func (r *UserRepo) LinkExternalID(ctx context.Context, userID, externalID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND external_id IS NULL", userID).
		Update("external_id", externalID)
	return res.RowsAffected == 1, res.Error
}

func (r *UserRepo) SetResetToken(ctx context.Context, userID, digest string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"reset_token_hash":       digest,
			"reset_token_expires_at": expiresAt,
		}).Error
}

func (r *UserRepo) ClearResetToken(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
		}).Error
}

// ResetPassword swaps the hash and consumes the token in one statement. It is a
// no-op when the token was already used or replaced.
func (r *UserRepo) ResetPassword(ctx context.Context, userID, digest, passwordHash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND reset_token_hash = ?", userID, digest).
		Updates(map[string]any{
			"password_hash":          passwordHash,
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
		})
	return res.RowsAffected == 1, res.Error
}
