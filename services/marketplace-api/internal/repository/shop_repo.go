package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
)

type ShopRepo struct{ db *gorm.DB }

func NewShopRepo(db *gorm.DB) *ShopRepo {
	return &ShopRepo{db: db}
}

// Create returns gorm.ErrDuplicatedKey when the owner already has a shop.
func (r *ShopRepo) Create(ctx context.Context, s *domain.Shop) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *ShopRepo) ByID(ctx context.Context, id string) (*domain.Shop, error) {
	var s domain.Shop
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ShopRepo) ByOwner(ctx context.Context, ownerUserID string) (*domain.Shop, error) {
	var s domain.Shop
	if err := r.db.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ShopRepo) ListOpen(ctx context.Context, page, size int) ([]domain.Shop, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	var out []domain.Shop
	err := r.db.WithContext(ctx).
		Where("is_open = ?", true).
		Order("name ASC").
		Limit(size).Offset(page * size).
		Find(&out).Error
	return out, err
}

type PayoutDetails struct {
	BankName      string
	AccountNumber string
	AccountName   string
	// RecipientID and IsOpen are left alone when nil.
	RecipientID *string
	IsOpen      *bool
}

// UpdatePayoutDetails is scoped by owner so a caller can only touch their own shop.
func (r *ShopRepo) UpdatePayoutDetails(ctx context.Context, ownerUserID string, d PayoutDetails) (*domain.Shop, error) {
	fields := map[string]any{
		"bank_name":      d.BankName,
		"account_number": d.AccountNumber,
		"account_name":   d.AccountName,
	}
	if d.RecipientID != nil {
		fields["recipient_id"] = *d.RecipientID
	}
	if d.IsOpen != nil {
		fields["is_open"] = *d.IsOpen
	}
	var s domain.Shop
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Shop{}).
			Where("owner_user_id = ?", ownerUserID).
			Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("owner_user_id = ?", ownerUserID).First(&s).Error
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
