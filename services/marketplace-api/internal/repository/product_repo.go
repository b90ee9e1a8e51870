package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
)

type ProductRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepo) ByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) ListByShop(ctx context.Context, shopID string) ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("name ASC").
		Find(&out).Error
	return out, err
}

// ByIDsInShop only returns products that belong to shopID.
func (r *ProductRepo) ByIDsInShop(ctx context.Context, shopID string, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND id IN ?", shopID, ids).
		Find(&out).Error
	return out, err
}

type ProductUpdate struct {
	Name         *string
	Description  *string
	PriceInCents *int64
	Stock        *int64
}

// Update never touches shop_id.
func (r *ProductRepo) Update(ctx context.Context, id string, u ProductUpdate) error {
	fields := map[string]any{}
	if u.Name != nil {
		fields["name"] = *u.Name
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	if u.PriceInCents != nil {
		fields["price_in_cents"] = *u.PriceInCents
	}
	if u.Stock != nil {
		fields["stock"] = *u.Stock
	}
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Updates(fields).Error
}
