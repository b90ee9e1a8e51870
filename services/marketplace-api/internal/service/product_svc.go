package service

import (
	"context"
	"strings"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

type ProductSvc struct {
	shops    *repository.ShopRepo
	products *repository.ProductRepo
}

func NewProductSvc(shops *repository.ShopRepo, products *repository.ProductRepo) *ProductSvc {
	return &ProductSvc{shops: shops, products: products}
}

type CreateProductInput struct {
	ShopID       string
	Name         string
	Description  string
	PriceInCents int64
	Stock        int64
}

// ownedShop loads shopID and checks it belongs to the caller.
func (s *ProductSvc) ownedShop(ctx context.Context, caller auth.Identity, shopID string) (*domain.Shop, error) {
	if caller.Role != auth.RoleShopOwner {
		return nil, apperr.Forbidden("only shop owners can manage products")
	}
	shop, err := s.shops.ByID(ctx, shopID)
	if err != nil {
		return nil, storeErr(err, "shop not found")
	}
	if !shop.OwnedBy(caller.UserID) {
		return nil, apperr.Forbidden("you do not own this shop")
	}
	return shop, nil
}

func (s *ProductSvc) Create(ctx context.Context, caller auth.Identity, in CreateProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("product name is required")
	}
	if in.PriceInCents < 0 || in.Stock < 0 {
		return nil, apperr.Validation("price and stock must be non-negative")
	}
	shop, err := s.ownedShop(ctx, caller, in.ShopID)
	if err != nil {
		return nil, err
	}
	p := &domain.Product{
		ShopID:       shop.ID,
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		PriceInCents: in.PriceInCents,
		Stock:        in.Stock,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, storeErr(err, "")
	}
	return p, nil
}

type UpdateProductInput struct {
	Name         *string
	Description  *string
	PriceInCents *int64
	Stock        *int64
}

func (s *ProductSvc) Update(ctx context.Context, caller auth.Identity, productID string, in UpdateProductInput) (*domain.Product, error) {
	if (in.PriceInCents != nil && *in.PriceInCents < 0) || (in.Stock != nil && *in.Stock < 0) {
		return nil, apperr.Validation("price and stock must be non-negative")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, apperr.Validation("product name is required")
	}
	p, err := s.products.ByID(ctx, productID)
	if err != nil {
		return nil, storeErr(err, "product not found")
	}
	if _, err := s.ownedShop(ctx, caller, p.ShopID); err != nil {
		return nil, err
	}
	err = s.products.Update(ctx, p.ID, repository.ProductUpdate{
		Name:         in.Name,
		Description:  in.Description,
		PriceInCents: in.PriceInCents,
		Stock:        in.Stock,
	})
	if err != nil {
		return nil, storeErr(err, "")
	}
	p, err = s.products.ByID(ctx, p.ID)
	return p, storeErr(err, "product not found")
}
