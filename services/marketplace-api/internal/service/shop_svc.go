package service

import (
	"context"
	"strings"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

type ShopSvc struct {
	shops    *repository.ShopRepo
	products *repository.ProductRepo
}

func NewShopSvc(shops *repository.ShopRepo, products *repository.ProductRepo) *ShopSvc {
	return &ShopSvc{shops: shops, products: products}
}

type CreateShopInput struct {
	Name        string
	Description string
	IsOpen      bool
}

func (s *ShopSvc) Create(ctx context.Context, owner auth.Identity, in CreateShopInput) (*domain.Shop, error) {
	if owner.Role != auth.RoleShopOwner {
		return nil, apperr.Forbidden("only shop owners can create a shop")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("shop name is required")
	}
	shop := &domain.Shop{
		OwnerUserID: owner.UserID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsOpen:      in.IsOpen,
	}
	if err := s.shops.Create(ctx, shop); err != nil {
		if isDuplicate(err) {
			return nil, apperr.Conflict("you already have a shop")
		}
		return nil, storeErr(err, "")
	}
	return shop, nil
}

func (s *ShopSvc) ListOpen(ctx context.Context, page, size int) ([]domain.Shop, error) {
	out, err := s.shops.ListOpen(ctx, page, size)
	return out, storeErr(err, "")
}

func (s *ShopSvc) Products(ctx context.Context, shopID string) ([]domain.Product, error) {
	if _, err := s.shops.ByID(ctx, shopID); err != nil {
		return nil, storeErr(err, "shop not found")
	}
	out, err := s.products.ListByShop(ctx, shopID)
	return out, storeErr(err, "")
}

func (s *ShopSvc) Mine(ctx context.Context, owner auth.Identity) (*domain.Shop, error) {
	shop, err := s.shops.ByOwner(ctx, owner.UserID)
	if err != nil {
		return nil, storeErr(err, "you do not have a shop yet")
	}
	return shop, nil
}

type ShopSettingsInput struct {
	BankName      string
	AccountNumber string
	AccountName   string
	RecipientID   *string
	IsOpen        *bool
}

// UpdateSettings only ever touches the caller's own shop; the target is
// resolved from the identity, never from the request. All fields are written
// in one update; a nil pointer field is left as is.
func (s *ShopSvc) UpdateSettings(ctx context.Context, owner auth.Identity, in ShopSettingsInput) (*domain.Shop, error) {
	if owner.Role != auth.RoleShopOwner {
		return nil, apperr.Forbidden("only shop owners can change payout details")
	}
	acct := strings.TrimSpace(in.AccountNumber)
	for _, r := range acct {
		if r < '0' || r > '9' {
			return nil, apperr.Validation("account number must be digits only")
		}
	}
	d := repository.PayoutDetails{
		BankName:      strings.TrimSpace(in.BankName),
		AccountNumber: acct,
		AccountName:   strings.TrimSpace(in.AccountName),
		IsOpen:        in.IsOpen,
	}
	if in.RecipientID != nil {
		rid := strings.TrimSpace(*in.RecipientID)
		d.RecipientID = &rid
	}
	shop, err := s.shops.UpdatePayoutDetails(ctx, owner.UserID, d)
	if err != nil {
		return nil, storeErr(err, "you do not have a shop yet")
	}
	return shop, nil
}
