package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
)

var ErrOutOfStock = errors.New("out_of_stock")

type OrderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// CreateWithItems decrements stock for every item and inserts the order in one txn.
// A line whose product no longer has enough stock aborts the whole order.
func (r *OrderRepo) CreateWithItems(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.NewString()
		}
		o.Items[i].OrderID = o.ID
		o.Items[i].Position = i
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range o.Items {
			res := tx.Model(&domain.Product{}).
				Where("id = ? AND shop_id = ? AND stock >= ?", it.ProductID, o.ShopID, it.Quantity).
				Update("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrOutOfStock
			}
		}
		return tx.Create(o).Error
	})
}

func (r *OrderRepo) ByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&o, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) PickupCodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).Where("pickup_code = ?", code).Count(&n).Error
	return n > 0, err
}

// ConfirmPaid moves created -> paid only if the order is still created and the
// amount matches. false means another delivery won or the state moved on.
// A pickup code collision surfaces as gorm.ErrDuplicatedKey.
func (r *OrderRepo) ConfirmPaid(ctx context.Context, id string, amount int64, code, reference string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ? AND total_price_in_cents = ?", id, domain.OrderCreated, amount).
		Updates(map[string]any{
			"status":            domain.OrderPaid,
			"pickup_code":       code,
			"payment_reference": reference,
			"paid_at":           at,
		})
	return res.RowsAffected == 1, res.Error
}

// Complete moves paid -> completed for the given shop.
func (r *OrderRepo) Complete(ctx context.Context, id, shopID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND shop_id = ? AND status = ?", id, shopID, domain.OrderPaid).
		Updates(map[string]any{
			"status":       domain.OrderCompleted,
			"collected_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// Cancel moves created -> cancelled and puts the reserved stock back.
// Stock is only restored by the call that wins the transition.
func (r *OrderRepo) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	cancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", id, domain.OrderCreated).
			Updates(map[string]any{
				"status":       domain.OrderCancelled,
				"cancelled_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		var items []domain.OrderItem
		if err := tx.Where("order_id = ?", id).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			err := tx.Model(&domain.Product{}).
				Where("id = ?", it.ProductID).
				Update("stock", gorm.Expr("stock + ?", it.Quantity)).Error
			if err != nil {
				return err
			}
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// StaleCreated lists ids of orders still awaiting payment that were created before cutoff.
func (r *OrderRepo) StaleCreated(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("status = ? AND created_at < ?", domain.OrderCreated, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *OrderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return r.list(ctx, "buyer_id = ?", buyerID)
}

func (r *OrderRepo) ListByShop(ctx context.Context, shopID string) ([]domain.Order, error) {
	return r.list(ctx, "shop_id = ?", shopID)
}

func (r *OrderRepo) list(ctx context.Context, where string, arg string) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where(where, arg).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// PayoutCandidates returns completed orders whose funds have not been released.
func (r *OrderRepo) PayoutCandidates(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_paid_out = ?", domain.OrderCompleted, false).
		Order("collected_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimPayout locks the row and flips is_paid_out so two concurrent runs can
// never transfer the same order twice.
func (r *OrderRepo) ClaimPayout(ctx context.Context, id string, at time.Time) (bool, error) {
	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o domain.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ? AND is_paid_out = ?", id, domain.OrderCompleted, false).
			Take(&o).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND is_paid_out = ?", id, false).
			Updates(map[string]any{
				"is_paid_out": true,
				"paid_out_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	return claimed, err
}

// RevertPayout undoes a claim whose transfer failed.
func (r *OrderRepo) RevertPayout(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND is_paid_out = ? AND payout_transfer_id = ?", id, true, "").
		Updates(map[string]any{
			"is_paid_out": false,
			"paid_out_at": nil,
		}).Error
}

func (r *OrderRepo) SetPayoutTransfer(ctx context.Context, id, transferID string) error {
	return r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", id).
		Update("payout_transfer_id", transferID).Error
}
