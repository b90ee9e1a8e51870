package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/money"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

type ReceiptLine struct {
	ProductName      string
	Quantity         int64
	UnitPriceInCents int64
	LineTotalInCents int64
	UnitPrice        string
	LineTotal        string
}

// Receipt figures are recomputed from the frozen line items on every read.
type Receipt struct {
	OrderID     string
	Status      domain.OrderStatus
	Currency    string
	ShopName    string
	BuyerName   string
	BuyerEmail  string
	Lines       []ReceiptLine
	PaidAt      *time.Time
	CollectedAt *time.Time
	IsPaidOut   bool

	SubtotalInCents int64
	FeeInCents      int64
	NetInCents      int64
	Subtotal        string
	Fee             string
	Net             string
}

type ReceiptSvc struct {
	orders   *repository.OrderRepo
	shops    *repository.ShopRepo
	users    *repository.UserRepo
	currency string
}

func NewReceiptSvc(orders *repository.OrderRepo, shops *repository.ShopRepo, users *repository.UserRepo, currency string) *ReceiptSvc {
	return &ReceiptSvc{orders: orders, shops: shops, users: users, currency: currency}
}

// Get builds the receipt for the order's buyer or the owner of its shop.
func (s *ReceiptSvc) Get(ctx context.Context, viewer auth.Identity, orderID string) (*Receipt, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.Validation("orderId is required")
	}
	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, "order not found")
	}
	shop, err := s.shops.ByID(ctx, o.ShopID)
	if err != nil {
		return nil, storeErr(err, "shop not found")
	}
	if o.BuyerID != viewer.UserID && !shop.OwnedBy(viewer.UserID) {
		return nil, apperr.Forbidden("you cannot view this receipt")
	}
	buyer, err := s.users.ByID(ctx, o.BuyerID)
	if err != nil {
		return nil, storeErr(err, "buyer not found")
	}

	r := &Receipt{
		OrderID:     o.ID,
		Status:      o.Status,
		Currency:    s.currency,
		ShopName:    shop.Name,
		BuyerName:   strings.TrimSpace(buyer.FirstName + " " + buyer.LastName),
		BuyerEmail:  buyer.Email,
		PaidAt:      o.PaidAt,
		CollectedAt: o.CollectedAt,
		IsPaidOut:   o.IsPaidOut,
	}
	for _, it := range o.Items {
		line, err := money.LineTotal(it.PriceAtPurchaseInCents, it.Quantity)
		if err != nil {
			return nil, apperr.Internal(err, "receipt line")
		}
		r.SubtotalInCents += line
		r.Lines = append(r.Lines, ReceiptLine{
			ProductName:      it.ProductName,
			Quantity:         it.Quantity,
			UnitPriceInCents: it.PriceAtPurchaseInCents,
			LineTotalInCents: line,
			UnitPrice:        money.Format(it.PriceAtPurchaseInCents),
			LineTotal:        money.Format(line),
		})
	}
	if r.SubtotalInCents != o.TotalPriceInCents {
		log.Printf("[receipt] order=%s stored total %d disagrees with items %d", o.ID, o.TotalPriceInCents, r.SubtotalInCents)
	}
	r.FeeInCents = o.KithlyFeeInCents
	r.NetInCents = r.SubtotalInCents - r.FeeInCents
	r.Subtotal = money.FormatWithCurrency(r.SubtotalInCents, s.currency)
	r.Fee = money.FormatWithCurrency(r.FeeInCents, s.currency)
	r.Net = money.FormatWithCurrency(r.NetInCents, s.currency)
	return r, nil
}
