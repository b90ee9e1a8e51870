package handlers

import (
	"time"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

type userJSON struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func toUser(u *domain.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email, Role: string(u.Role), FirstName: u.FirstName, LastName: u.LastName}
}

type shopJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsOpen      bool   `json:"is_open"`
}

func toShop(s domain.Shop) shopJSON {
	return shopJSON{ID: s.ID, Name: s.Name, Description: s.Description, IsOpen: s.IsOpen}
}

// ownShopJSON includes payout details; only ever sent to the owner.
type ownShopJSON struct {
	shopJSON
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	RecipientID   string `json:"recipient_id,omitempty"`
}

func toOwnShop(s *domain.Shop) ownShopJSON {
	return ownShopJSON{
		shopJSON:      toShop(*s),
		BankName:      s.BankName,
		AccountNumber: s.AccountNumber,
		AccountName:   s.AccountName,
		RecipientID:   s.RecipientID,
	}
}

type productJSON struct {
	ID           string `json:"id"`
	ShopID       string `json:"shop_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PriceInCents int64  `json:"price_in_cents"`
	Stock        int64  `json:"stock"`
}

func toProduct(p domain.Product) productJSON {
	return productJSON{ID: p.ID, ShopID: p.ShopID, Name: p.Name, Description: p.Description, PriceInCents: p.PriceInCents, Stock: p.Stock}
}

type orderItemJSON struct {
	ProductID              string `json:"product_id"`
	ProductName            string `json:"product_name"`
	Quantity               int64  `json:"quantity"`
	PriceAtPurchaseInCents int64  `json:"price_at_purchase_in_cents"`
}

type orderJSON struct {
	ID                string          `json:"id"`
	ShopID            string          `json:"shop_id"`
	BuyerID           string          `json:"buyer_id"`
	Status            string          `json:"status"`
	TotalPriceInCents int64           `json:"total_price_in_cents"`
	KithlyFeeInCents  int64           `json:"kithly_fee_in_cents"`
	PickupCode        *string         `json:"pickup_code,omitempty"`
	IsPaidOut         bool            `json:"is_paid_out"`
	Items             []orderItemJSON `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CollectedAt       *time.Time      `json:"collected_at,omitempty"`
}

// toOrder includes the pickup code only when withCode is set.
func toOrder(o domain.Order, withCode bool) orderJSON {
	out := orderJSON{
		ID:                o.ID,
		ShopID:            o.ShopID,
		BuyerID:           o.BuyerID,
		Status:            string(o.Status),
		TotalPriceInCents: o.TotalPriceInCents,
		KithlyFeeInCents:  o.KithlyFeeInCents,
		IsPaidOut:         o.IsPaidOut,
		Items:             make([]orderItemJSON, 0, len(o.Items)),
		CreatedAt:         o.CreatedAt,
		PaidAt:            o.PaidAt,
		CollectedAt:       o.CollectedAt,
	}
	if withCode {
		out.PickupCode = o.PickupCode
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemJSON{
			ProductID:              it.ProductID,
			ProductName:            it.ProductName,
			Quantity:               it.Quantity,
			PriceAtPurchaseInCents: it.PriceAtPurchaseInCents,
		})
	}
	return out
}

type statusJSON struct {
	OrderID           string  `json:"order_id"`
	Status            string  `json:"status"`
	HasPickupCode     bool    `json:"has_pickup_code"`
	PickupCode        *string `json:"pickup_code,omitempty"`
	TotalPriceInCents *int64  `json:"total_price_in_cents,omitempty"`
}

func toStatus(v *service.StatusView) statusJSON {
	return statusJSON{
		OrderID:           v.OrderID,
		Status:            string(v.Status),
		HasPickupCode:     v.HasPickupCode,
		PickupCode:        v.PickupCode,
		TotalPriceInCents: v.TotalPriceInCents,
	}
}

type receiptLineJSON struct {
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type receiptJSON struct {
	OrderID         string            `json:"order_id"`
	Status          string            `json:"status"`
	Currency        string            `json:"currency"`
	ShopName        string            `json:"shop_name"`
	BuyerName       string            `json:"buyer_name"`
	BuyerEmail      string            `json:"buyer_email"`
	Lines           []receiptLineJSON `json:"lines"`
	SubtotalInCents int64             `json:"subtotal_in_cents"`
	FeeInCents      int64             `json:"fee_in_cents"`
	NetInCents      int64             `json:"net_in_cents"`
	Subtotal        string            `json:"subtotal"`
	Fee             string            `json:"fee"`
	Net             string            `json:"net"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CollectedAt     *time.Time        `json:"collected_at,omitempty"`
	IsPaidOut       bool              `json:"is_paid_out"`
}

func toReceipt(r *service.Receipt) receiptJSON {
	out := receiptJSON{
		OrderID:         r.OrderID,
		Status:          string(r.Status),
		Currency:        r.Currency,
		ShopName:        r.ShopName,
		BuyerName:       r.BuyerName,
		BuyerEmail:      r.BuyerEmail,
		Lines:           make([]receiptLineJSON, 0, len(r.Lines)),
		SubtotalInCents: r.SubtotalInCents,
		FeeInCents:      r.FeeInCents,
		NetInCents:      r.NetInCents,
		Subtotal:        r.Subtotal,
		Fee:             r.Fee,
		Net:             r.Net,
		PaidAt:          r.PaidAt,
		CollectedAt:     r.CollectedAt,
		IsPaidOut:       r.IsPaidOut,
	}
	for _, l := range r.Lines {
		out.Lines = append(out.Lines, receiptLineJSON{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		})
	}
	return out
}
