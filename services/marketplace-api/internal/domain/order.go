package domain

import "time"

type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPaid      OrderStatus = "paid"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Confirmed reports whether payment has been accepted for the order.
func (s OrderStatus) Confirmed() bool {
	return s == OrderPaid || s == OrderCompleted
}

type Order struct {
	ID                string      `gorm:"primaryKey"`
	ShopID            string      `gorm:"index;not null"`
	BuyerID           string      `gorm:"index;not null"`
	Status            OrderStatus `gorm:"index;not null"`
	TotalPriceInCents int64       `gorm:"not null"`
	KithlyFeeInCents  int64       `gorm:"not null"`
	PickupCode        *string     `gorm:"uniqueIndex"` // set on payment only
	IsPaidOut         bool        `gorm:"not null"`

	PaymentReference string
	PayoutTransferID string
	PaidAt           *time.Time
	CollectedAt      *time.Time
	CancelledAt      *time.Time
	PaidOutAt        *time.Time

	Items     []OrderItem `gorm:"foreignKey:OrderID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NetPayoutInCents is what the shop receives after the platform fee.
func (o *Order) NetPayoutInCents() int64 {
	return o.TotalPriceInCents - o.KithlyFeeInCents
}

func (o *Order) HasPickupCode() bool {
	return o.PickupCode != nil && *o.PickupCode != ""
}

// OrderItem is a frozen copy of the product at purchase time.
type OrderItem struct {
	ID                     string `gorm:"primaryKey"`
	OrderID                string `gorm:"index;not null"`
	ProductID              string `gorm:"index;not null"`
	ProductName            string
	Quantity               int64 `gorm:"not null"`
	PriceAtPurchaseInCents int64 `gorm:"not null"`
	Position               int
}

func (i OrderItem) LineTotalInCents() int64 {
	return i.Quantity * i.PriceAtPurchaseInCents
}
