package domain

import "time"

type Product struct {
	ID           string `gorm:"primaryKey"`
	ShopID       string `gorm:"index;not null"` // immutable after create
	Name         string `gorm:"not null"`
	Description  string
	PriceInCents int64 `gorm:"not null"`
	Stock        int64 `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
