package repository

import (
	"gorm.io/gorm"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Shop{},
		&domain.Product{},
		&domain.Order{},
		&domain.OrderItem{},
	)
}
