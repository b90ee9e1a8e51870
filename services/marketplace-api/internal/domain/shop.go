package domain

import "time"

type Shop struct {
	ID          string `gorm:"primaryKey"`
	OwnerUserID string `gorm:"uniqueIndex;not null"` // one shop per owner
	Name        string `gorm:"not null"`
	Description string
	IsOpen      bool `gorm:"index"`

	// payout details, owner-only
	BankName      string
	AccountNumber string
	AccountName   string
	RecipientID   string // payout provider recipient

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Shop) OwnedBy(userID string) bool {
	return userID != "" && s.OwnerUserID == userID
}
