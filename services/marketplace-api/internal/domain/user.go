package domain

import (
	"time"

	"github.com/kithly/marketplace/pkg/auth"
)

type User struct {
	ID           string  `gorm:"primaryKey"`
	Email        string  `gorm:"uniqueIndex;not null"` // lower-cased
	PasswordHash string  `json:"-"`
	ExternalID   *string `gorm:"uniqueIndex" json:"-"` // Google subject
	FirstName    string
	LastName     string
	Role         auth.Role `gorm:"index;not null"`

	// sha256 of the emailed token, never the token itself
	ResetTokenHash      *string    `gorm:"index" json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCredential is false only for a row that can never sign in.
func (u *User) HasCredential() bool {
	return u.PasswordHash != "" || (u.ExternalID != nil && *u.ExternalID != "")
}

func (u *User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}
