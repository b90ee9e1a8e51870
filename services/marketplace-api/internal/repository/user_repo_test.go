package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
	"github.com/kithly/marketplace/services/marketplace-api/internal/testutil"
)

func TestUserEmailUnique(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	first := s.Buyer(t, "a@x.com")

	err := s.Users.Create(ctx, &domain.User{Email: "a@x.com", PasswordHash: "h2", Role: auth.RoleShopOwner})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	got, err := s.Users.ByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, auth.RoleBuyer, got.Role)
}

func TestLinkExternalIDOnlyOnce(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	u := s.Buyer(t, "a@x.com")

	ok, err := s.Users.LinkExternalID(ctx, u.ID, "google-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Users.LinkExternalID(ctx, u.ID, "google-2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Users.ByExternalID(ctx, "google-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestResetPasswordConsumesToken(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	u := s.Buyer(t, "a@x.com")
	require.NoError(t, s.Users.SetResetToken(ctx, u.ID, "digest", time.Now().Add(time.Hour)))

	ok, err := s.Users.ResetPassword(ctx, u.ID, "digest", "new-hash")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Users.ResetPassword(ctx, u.ID, "digest", "other-hash")
	require.NoError(t, err)
	assert.False(t, ok, "token is single-use")

	got, err := s.Users.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Nil(t, got.ResetTokenHash)
	assert.Nil(t, got.ResetTokenExpiresAt)
}

func TestShopOnePerOwnerAndOpenListing(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	owner := s.Owner(t, "o@x.com")
	other := s.Owner(t, "p@x.com")
	s.Shop(t, owner, "Open Shop", true)
	s.Shop(t, other, "Closed Shop", false)

	err := s.Shops.Create(ctx, &domain.Shop{OwnerUserID: owner.ID, Name: "Second"})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	open, err := s.Shops.ListOpen(ctx, 0, 20)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Open Shop", open[0].Name)

	_, err = s.Shops.UpdatePayoutDetails(ctx, "nobody", repository.PayoutDetails{BankName: "X"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
