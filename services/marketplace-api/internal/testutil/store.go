// Package testutil provides an in-memory store and fakes for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/db"
	"github.com/kithly/marketplace/pkg/mail"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

type Store struct {
	DB       *gorm.DB
	Users    *repository.UserRepo
	Shops    *repository.ShopRepo
	Products *repository.ProductRepo
	Orders   *repository.OrderRepo
}

// NewStore opens a private migrated in-memory database for t.
func NewStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &Store{
		DB:       gdb,
		Users:    repository.NewUserRepo(gdb),
		Shops:    repository.NewShopRepo(gdb),
		Products: repository.NewProductRepo(gdb),
		Orders:   repository.NewOrderRepo(gdb),
	}
}

func (s *Store) user(t *testing.T, email string, role auth.Role) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "not-a-real-hash", FirstName: "Test", Role: role}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func (s *Store) Buyer(t *testing.T, email string) *domain.User {
	return s.user(t, email, auth.RoleBuyer)
}

func (s *Store) Owner(t *testing.T, email string) *domain.User {
	return s.user(t, email, auth.RoleShopOwner)
}

func (s *Store) Shop(t *testing.T, owner *domain.User, name string, open bool) *domain.Shop {
	t.Helper()
	shop := &domain.Shop{OwnerUserID: owner.ID, Name: name, IsOpen: open}
	require.NoError(t, s.Shops.Create(context.Background(), shop))
	return shop
}

func (s *Store) Product(t *testing.T, shop *domain.Shop, name string, price, stock int64) *domain.Product {
	t.Helper()
	p := &domain.Product{ShopID: shop.ID, Name: name, PriceInCents: price, Stock: stock}
	require.NoError(t, s.Products.Create(context.Background(), p))
	return p
}

// Order inserts a created order directly, bypassing checkout.
func (s *Store) Order(t *testing.T, shop *domain.Shop, buyer *domain.User, total, fee int64) *domain.Order {
	t.Helper()
	o := &domain.Order{
		ID:                uuid.NewString(),
		ShopID:            shop.ID,
		BuyerID:           buyer.ID,
		Status:            domain.OrderCreated,
		TotalPriceInCents: total,
		KithlyFeeInCents:  fee,
		Items: []domain.OrderItem{{
			ID:                     uuid.NewString(),
			ProductID:              uuid.NewString(),
			ProductName:            "Item",
			Quantity:               1,
			PriceAtPurchaseInCents: total,
		}},
	}
	require.NoError(t, s.DB.Create(o).Error)
	return o
}

func (s *Store) Reload(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := s.Orders.ByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

type Published struct {
	Key     string
	Payload any
}

// Publisher records every event.
type Publisher struct {
	mu     sync.Mutex
	Events []Published
	Err    error
}

func (p *Publisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, Published{Key: key, Payload: v})
	return p.Err
}

func (p *Publisher) Close() error { return nil }

func (p *Publisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Key)
	}
	return out
}

// Mailer records every message and signals Sent.
type Mailer struct {
	mu   sync.Mutex
	Msgs []mail.Message
	Sent chan mail.Message
}

func NewMailer() *Mailer {
	return &Mailer{Sent: make(chan mail.Message, 16)}
}

func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.Msgs = append(m.Msgs, msg)
	m.mu.Unlock()
	select {
	case m.Sent <- msg:
	default:
	}
	return nil
}

// Verifier is a fixed-answer external identity verifier.
type Verifier struct {
	Tokens map[string]*auth.ExternalIdentity
}

func (v *Verifier) Verify(_ context.Context, token string) (*auth.ExternalIdentity, bool) {
	id, ok := v.Tokens[token]
	if !ok {
		return nil, false
	}
	cp := *id
	return &cp, true
}

// Transferer records transfers and fails for recipients in FailFor.
type Transferer struct {
	mu      sync.Mutex
	Calls   []int64
	FailFor map[string]error
}

func (f *Transferer) Transfer(_ context.Context, recipientID string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailFor[recipientID]; err != nil {
		return "", err
	}
	f.Calls = append(f.Calls, amount)
	return fmt.Sprintf("trsf_%d", len(f.Calls)), nil
}
