package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store  *testutil.Store
	pub    *testutil.Publisher
	done   chan string
	orders *OrderSvc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := testutil.NewStore(t)
	pub := &testutil.Publisher{}
	done := make(chan string, 64)
	em := events.NewEmitter(pub).WithDone(done)
	return &harness{
		store:  s,
		pub:    pub,
		done:   done,
		orders: NewOrderSvc(s.Orders, s.Shops, s.Products, s.Users, em, 1000).WithClock(func() time.Time { return fixedNow }),
	}
}

// waitEvent blocks until the emitter reports key.
func (h *harness) waitEvent(t *testing.T, key string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-h.done:
			if got == key {
				return
			}
		case <-deadline:
			t.Fatalf("event %s not published", key)
		}
	}
}

// noEvent asserts nothing was published within a short grace period.
func (h *harness) noEvent(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.done:
		t.Fatalf("unexpected event %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func identity(u *domain.User) auth.Identity { return u.Identity() }

func mustPaid(t *testing.T, h *harness, o *domain.Order) *domain.Order {
	t.Helper()
	got, changed, err := h.orders.ConfirmPayment(testCtx, o.ID, o.TotalPriceInCents, "flw-"+o.ID)
	require.NoError(t, err)
	require.True(t, changed)
	h.waitEvent(t, events.RKOrderPaid)
	return got
}
