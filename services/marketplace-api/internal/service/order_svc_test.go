package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

var testCtx = context.Background()

func TestPickupCodeFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := NewPickupCode()
		require.NoError(t, err)
		assert.Regexp(t, PickupCodePattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190, "codes should not repeat")
}

func TestCheckoutFreezesPricesAndSplitsFee(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	rice := h.store.Product(t, shop, "Jollof", 1505, 10)
	drink := h.store.Product(t, shop, "Zobo", 300, 10)

	o, err := h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{
		{ProductID: rice.ID, Quantity: 2},
		{ProductID: drink.ID, Quantity: 1},
		{ProductID: rice.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderCreated, o.Status)
	assert.EqualValues(t, 3*1505+300, o.TotalPriceInCents)
	assert.EqualValues(t, 481, o.KithlyFeeInCents, "fee is floored")
	assert.Nil(t, o.PickupCode)

	got := h.store.Reload(t, o.ID)
	require.Len(t, got.Items, 2)
	var sum int64
	for _, it := range got.Items {
		sum += it.LineTotalInCents()
	}
	assert.Equal(t, got.TotalPriceInCents, sum)

	price := int64(9999)
	require.NoError(t, h.store.Products.Update(testCtx, rice.ID, repository.ProductUpdate{PriceInCents: &price}))
	got = h.store.Reload(t, o.ID)
	assert.EqualValues(t, 1505, got.Items[0].PriceAtPurchaseInCents)
}

func TestCheckoutRejections(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	other := h.store.Owner(t, "other@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Open", true)
	closed := h.store.Shop(t, other, "Closed", false)
	p := h.store.Product(t, shop, "Jollof", 1000, 1)
	foreign := h.store.Product(t, closed, "Suya", 500, 5)

	_, err := h.orders.Checkout(testCtx, identity(owner), shop.ID, []CheckoutLine{{ProductID: p.ID, Quantity: 1}})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.orders.Checkout(testCtx, identity(buyer), shop.ID, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{{ProductID: p.ID, Quantity: 0}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.orders.Checkout(testCtx, identity(buyer), closed.ID, []CheckoutLine{{ProductID: foreign.ID, Quantity: 1}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "closed shop")

	_, err = h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{{ProductID: foreign.ID, Quantity: 1}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "product from another shop")

	_, err = h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{{ProductID: p.ID, Quantity: 2}})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "out of stock")

	_, err = h.orders.Checkout(testCtx, identity(buyer), "missing", []CheckoutLine{{ProductID: p.ID, Quantity: 1}})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	o := h.store.Order(t, shop, buyer, 1000, 100)

	first, changed, err := h.orders.ConfirmPayment(testCtx, o.ID, 1000, "flw-1")
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, first.PickupCode)
	assert.Regexp(t, PickupCodePattern, *first.PickupCode)
	h.waitEvent(t, events.RKOrderPaid)

	second, changed, err := h.orders.ConfirmPayment(testCtx, o.ID, 1000, "flw-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, *first.PickupCode, *second.PickupCode)
	h.noEvent(t)

	got := h.store.Reload(t, o.ID)
	assert.Equal(t, domain.OrderPaid, got.Status)
	assert.Equal(t, *first.PickupCode, *got.PickupCode)
	assert.True(t, fixedNow.Equal(*got.PaidAt))
	assert.Equal(t, []string{events.RKOrderPaid}, h.pub.Keys())

	ev := h.pub.Events[0].Payload.(events.OrderEvent)
	assert.Equal(t, "buyer@x.com", ev.BuyerEmail)
	assert.EqualValues(t, 1000, ev.TotalPriceInCents)
}

func TestConfirmPaymentAmountMismatch(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	o := h.store.Order(t, shop, buyer, 1000, 100)

	_, changed, err := h.orders.ConfirmPayment(testCtx, o.ID, 999, "flw-1")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.False(t, changed)

	got := h.store.Reload(t, o.ID)
	assert.Equal(t, domain.OrderCreated, got.Status)
	assert.Nil(t, got.PickupCode)
	h.noEvent(t)
}

func TestConfirmPaymentUnknownOrCancelled(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	o := h.store.Order(t, shop, buyer, 1000, 100)

	_, _, err := h.orders.ConfirmPayment(testCtx, "nope", 1000, "x")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, changed, err := h.orders.Cancel(testCtx, o.ID, "test")
	require.NoError(t, err)
	require.True(t, changed)
	h.waitEvent(t, events.RKOrderCancelled)

	_, _, err = h.orders.ConfirmPayment(testCtx, o.ID, 1000, "late")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, domain.OrderCancelled, h.store.Reload(t, o.ID).Status)
}

func TestConfirmPaymentRetriesOnCodeCollision(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	first := h.store.Order(t, shop, buyer, 1000, 100)
	second := h.store.Order(t, shop, buyer, 2000, 200)

	codes := []string{"KLYSAME000", "KLYSAME000", "KLYFRESH00"}
	h.orders.WithCodeSource(func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	})

	mustPaid(t, h, first)
	got := mustPaid(t, h, second)
	assert.Equal(t, "KLYFRESH00", *got.PickupCode)
	assert.Empty(t, codes)
}

func TestConfirmPaymentGivesUpAfterBoundedAttempts(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	first := h.store.Order(t, shop, buyer, 1000, 100)
	second := h.store.Order(t, shop, buyer, 1000, 100)

	calls := 0
	h.orders.WithCodeSource(func() (string, error) { calls++; return "KLYSTUCK00", nil })
	mustPaid(t, h, first)

	calls = 0
	_, _, err := h.orders.ConfirmPayment(testCtx, second.ID, 1000, "r")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, maxPickupAttempts, calls)
	assert.Equal(t, domain.OrderCreated, h.store.Reload(t, second.ID).Status)

	h.orders.WithCodeSource(func() (string, error) { return "", errors.New("entropy") })
	_, _, err = h.orders.ConfirmPayment(testCtx, second.ID, 1000, "r")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestRedeem(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	intruder := h.store.Owner(t, "intruder@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	h.store.Shop(t, intruder, "Other", true)
	o := h.store.Order(t, shop, buyer, 1000, 100)

	_, err := h.orders.Redeem(testCtx, identity(owner), o.ID, "KLY0000000")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "not paid yet")

	paid := mustPaid(t, h, o)
	code := *paid.PickupCode

	_, err = h.orders.Redeem(testCtx, identity(intruder), o.ID, code)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.orders.Redeem(testCtx, identity(buyer), o.ID, code)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.orders.Redeem(testCtx, identity(owner), o.ID, "KLYWRONG00")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	done, err := h.orders.Redeem(testCtx, identity(owner), o.ID, " "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, done.Status)
	h.waitEvent(t, events.RKOrderCompleted)

	got := h.store.Reload(t, o.ID)
	assert.Equal(t, domain.OrderCompleted, got.Status)
	assert.NotNil(t, got.CollectedAt)
	assert.False(t, got.IsPaidOut)

	_, err = h.orders.Redeem(testCtx, identity(owner), o.ID, code)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCancelTransitions(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	o := h.store.Order(t, shop, buyer, 1000, 100)
	paid := h.store.Order(t, shop, buyer, 500, 50)
	mustPaid(t, h, paid)

	got, changed, err := h.orders.Cancel(testCtx, o.ID, "processor:failed")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	h.waitEvent(t, events.RKOrderCancelled)

	_, changed, err = h.orders.Cancel(testCtx, o.ID, "again")
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = h.orders.Cancel(testCtx, paid.ID, "late failure")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, domain.OrderPaid, h.store.Reload(t, paid.ID).Status)
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	stale := h.store.Order(t, shop, buyer, 1000, 100)
	paid := h.store.Order(t, shop, buyer, 1000, 100)
	mustPaid(t, h, paid)

	h.orders.WithClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	n, err := h.orders.ExpireStale(testCtx, 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.OrderCancelled, h.store.Reload(t, stale.ID).Status)
	assert.Equal(t, domain.OrderPaid, h.store.Reload(t, paid.ID).Status)
}

func TestExpireStaleReleasesStock(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	rice := h.store.Product(t, shop, "Jollof", 1500, 2)

	_, err := h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{{ProductID: rice.ID, Quantity: 2}})
	require.NoError(t, err)
	_, err = h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{{ProductID: rice.ID, Quantity: 1}})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "shop is sold out while the order is pending")

	h.orders.WithClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	n, err := h.orders.ExpireStale(testCtx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	p, err := h.store.Products.ByID(testCtx, rice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.Stock)

	h.orders.WithClock(func() time.Time { return fixedNow })
	_, err = h.orders.Checkout(testCtx, identity(buyer), shop.ID, []CheckoutLine{{ProductID: rice.ID, Quantity: 1}})
	assert.NoError(t, err)
}

func TestStatusVisibility(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	stranger := h.store.Buyer(t, "stranger@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	o := h.store.Order(t, shop, buyer, 1000, 100)
	paid := mustPaid(t, h, o)

	anon, err := h.orders.Status(testCtx, nil, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, anon.Status)
	assert.True(t, anon.HasPickupCode)
	assert.Nil(t, anon.PickupCode)
	assert.Nil(t, anon.TotalPriceInCents)

	strangerID := identity(stranger)
	v, err := h.orders.Status(testCtx, &strangerID, o.ID)
	require.NoError(t, err)
	assert.Nil(t, v.PickupCode)
	assert.Nil(t, v.TotalPriceInCents)

	buyerID := identity(buyer)
	v, err = h.orders.Status(testCtx, &buyerID, o.ID)
	require.NoError(t, err)
	require.NotNil(t, v.PickupCode)
	assert.Equal(t, *paid.PickupCode, *v.PickupCode)
	assert.EqualValues(t, 1000, *v.TotalPriceInCents)

	ownerID := identity(owner)
	v, err = h.orders.Status(testCtx, &ownerID, o.ID)
	require.NoError(t, err)
	assert.Nil(t, v.PickupCode, "the shop must get the code from the buyer")
	assert.EqualValues(t, 1000, *v.TotalPriceInCents)

	_, err = h.orders.Redeem(testCtx, ownerID, o.ID, *paid.PickupCode)
	require.NoError(t, err)
	anon, err = h.orders.Status(testCtx, nil, o.ID)
	require.NoError(t, err)
	assert.NotNil(t, anon.PickupCode)
	assert.NotNil(t, anon.TotalPriceInCents)

	_, err = h.orders.Status(testCtx, nil, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = h.orders.Status(testCtx, nil, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListScopesByRole(t *testing.T) {
	h := newHarness(t)
	owner := h.store.Owner(t, "owner@x.com")
	shopless := h.store.Owner(t, "new@x.com")
	buyer := h.store.Buyer(t, "buyer@x.com")
	other := h.store.Buyer(t, "other@x.com")
	shop := h.store.Shop(t, owner, "Mama Put", true)
	mine := h.store.Order(t, shop, buyer, 1000, 100)
	h.store.Order(t, shop, other, 500, 50)

	got, err := h.orders.List(testCtx, identity(buyer))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	got, err = h.orders.List(testCtx, identity(owner))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = h.orders.List(testCtx, identity(shopless))
	require.NoError(t, err)
	assert.Empty(t, got)
}
