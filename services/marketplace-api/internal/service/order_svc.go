package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/money"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

var tracer = otel.Tracer("kithly/marketplace-api/order")

type OrderSvc struct {
	orders   *repository.OrderRepo
	shops    *repository.ShopRepo
	products *repository.ProductRepo
	users    *repository.UserRepo
	emitter  *events.Emitter
	feeBPS   int64

	now     func() time.Time
	newCode func() (string, error)
}

func NewOrderSvc(orders *repository.OrderRepo, shops *repository.ShopRepo, products *repository.ProductRepo, users *repository.UserRepo, emitter *events.Emitter, feeBPS int64) *OrderSvc {
	if emitter == nil {
		emitter = events.NewEmitter(nil)
	}
	return &OrderSvc{
		orders:   orders,
		shops:    shops,
		products: products,
		users:    users,
		emitter:  emitter,
		feeBPS:   feeBPS,
		now:      time.Now,
		newCode:  NewPickupCode,
	}
}

func (s *OrderSvc) WithClock(now func() time.Time) *OrderSvc {
	s.now = now
	return s
}

// WithCodeSource replaces the pickup code generator.
func (s *OrderSvc) WithCodeSource(gen func() (string, error)) *OrderSvc {
	s.newCode = gen
	return s
}

func (s *OrderSvc) utcNow() time.Time { return s.now().UTC() }

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *OrderSvc) emit(ctx context.Context, key string, o *domain.Order) {
	ev := events.OrderEvent{
		OrderID:           o.ID,
		ShopID:            o.ShopID,
		BuyerID:           o.BuyerID,
		Status:            string(o.Status),
		TotalPriceInCents: o.TotalPriceInCents,
		KithlyFeeInCents:  o.KithlyFeeInCents,
		OccurredAt:        s.utcNow().Format(time.RFC3339),
	}
	if u, err := s.users.ByID(ctx, o.BuyerID); err == nil {
		ev.BuyerEmail = u.Email
	}
	s.emitter.Emit(key, ev)
}

// ---------- checkout ----------

type CheckoutLine struct {
	ProductID string
	Quantity  int64
}

func (s *OrderSvc) Checkout(ctx context.Context, buyer auth.Identity, shopID string, lines []CheckoutLine) (_ *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "order.checkout", trace.WithAttributes(attribute.String("shop.id", shopID)))
	defer func() { endSpan(span, err) }()

	if buyer.Role != auth.RoleBuyer {
		return nil, apperr.Forbidden("only buyers can place orders")
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("order has no items")
	}

	// merge repeated products, keep first-seen order
	qty := map[string]int64{}
	var ids []string
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, apperr.Validation("quantity must be positive")
		}
		if _, seen := qty[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}

	shop, err := s.shops.ByID(ctx, shopID)
	if err != nil {
		return nil, storeErr(err, "shop not found")
	}
	if !shop.IsOpen {
		return nil, apperr.Validation("shop is not accepting orders")
	}

	found, err := s.products.ByIDsInShop(ctx, shop.ID, ids)
	if err != nil {
		return nil, storeErr(err, "")
	}
	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	o := &domain.Order{ShopID: shop.ID, BuyerID: buyer.UserID, Status: domain.OrderCreated}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("product %s is not sold by this shop", id))
		}
		line, err := money.LineTotal(p.PriceInCents, qty[id])
		if err != nil {
			return nil, apperr.Validation("order amount too large")
		}
		if o.TotalPriceInCents > (1<<63-1)-line {
			return nil, apperr.Validation("order amount too large")
		}
		o.TotalPriceInCents += line
		o.Items = append(o.Items, domain.OrderItem{
			ProductID:              p.ID,
			ProductName:            p.Name,
			Quantity:               qty[id],
			PriceAtPurchaseInCents: p.PriceInCents,
		})
	}
	if o.KithlyFeeInCents, err = money.Fee(o.TotalPriceInCents, s.feeBPS); err != nil {
		return nil, apperr.Internal(err, "compute fee")
	}

	if err := s.orders.CreateWithItems(ctx, o); err != nil {
		if errors.Is(err, repository.ErrOutOfStock) {
			return nil, apperr.Conflict("not enough stock for one or more items")
		}
		return nil, storeErr(err, "")
	}
	log.Printf("[order] created id=%s shop=%s total=%d fee=%d", o.ID, o.ShopID, o.TotalPriceInCents, o.KithlyFeeInCents)
	return o, nil
}

// ---------- transitions ----------

// ConfirmPayment moves created -> paid when the reported amount equals the
// stored total. Repeats for an already confirmed order succeed without change.
// The bool reports whether this call performed the transition.
func (s *OrderSvc) ConfirmPayment(ctx context.Context, orderID string, amount int64, reference string) (_ *domain.Order, _ bool, err error) {
	ctx, span := tracer.Start(ctx, "order.confirm_payment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int64("payment.amount", amount),
	))
	defer func() { endSpan(span, err) }()

	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, false, storeErr(err, "order not found")
	}

	for attempt := 0; attempt < maxPickupAttempts; attempt++ {
		switch {
		case o.Status.Confirmed():
			return o, false, nil
		case o.Status != domain.OrderCreated:
			return o, false, apperr.Conflict(fmt.Sprintf("order is %s", o.Status))
		case amount != o.TotalPriceInCents:
			log.Printf("[order] SUSPICIOUS amount mismatch order=%s expected=%d got=%d ref=%s",
				o.ID, o.TotalPriceInCents, amount, reference)
			return o, false, apperr.Validation("payment amount does not match order total")
		}

		code, err := s.newCode()
		if err != nil {
			return nil, false, apperr.Internal(err, "generate pickup code")
		}
		taken, err := s.orders.PickupCodeExists(ctx, code)
		if err != nil {
			return nil, false, storeErr(err, "")
		}
		if taken {
			log.Printf("[order] pickup code collision order=%s attempt=%d", o.ID, attempt+1)
			continue
		}

		at := s.utcNow()
		ok, err := s.orders.ConfirmPaid(ctx, o.ID, amount, code, reference, at)
		if isDuplicate(err) {
			log.Printf("[order] pickup code collision on write order=%s attempt=%d", o.ID, attempt+1)
			continue
		}
		if err != nil {
			return nil, false, storeErr(err, "")
		}
		if ok {
			o.Status = domain.OrderPaid
			o.PickupCode = &code
			o.PaymentReference = reference
			o.PaidAt = &at
			log.Printf("[order] paid id=%s ref=%s", o.ID, reference)
			s.emit(ctx, events.RKOrderPaid, o)
			return o, true, nil
		}

		// lost the race; re-read and let the switch decide
		if o, err = s.orders.ByID(ctx, orderID); err != nil {
			return nil, false, storeErr(err, "order not found")
		}
	}
	return nil, false, apperr.Internal(errors.New("pickup code attempts exhausted"), "could not issue pickup code")
}

// Cancel moves created -> cancelled. Cancelling a cancelled order is a no-op.
func (s *OrderSvc) Cancel(ctx context.Context, orderID, reason string) (_ *domain.Order, _ bool, err error) {
	ctx, span := tracer.Start(ctx, "order.cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	at := s.utcNow()
	ok, err := s.orders.Cancel(ctx, orderID, at)
	if err != nil {
		return nil, false, storeErr(err, "")
	}
	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, false, storeErr(err, "order not found")
	}
	if !ok {
		if o.Status == domain.OrderCancelled {
			return o, false, nil
		}
		return o, false, apperr.Conflict(fmt.Sprintf("order is %s", o.Status))
	}
	log.Printf("[order] cancelled id=%s reason=%s", o.ID, reason)
	s.emit(ctx, events.RKOrderCancelled, o)
	return o, true, nil
}

// Redeem completes a paid order when the owning shop owner presents its pickup code.
func (s *OrderSvc) Redeem(ctx context.Context, owner auth.Identity, orderID, code string) (_ *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "order.redeem", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	if owner.Role != auth.RoleShopOwner {
		return nil, apperr.Forbidden("only shop owners can redeem pickup codes")
	}
	shop, err := s.shops.ByOwner(ctx, owner.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Forbidden("you do not own a shop")
		}
		return nil, storeErr(err, "")
	}
	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, "order not found")
	}
	if o.ShopID != shop.ID {
		return nil, apperr.Forbidden("order belongs to another shop")
	}
	if o.Status != domain.OrderPaid {
		return nil, apperr.Conflict(fmt.Sprintf("order is %s", o.Status))
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !o.HasPickupCode() || subtle.ConstantTimeCompare([]byte(*o.PickupCode), []byte(code)) != 1 {
		return nil, apperr.Validation("invalid pickup code")
	}

	at := s.utcNow()
	ok, err := s.orders.Complete(ctx, o.ID, shop.ID, at)
	if err != nil {
		return nil, storeErr(err, "")
	}
	if !ok {
		return nil, apperr.Conflict("order was updated concurrently")
	}
	o.Status = domain.OrderCompleted
	o.CollectedAt = &at
	log.Printf("[order] completed id=%s shop=%s", o.ID, shop.ID)
	s.emit(ctx, events.RKOrderCompleted, o)
	return o, nil
}

// ExpireStale cancels orders still awaiting payment after olderThan.
func (s *OrderSvc) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	ids, err := s.orders.StaleCreated(ctx, s.utcNow().Add(-olderThan), limit)
	if err != nil {
		return 0, storeErr(err, "")
	}
	n := 0
	for _, id := range ids {
		_, ok, err := s.Cancel(ctx, id, "expired")
		if err != nil {
			log.Printf("[order] expire %s: %v", id, err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ---------- reads ----------

type StatusView struct {
	OrderID           string
	Status            domain.OrderStatus
	HasPickupCode     bool
	PickupCode        *string
	TotalPriceInCents *int64
}

type viewerRelation int

const (
	relationNone viewerRelation = iota
	relationBuyer
	relationShopOwner
)

func (s *OrderSvc) relation(ctx context.Context, viewer *auth.Identity, o *domain.Order) (viewerRelation, error) {
	if viewer == nil {
		return relationNone, nil
	}
	if viewer.Role == auth.RoleBuyer {
		if o.BuyerID == viewer.UserID {
			return relationBuyer, nil
		}
		return relationNone, nil
	}
	shop, err := s.shops.ByID(ctx, o.ShopID)
	if err != nil {
		if isNotFound(err) {
			return relationNone, nil
		}
		return relationNone, err
	}
	if shop.OwnedBy(viewer.UserID) {
		return relationShopOwner, nil
	}
	return relationNone, nil
}

// Status is readable by anyone holding the order id. The total is revealed to
// the buyer and the shop owner. The pickup code goes to the buyer only, since
// the shop must receive it in person; after completion both are public.
func (s *OrderSvc) Status(ctx context.Context, viewer *auth.Identity, orderID string) (*StatusView, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.Validation("orderId is required")
	}
	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, "order not found")
	}
	v := &StatusView{OrderID: o.ID, Status: o.Status, HasPickupCode: o.HasPickupCode()}

	rel, err := s.relation(ctx, viewer, o)
	if err != nil {
		return nil, storeErr(err, "")
	}
	completed := o.Status == domain.OrderCompleted
	if completed || rel != relationNone {
		total := o.TotalPriceInCents
		v.TotalPriceInCents = &total
	}
	if completed || rel == relationBuyer {
		v.PickupCode = o.PickupCode
	}
	return v, nil
}

// List returns the buyer's orders, or the orders of the owner's shop.
func (s *OrderSvc) List(ctx context.Context, viewer auth.Identity) ([]domain.Order, error) {
	switch viewer.Role {
	case auth.RoleBuyer:
		out, err := s.orders.ListByBuyer(ctx, viewer.UserID)
		return out, storeErr(err, "")
	case auth.RoleShopOwner:
		shop, err := s.shops.ByOwner(ctx, viewer.UserID)
		if isNotFound(err) {
			return []domain.Order{}, nil
		}
		if err != nil {
			return nil, storeErr(err, "")
		}
		out, err := s.orders.ListByShop(ctx, shop.ID)
		return out, storeErr(err, "")
	default:
		return nil, apperr.Forbidden("unknown role")
	}
}
