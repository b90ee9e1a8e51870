package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/payout"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

type PayoutReport struct {
	PaidOut int
	Skipped int
	Failed  int
	// Unconfirmed orders stay claimed until an operator reconciles them with the provider.
	Unconfirmed int
}

type payoutOutcome int

const (
	payoutDone payoutOutcome = iota
	payoutFailed
	payoutUnconfirmed
)

type PayoutSvc struct {
	orders   *repository.OrderRepo
	shops    *repository.ShopRepo
	transfer payout.Transferer
	emitter  *events.Emitter
	now      func() time.Time
}

func NewPayoutSvc(orders *repository.OrderRepo, shops *repository.ShopRepo, t payout.Transferer, emitter *events.Emitter) *PayoutSvc {
	if t == nil {
		t = payout.LogTransferer{}
	}
	if emitter == nil {
		emitter = events.NewEmitter(nil)
	}
	return &PayoutSvc{orders: orders, shops: shops, transfer: t, emitter: emitter, now: time.Now}
}

func (s *PayoutSvc) WithClock(now func() time.Time) *PayoutSvc {
	s.now = now
	return s
}

// Run releases net proceeds for completed orders. Each order is claimed before
// the transfer. The claim is reverted only when the provider rejected the
// transfer; an unknown outcome keeps the claim so the order is never paid twice.
func (s *PayoutSvc) Run(ctx context.Context, limit int) (PayoutReport, error) {
	var rep PayoutReport
	candidates, err := s.orders.PayoutCandidates(ctx, limit)
	if err != nil {
		return rep, storeErr(err, "")
	}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		o := &candidates[i]
		shop, err := s.shops.ByID(ctx, o.ShopID)
		if err != nil {
			log.Printf("[payout] order=%s shop lookup: %v", o.ID, err)
			rep.Failed++
			continue
		}
		if shop.RecipientID == "" {
			log.Printf("[payout] order=%s skipped: shop %s has no payout recipient", o.ID, shop.ID)
			rep.Skipped++
			continue
		}
		switch s.payOne(ctx, o, shop) {
		case payoutDone:
			rep.PaidOut++
		case payoutUnconfirmed:
			rep.Unconfirmed++
		default:
			rep.Failed++
		}
	}
	return rep, nil
}

func (s *PayoutSvc) payOne(ctx context.Context, o *domain.Order, shop *domain.Shop) payoutOutcome {
	at := s.now().UTC()
	claimed, err := s.orders.ClaimPayout(ctx, o.ID, at)
	if err != nil {
		log.Printf("[payout] order=%s claim: %v", o.ID, err)
		return payoutFailed
	}
	if !claimed {
		log.Printf("[payout] order=%s already claimed", o.ID)
		return payoutFailed
	}

	net := o.NetPayoutInCents()
	transferID := "zero-amount"
	if net > 0 {
		transferID, err = s.transfer.Transfer(ctx, shop.RecipientID, net)
		if errors.Is(err, payout.ErrRejected) {
			log.Printf("[payout] order=%s transfer rejected, reverting claim: %v", o.ID, err)
			if rerr := s.orders.RevertPayout(ctx, o.ID); rerr != nil {
				log.Printf("[payout] order=%s revert failed: %v", o.ID, rerr)
			}
			return payoutFailed
		}
		if err != nil {
			log.Printf("[payout] order=%s transfer outcome unknown, holding claim for reconciliation: %v", o.ID, err)
			if serr := s.orders.SetPayoutTransfer(ctx, o.ID, payout.Unconfirmed); serr != nil {
				log.Printf("[payout] order=%s mark unconfirmed: %v", o.ID, serr)
			}
			return payoutUnconfirmed
		}
	}
	if err := s.orders.SetPayoutTransfer(ctx, o.ID, transferID); err != nil {
		log.Printf("[payout] order=%s record transfer %s: %v", o.ID, transferID, err)
	}

	o.IsPaidOut = true
	o.PaidOutAt = &at
	s.emitter.Emit(events.RKOrderPaidOut, events.OrderEvent{
		OrderID:           o.ID,
		ShopID:            o.ShopID,
		BuyerID:           o.BuyerID,
		Status:            string(o.Status),
		TotalPriceInCents: o.TotalPriceInCents,
		KithlyFeeInCents:  o.KithlyFeeInCents,
		OccurredAt:        at.Format(time.RFC3339),
	})
	log.Printf("[payout] order=%s net=%d transfer=%s", o.ID, net, transferID)
	return payoutDone
}
