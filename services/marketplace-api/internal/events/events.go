package events

import (
	"context"
	"log"
	"time"

	"github.com/kithly/marketplace/pkg/mq"
)

const (
	RKOrderPaid      = "order.paid"
	RKOrderCompleted = "order.completed"
	RKOrderCancelled = "order.cancelled"
	RKOrderPaidOut   = "order.paid_out"
)

// OrderEvent never carries the pickup code.
type OrderEvent struct {
	OrderID           string `json:"order_id"`
	ShopID            string `json:"shop_id"`
	BuyerID           string `json:"buyer_id"`
	BuyerEmail        string `json:"buyer_email,omitempty"`
	Status            string `json:"status"`
	TotalPriceInCents int64  `json:"total_price_in_cents"`
	KithlyFeeInCents  int64  `json:"kithly_fee_in_cents"`
	OccurredAt        string `json:"occurred_at"` // RFC3339
}

// Emitter publishes in the background; a failed publish is logged and dropped.
type Emitter struct {
	pub     mq.Publisher
	timeout time.Duration
	// done is signalled after each publish attempt; tests use it to wait.
	done chan<- string
}

func NewEmitter(pub mq.Publisher) *Emitter {
	if pub == nil {
		pub = mq.LogPublisher{}
	}
	return &Emitter{pub: pub, timeout: 5 * time.Second}
}

// WithDone reports each routing key on ch once its publish attempt finishes.
func (e *Emitter) WithDone(ch chan<- string) *Emitter {
	e.done = ch
	return e
}

func (e *Emitter) Emit(key string, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.pub.PublishJSON(ctx, key, payload); err != nil {
			log.Printf("[events] publish %s failed: %v", key, err)
		}
		if e.done != nil {
			e.done <- key
		}
	}()
}
