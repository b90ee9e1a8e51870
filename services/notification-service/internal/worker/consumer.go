package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kithly/marketplace/pkg/money"
	"github.com/kithly/marketplace/services/notification-service/internal/events"
	"github.com/kithly/marketplace/services/notification-service/internal/notifier"
)

// Source yields deliveries; *mq.Consumer is the production implementation.
type Source interface {
	Deliveries(ctx context.Context, consumerTag string) (<-chan amqp.Delivery, error)
}

type Consumer struct {
	src      Source
	notifier notifier.Notifier
	tag      string
	currency string
}

func NewConsumer(src Source, n notifier.Notifier, tag, currency string) *Consumer {
	return &Consumer{src: src, notifier: n, tag: tag, currency: currency}
}

func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.src.Deliveries(ctx, c.tag)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			err := c.Handle(ctx, d.RoutingKey, d.Body)
			var decodeErr *events.DecodeError
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.As(err, &decodeErr):
				log.Printf("[notify] poison message key=%s err=%v -> dead letter", d.RoutingKey, err)
				_ = d.Nack(false, false)
			default:
				log.Printf("[notify] handle error key=%s err=%v -> Nack&requeue", d.RoutingKey, err)
				_ = d.Nack(false, true)
			}
		}
	}
}

// Handle renders one event and passes it to the notifier. Unknown keys are
// acknowledged and dropped.
func (c *Consumer) Handle(ctx context.Context, key string, body []byte) error {
	n, ok, err := c.render(key, body)
	if err != nil || !ok {
		return err
	}
	return c.notifier.Notify(ctx, n)
}

func (c *Consumer) render(key string, body []byte) (notifier.Notification, bool, error) {
	switch key {
	case events.RKOrderPaid, events.RKOrderCompleted, events.RKOrderCancelled, events.RKOrderPaidOut:
	default:
		log.Printf("[notify] skip unknown key=%s", key)
		return notifier.Notification{}, false, nil
	}

	ev, err := events.MustUnmarshal[events.OrderEvent](body)
	if err != nil {
		return notifier.Notification{}, false, err
	}
	total := money.FormatWithCurrency(ev.TotalPriceInCents, c.currency)

	switch key {
	case events.RKOrderPaid:
		return notifier.Notification{
			To:      ev.BuyerEmail,
			Subject: "Payment received",
			Message: fmt.Sprintf("We received %s for order %s. Show your pickup code in the app when you collect it.", total, ev.OrderID),
		}, true, nil
	case events.RKOrderCompleted:
		return notifier.Notification{
			To:      ev.BuyerEmail,
			Subject: "Order collected",
			Message: fmt.Sprintf("Order %s has been collected. Thanks for shopping with Kithly.", ev.OrderID),
		}, true, nil
	case events.RKOrderCancelled:
		return notifier.Notification{
			To:      ev.BuyerEmail,
			Subject: "Order cancelled",
			Message: fmt.Sprintf("Order %s (%s) was cancelled before payment was confirmed.", ev.OrderID, total),
		}, true, nil
	default:
		net := money.FormatWithCurrency(ev.TotalPriceInCents-ev.KithlyFeeInCents, c.currency)
		return notifier.Notification{
			Subject: "Payout released",
			Message: fmt.Sprintf("Order %s: %s released to shop %s.", ev.OrderID, net, ev.ShopID),
		}, true, nil
	}
}
