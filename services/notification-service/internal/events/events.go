package events

import (
	"encoding/json"
	"fmt"
)

// Routing keys published by the marketplace API.
const (
	RKOrderPaid      = "order.paid"
	RKOrderCompleted = "order.completed"
	RKOrderCancelled = "order.cancelled"
	RKOrderPaidOut   = "order.paid_out"
)

type OrderEvent struct {
	OrderID           string `json:"order_id"`
	ShopID            string `json:"shop_id"`
	BuyerID           string `json:"buyer_id"`
	BuyerEmail        string `json:"buyer_email,omitempty"`
	Status            string `json:"status"`
	TotalPriceInCents int64  `json:"total_price_in_cents"`
	KithlyFeeInCents  int64  `json:"kithly_fee_in_cents"`
	OccurredAt        string `json:"occurred_at"`
}

// DecodeError marks a payload that will never decode, however often it is redelivered.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("decode payload failed: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

func MustUnmarshal[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, &DecodeError{Err: err}
	}
	return t, nil
}
