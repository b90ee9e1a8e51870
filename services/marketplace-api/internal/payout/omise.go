package payout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// ErrRejected marks a transfer the provider definitely did not execute.
// Any other Transfer error may have moved money and must not be retried blindly.
var ErrRejected = errors.New("transfer rejected")

// Unconfirmed is stored as the transfer id when the outcome of a transfer is unknown.
const Unconfirmed = "unconfirmed"

// Transferer moves net proceeds to a shop's payout recipient.
type Transferer interface {
	Transfer(ctx context.Context, recipientID string, amountCents int64) (string, error)
}

type OmiseTransferer struct {
	omc *omise.Client
}

func NewOmiseTransferer(pub, sec string) (*OmiseTransferer, error) {
	if sec == "" {
		return nil, errors.New("omise secret key is empty")
	}
	c, err := omise.NewClient(pub, sec)
	if err != nil {
		return nil, err
	}
	return &OmiseTransferer{omc: c}, nil
}

func (t *OmiseTransferer) Transfer(ctx context.Context, recipientID string, amountCents int64) (string, error) {
	if recipientID == "" || amountCents <= 0 {
		return "", fmt.Errorf("%w: invalid transfer params", ErrRejected)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	tr := &omise.Transfer{}
	req := &operations.CreateTransfer{
		Amount:    amountCents,
		Recipient: recipientID,
	}
	if err := t.omc.Do(tr, req); err != nil {
		return "", classify(err)
	}
	log.Printf("[payout] transfer %s amount=%d recipient=%s", tr.ID, amountCents, recipientID)
	return tr.ID, nil
}

// classify keeps 4xx API errors as definite rejections. Transport failures and
// 5xx responses leave the outcome unknown.
func classify(err error) error {
	var apiErr *omise.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return fmt.Errorf("%w: omise %d %s: %s", ErrRejected, apiErr.StatusCode, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("omise create transfer: %w", err)
}

// LogTransferer records transfers without moving money; used when no provider
// key is configured.
type LogTransferer struct{}

func (LogTransferer) Transfer(_ context.Context, recipientID string, amountCents int64) (string, error) {
	log.Printf("[payout] dry-run transfer amount=%d recipient=%s", amountCents, recipientID)
	return "dry-run", nil
}
