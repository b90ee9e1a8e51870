// Package money keeps amounts in integer minor units. Conversion to major
// units happens only when formatting for display.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

// Fee returns floor(total * bps / 10000). The result never exceeds total.
func Fee(totalCents, bps int64) (int64, error) {
	if totalCents < 0 {
		return 0, errors.New("negative total")
	}
	if bps < 0 || bps > bpsDenominator {
		return 0, errors.New("fee basis points out of range")
	}
	return decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		Floor().
		IntPart(), nil
}

// LineTotal multiplies a unit price by a quantity, rejecting overflow.
func LineTotal(unitCents, qty int64) (int64, error) {
	if unitCents < 0 || qty < 0 {
		return 0, errors.New("negative amount")
	}
	if qty != 0 && unitCents > (1<<63-1)/qty {
		return 0, errors.New("amount overflow")
	}
	return unitCents * qty, nil
}

// Format renders cents as a fixed two-decimal string, e.g. 1050 -> "10.50".
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FormatWithCurrency renders "NGN 10.50".
func FormatWithCurrency(cents int64, currency string) string {
	if currency == "" {
		return Format(cents)
	}
	return currency + " " + Format(cents)
}
