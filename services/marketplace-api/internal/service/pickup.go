package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	pickupPrefix   = "KLY"
	pickupLength   = 7
	pickupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// attempts before giving up on a free pickup code
	maxPickupAttempts = 5
)

var PickupCodePattern = regexp.MustCompile(`^KLY[A-Z0-9]{7}$`)

// NewPickupCode draws each character uniformly from crypto/rand.
func NewPickupCode() (string, error) {
	max := big.NewInt(int64(len(pickupAlphabet)))
	b := make([]byte, 0, len(pickupPrefix)+pickupLength)
	b = append(b, pickupPrefix...)
	for i := 0; i < pickupLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b = append(b, pickupAlphabet[n.Int64()])
	}
	return string(b), nil
}
