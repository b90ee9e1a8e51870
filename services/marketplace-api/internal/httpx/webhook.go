package httpx

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
)

const (
	SignatureHeader = "verif-hash"
	maxWebhookBody  = 1 << 20
)

// PaymentEngine is the part of the order engine driven by processor callbacks.
type PaymentEngine interface {
	ConfirmPayment(ctx context.Context, orderID string, amount int64, reference string) (*domain.Order, bool, error)
}

type WebhookServer struct {
	engine PaymentEngine
	secret []byte
}

func NewWebhookServer(engine PaymentEngine, secretHash string) *WebhookServer {
	return &WebhookServer{engine: engine, secret: []byte(secretHash)}
}

type paymentData struct {
	ID     json.RawMessage `json:"id"`
	Status string          `json:"status"`
	TxRef  string          `json:"tx_ref"`
	Amount json.Number     `json:"amount"`
}

// Accepts both {status, tx_ref, amount, id} and {event, data: {...}}.
type webhookPayload struct {
	Event string       `json:"event"`
	Data  *paymentData `json:"data"`
	paymentData
}

func (p webhookPayload) payment() paymentData {
	if p.Data != nil {
		return *p.Data
	}
	return p.paymentData
}

// reference is the processor's transaction id, falling back to tx_ref.
func (d paymentData) reference() string {
	raw := strings.TrimSpace(string(d.ID))
	if raw == "" || raw == "null" {
		return d.TxRef
	}
	if s, err := strconv.Unquote(raw); err == nil {
		return s
	}
	return raw
}

// amountMinor rejects fractional or non-numeric amounts.
func (d paymentData) amountMinor() (int64, bool) {
	n, err := strconv.ParseInt(d.Amount.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *WebhookServer) verify(r *http.Request) bool {
	if len(s.secret) == 0 {
		return false
	}
	got := []byte(r.Header.Get(SignatureHeader))
	return subtle.ConstantTimeCompare(got, s.secret) == 1
}

func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

func (s *WebhookServer) Handler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if !s.verify(r) {
		log.Printf("[webhook] signature rejected from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid signature"}`))
		return
	}

	// from here on the processor always gets a 200
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("[webhook] read body: %v", err)
		ack(w)
		return
	}
	var in webhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&in); err != nil {
		log.Printf("[webhook] decode payload: %v", err)
		ack(w)
		return
	}
	s.dispatch(r.Context(), in)
	ack(w)
}

func (s *WebhookServer) dispatch(ctx context.Context, in webhookPayload) {
	p := in.payment()
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if p.TxRef == "" {
		log.Printf("[webhook] event=%q status=%q without tx_ref ignored", in.Event, status)
		return
	}

	// unpaid orders are left for the expiry sweep
	if status != "successful" {
		log.Printf("[webhook] status=%q for order=%s ignored", status, p.TxRef)
		return
	}

	amount, ok := p.amountMinor()
	if !ok {
		log.Printf("[webhook] SUSPICIOUS non-integer amount %q for order=%s", p.Amount, p.TxRef)
		return
	}
	o, changed, err := s.engine.ConfirmPayment(ctx, p.TxRef, amount, p.reference())
	if err != nil {
		log.Printf("[webhook] confirm order=%s: %v", p.TxRef, err)
		return
	}
	if !changed {
		log.Printf("[webhook] duplicate confirmation for order=%s (status=%s)", o.ID, o.Status)
		return
	}
	log.Printf("[webhook] order=%s paid", o.ID)
}
