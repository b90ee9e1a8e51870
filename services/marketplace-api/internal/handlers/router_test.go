package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/ratelimit"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/handlers"
	"github.com/kithly/marketplace/services/marketplace-api/internal/httpx"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
	"github.com/kithly/marketplace/services/marketplace-api/internal/testutil"
)

const webhookSecret = "whsec-test"

type app struct {
	t      *testing.T
	store  *testutil.Store
	tokens *auth.TokenService
	router *gin.Engine
}

func newApp(t *testing.T, limiter ratelimit.Limiter) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := testutil.NewStore(t)
	tokens, err := auth.NewTokenService("test-secret", auth.DefaultTokenTTL)
	require.NoError(t, err)

	emitter := events.NewEmitter(&testutil.Publisher{})
	orders := service.NewOrderSvc(s.Orders, s.Shops, s.Products, s.Users, emitter, 1000)
	r := handlers.NewRouter(handlers.Deps{
		Tokens:   tokens,
		Auth:     service.NewAuthSvc(s.Users, tokens, nil, testutil.NewMailer(), service.AuthConfig{}),
		Shops:    service.NewShopSvc(s.Shops, s.Products),
		Products: service.NewProductSvc(s.Shops, s.Products),
		Orders:   orders,
		Receipts: service.NewReceiptSvc(s.Orders, s.Shops, s.Users, "NGN"),
		Webhook:  httpx.NewWebhookServer(orders, webhookSecret),
		Limiter:  limiter,
	})
	return &app{t: t, store: s, tokens: tokens, router: r}
}

func (a *app) do(method, path, token string, body any, header ...string) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (a *app) tokenFor(u *domain.User) string {
	a.t.Helper()
	tok, err := a.tokens.Issue(u.Identity())
	require.NoError(a.t, err)
	return tok
}

func TestBuyerJourney(t *testing.T) {
	a := newApp(t, nil)
	owner := a.store.Owner(t, "owner@x.com")
	openShop := a.store.Shop(t, owner, "Open Shop", true)
	a.store.Shop(t, a.store.Owner(t, "closed@x.com"), "Closed Shop", false)

	code, body := a.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "secret1", "first_name": "A", "role": "buyer",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "a@x.com", body["email"])
	assert.Equal(t, "buyer", body["role"])
	assert.NotEmpty(t, body["id"])

	code, body = a.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "secret1", "first_name": "A", "role": "buyer",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, body = a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, code, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	id, ok := a.tokens.Verify(token)
	require.True(t, ok)
	assert.Equal(t, auth.RoleBuyer, id.Role)

	code, body = a.do(http.MethodGet, "/shops", "", nil)
	require.Equal(t, http.StatusOK, code)
	shops := body["shops"].([]any)
	require.Len(t, shops, 1)
	assert.Equal(t, openShop.ID, shops[0].(map[string]any)["id"])

	buyer, err := a.store.Users.ByEmail(testCtx(), "a@x.com")
	require.NoError(t, err)
	order := a.store.Order(t, openShop, buyer, 1000, 100)

	payload := `{"status":"successful","tx_ref":"` + order.ID + `","amount":1000}`
	code, _ = a.do(http.MethodPost, "/payments/webhook", "", payload, "verif-hash", webhookSecret)
	require.Equal(t, http.StatusOK, code)

	got := a.store.Reload(t, order.ID)
	assert.Equal(t, domain.OrderPaid, got.Status)
	require.NotNil(t, got.PickupCode)
	assert.Regexp(t, `^KLY[A-Z0-9]{7}$`, *got.PickupCode)

	// the buyer sees the code, an anonymous caller does not
	code, body = a.do(http.MethodGet, "/orders/status?orderId="+order.ID, token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, *got.PickupCode, body["pickup_code"])
	assert.EqualValues(t, 1000, body["total_price_in_cents"])

	code, body = a.do(http.MethodGet, "/orders/status?orderId="+order.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", body["status"])
	assert.Equal(t, true, body["has_pickup_code"])
	assert.NotContains(t, body, "pickup_code")
	assert.NotContains(t, body, "total_price_in_cents")
}

func TestWebhookSignatureOverHTTP(t *testing.T) {
	a := newApp(t, nil)
	shop := a.store.Shop(t, a.store.Owner(t, "owner@x.com"), "Shop", true)
	order := a.store.Order(t, shop, a.store.Buyer(t, "b@x.com"), 1000, 100)

	payload := `{"status":"successful","tx_ref":"` + order.ID + `","amount":1000}`
	code, body := a.do(http.MethodPost, "/payments/webhook", "", payload, "verif-hash", "nope")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid signature", body["error"])
	assert.Equal(t, domain.OrderCreated, a.store.Reload(t, order.ID).Status)
}

func TestCheckoutRedeemAndReceipt(t *testing.T) {
	a := newApp(t, nil)
	owner := a.store.Owner(t, "owner@x.com")
	buyer := a.store.Buyer(t, "b@x.com")
	shop := a.store.Shop(t, owner, "Shop", true)
	ownerTok, buyerTok := a.tokenFor(owner), a.tokenFor(buyer)

	code, body := a.do(http.MethodPost, "/products", ownerTok, map[string]any{
		"shop_id": shop.ID, "name": "Jollof", "price_in_cents": 1500, "stock": 4,
	})
	require.Equal(t, http.StatusCreated, code, body)
	productID := body["id"].(string)

	code, _ = a.do(http.MethodPost, "/orders", ownerTok, map[string]any{
		"shop_id": shop.ID, "items": []map[string]any{{"product_id": productID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(http.MethodPost, "/orders", buyerTok, map[string]any{
		"shop_id": shop.ID, "items": []map[string]any{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, code, body)
	orderID := body["id"].(string)
	assert.EqualValues(t, 3000, body["total_price_in_cents"])
	assert.EqualValues(t, 300, body["kithly_fee_in_cents"])
	assert.Equal(t, "created", body["status"])

	payload := `{"status":"successful","tx_ref":"` + orderID + `","amount":3000}`
	code, _ = a.do(http.MethodPost, "/payments/webhook", "", payload, "verif-hash", webhookSecret)
	require.Equal(t, http.StatusOK, code)
	pickup := *a.store.Reload(t, orderID).PickupCode

	code, _ = a.do(http.MethodPost, "/orders/redeem", ownerTok, map[string]string{"order_id": orderID, "pickup_code": "KLYWRONG00"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = a.do(http.MethodPost, "/orders/redeem", ownerTok, map[string]string{"order_id": orderID, "pickup_code": pickup})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", body["status"])

	code, body = a.do(http.MethodGet, "/orders/receipt?orderId="+orderID, buyerTok, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "NGN 30.00", body["subtotal"])
	assert.Equal(t, "NGN 27.00", body["net"])

	stranger := a.tokenFor(a.store.Buyer(t, "s@x.com"))
	code, _ = a.do(http.MethodGet, "/orders/receipt?orderId="+orderID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodGet, "/orders/receipt?orderId="+orderID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = a.do(http.MethodGet, "/orders", ownerTok, nil)
	require.Equal(t, http.StatusOK, code)
	orders := body["orders"].([]any)
	require.Len(t, orders, 1)
	assert.NotContains(t, orders[0].(map[string]any), "pickup_code")
}

func TestProductOwnershipOverHTTP(t *testing.T) {
	a := newApp(t, nil)
	owner := a.store.Owner(t, "owner@x.com")
	intruder := a.store.Owner(t, "intruder@x.com")
	shop := a.store.Shop(t, owner, "Mine", true)
	a.store.Shop(t, intruder, "Theirs", true)

	code, _ := a.do(http.MethodPost, "/products", a.tokenFor(intruder), map[string]any{
		"shop_id": shop.ID, "name": "Fake", "price_in_cents": 1,
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := a.do(http.MethodGet, "/shops/"+shop.ID+"/products", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["products"])

	code, _ = a.do(http.MethodPost, "/products", a.tokenFor(a.store.Buyer(t, "b@x.com")), map[string]any{
		"shop_id": shop.ID, "name": "Fake", "price_in_cents": 1,
	})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRequestValidation(t *testing.T) {
	a := newApp(t, nil)

	code, _ := a.do(http.MethodPost, "/auth/login", "", `{"email":"a@x.com","password":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, code, "unknown fields are rejected")

	code, _ = a.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "secret1", "first_name": "A", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodGet, "/orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestResetDoesNotEnumerate(t *testing.T) {
	a := newApp(t, nil)
	a.store.Buyer(t, "a@x.com")

	code1, body1 := a.do(http.MethodPost, "/auth/request-reset", "", map[string]string{"email": "a@x.com"})
	code2, body2 := a.do(http.MethodPost, "/auth/request-reset", "", map[string]string{"email": "ghost@x.com"})
	assert.Equal(t, http.StatusOK, code1)
	assert.Equal(t, code1, code2)
	assert.Equal(t, body1, body2)
	assert.Equal(t, service.ResetRequestedMessage, body2["message"])

	code, _ := a.do(http.MethodPost, "/auth/perform-reset", "", map[string]string{"token": "bogus", "password": "newsecret"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginIsRateLimited(t *testing.T) {
	a := newApp(t, ratelimit.NewLocal(time.Minute, 2))
	creds := map[string]string{"email": "a@x.com", "password": "secret1"}
	for i := 0; i < 2; i++ {
		code, _ := a.do(http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	code, body := a.do(http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.NotEmpty(t, body["error"])

	// signup is not throttled
	code, _ = a.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "secret1", "first_name": "A", "role": "buyer",
	})
	assert.Equal(t, http.StatusCreated, code)
}

func testCtx() context.Context { return context.Background() }
