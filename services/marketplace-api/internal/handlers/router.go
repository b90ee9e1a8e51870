package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/ratelimit"
	"github.com/kithly/marketplace/services/marketplace-api/internal/httpx"
	mw "github.com/kithly/marketplace/services/marketplace-api/internal/middlewares"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

type Deps struct {
	Tokens     mw.TokenVerifier
	Auth       *service.AuthSvc
	Shops      *service.ShopSvc
	Products   *service.ProductSvc
	Orders     *service.OrderSvc
	Receipts   *service.ReceiptSvc
	Webhook    *httpx.WebhookServer
	Limiter    ratelimit.Limiter // nil disables rate limiting
	CORSOrigin string
}

func init() {
	// request bodies are explicit schemas; unknown fields are an error
	binding.EnableDecoderDisallowUnknownFields = true
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if d.CORSOrigin != "" {
		r.Use(mw.CORS(d.CORSOrigin))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	ah := NewAuthHandler(d.Auth)
	a := r.Group("/auth")
	{
		a.POST("/signup", ah.Signup)
		a.POST("/login", mw.RateLimit(d.Limiter, "login"), ah.Login)
		a.POST("/google", mw.RateLimit(d.Limiter, "google"), ah.Google)
		a.POST("/request-reset", mw.RateLimit(d.Limiter, "request-reset"), ah.RequestReset)
		a.POST("/perform-reset", mw.RateLimit(d.Limiter, "perform-reset"), ah.PerformReset)
	}

	authed := mw.Authenticate(d.Tokens)
	owner := mw.RequireRole(auth.RoleShopOwner)
	buyer := mw.RequireRole(auth.RoleBuyer)

	sh := NewShopHandler(d.Shops)
	r.GET("/shops", sh.List)
	r.GET("/shops/:id/products", sh.Products)
	r.POST("/shops", authed, owner, sh.Create)
	r.GET("/shops/mine", authed, owner, sh.Mine)
	r.POST("/shops/settings", authed, owner, sh.Settings)

	ph := NewProductHandler(d.Products)
	r.POST("/products", authed, owner, ph.Create)
	r.PATCH("/products/:id", authed, owner, ph.Update)

	oh := NewOrderHandler(d.Orders, d.Receipts)
	r.POST("/orders", authed, buyer, oh.Checkout)
	r.GET("/orders", authed, oh.List)
	r.GET("/orders/status", mw.OptionalAuth(d.Tokens), oh.Status)
	r.POST("/orders/redeem", authed, owner, oh.Redeem)
	r.GET("/orders/receipt", authed, oh.Receipt)

	r.POST("/payments/webhook", gin.WrapF(d.Webhook.Handler))
	return r
}
