package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/config"
	"github.com/kithly/marketplace/pkg/db"
	"github.com/kithly/marketplace/pkg/mail"
	"github.com/kithly/marketplace/pkg/mq"
	"github.com/kithly/marketplace/pkg/obs"
	"github.com/kithly/marketplace/pkg/ratelimit"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/handlers"
	"github.com/kithly/marketplace/services/marketplace-api/internal/httpx"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func openLimiter(cfg config.App) (ratelimit.Limiter, func()) {
	noop := func() {}
	if cfg.RedisURL == "" {
		return ratelimit.NewLocal(cfg.RateLimitWindow, cfg.RateLimitMax), noop
	}
	l, err := ratelimit.NewRedis(cfg.RedisURL, cfg.RateLimitWindow, cfg.RateLimitMax)
	if err != nil {
		log.Printf("[api] redis limiter unavailable, using in-process: %v", err)
		return ratelimit.NewLocal(cfg.RateLimitWindow, cfg.RateLimitMax), noop
	}
	return l, func() { _ = l.Close() }
}

func main() {
	_ = godotenv.Load(".env")
	cfg := must(config.Load())

	shutdownTracer := must(obs.InitTracer("marketplace-api", cfg.OTelEndpoint, cfg.ServiceEnv))
	defer func() { _ = shutdownTracer(context.Background()) }()

	gdb := must(db.Open(cfg.DatabaseURL))
	must(0, repository.Migrate(gdb))

	pub := must(mq.Open(cfg.EventBus, cfg.RabbitURL, cfg.EventExchange, cfg.NATSURL))
	defer pub.Close()
	emitter := events.NewEmitter(pub)

	mailer := must(mail.Open(cfg.MailProvider, cfg.SendGridAPIKey, cfg.ResendAPIKey, cfg.MailFrom))
	tokens := must(auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL))

	users := repository.NewUserRepo(gdb)
	shops := repository.NewShopRepo(gdb)
	products := repository.NewProductRepo(gdb)
	orders := repository.NewOrderRepo(gdb)

	var google auth.ExternalVerifier
	if cfg.GoogleClientID != "" {
		google = auth.NewGoogleVerifier(cfg.GoogleClientID)
	}
	orderSvc := service.NewOrderSvc(orders, shops, products, users, emitter, cfg.PlatformFeeBPS)
	limiter, closeLimiter := openLimiter(cfg)
	defer closeLimiter()

	r := handlers.NewRouter(handlers.Deps{
		Tokens:     tokens,
		Auth:       service.NewAuthSvc(users, tokens, google, mailer, service.AuthConfig{ResetURL: cfg.ResetURL, ResetTTL: cfg.ResetTokenTTL}),
		Shops:      service.NewShopSvc(shops, products),
		Products:   service.NewProductSvc(shops, products),
		Orders:     orderSvc,
		Receipts:   service.NewReceiptSvc(orders, shops, users, cfg.Currency),
		Webhook:    httpx.NewWebhookServer(orderSvc, cfg.WebhookSecretHash),
		Limiter:    limiter,
		CORSOrigin: cfg.CORSOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("[api] listening on", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("[api] stopped")
}
