package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/billing"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/client/provisioner"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
	"github.com/labrinth-gg/labrinth/libs/go/config"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/notifications"
)

// maxBodyBytes bounds how much of the request we read before giving up,
// well above any real Stripe event payload.
const maxBodyBytes = 1 << 20

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.InitLogger(cfg.Stage)
	defer logger.Sync()
	logger.Info("starting webhook-receiver", zap.String("stage", cfg.Stage))

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("unable to parse DATABASE_URL", zap.Error(err))
	}
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("unable to create connection pool", zap.Error(err))
	}
	defer pool.Close()
	store := db.NewStore(pool)

	redisOpts, err := redis.ParseURL(cfg.CacheURL)
	if err != nil {
		logger.Fatal("invalid CACHE_URL", zap.Error(err))
	}
	c := cache.New(redis.NewClient(redisOpts), 10*time.Minute)

	payment := paymentproc.New(cfg.PaymentProcessorKey, cfg.PaymentProcessorWebhookSecret)
	tax := taxproc.New(cfg.TaxProcessorURL, cfg.TaxProcessorKey)
	prov := provisioner.New(cfg.ProvisionerURL, cfg.ProvisionerMasterKey)
	badges := billing.NewBadgeGranter(store)
	notifier := notifications.NewBuilder(store, c, nil)

	engine := billing.NewEngine(billing.NewTxStore(store), payment, tax, prov, badges, notifier, c)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/stripe", stripeWebhookHandler(engine, payment))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	logger.Info("webhook-receiver listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("webhook-receiver server failed", zap.Error(err))
	}
}

// stripeWebhookHandler verifies the signature, dispatches the event to
// the billing engine, and acks per spec §7: 5xx only for a Transient
// failure so Stripe retries, 2xx otherwise even when the event was
// semantically rejected.
func stripeWebhookHandler(engine *billing.Engine, payment *paymentproc.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sig := r.Header.Get("Stripe-Signature")
		event, err := payment.VerifyWebhook(body, sig)
		if err != nil {
			logger.Warn("webhook signature verification failed", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = engine.HandleWebhookEvent(r.Context(), event)
		status := apperr.WebhookAckStatus(err)
		if err != nil {
			logger.Warn("webhook handling failed", zap.Error(err), zap.String("event_type", string(event.Type)), zap.Int("ack_status", status))
		}
		w.WriteHeader(status)
	}
}
