package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/billing"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/client/provisioner"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
	"github.com/labrinth-gg/labrinth/libs/go/config"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/notifications"

	"github.com/redis/go-redis/v9"
)

// reconcileInterval is how often the reconciler's three loops run,
// between Lambda-schedule invocations in the teacher's deployment.
const reconcileInterval = 5 * time.Minute

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
	logger.Info("starting subscription-processor", zap.String("stage", cfg.Stage))

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
	reconciler := billing.NewReconciler(engine, reconcileInterval)

	if cfg.Stage == config.StageLocal {
		logger.Info("running a single reconciliation tick (local stage)")
		reconciler.Tick(ctx)
		return
	}

	reconciler.Start()
	defer reconciler.Stop()

	waitForShutdown()
}
