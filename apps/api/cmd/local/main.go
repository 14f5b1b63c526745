package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/apps/api/server"
	"github.com/labrinth-gg/labrinth/libs/go/authz"
	"github.com/labrinth-gg/labrinth/libs/go/billing"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/client/filehost"
	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/client/provisioner"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
	"github.com/labrinth-gg/labrinth/libs/go/config"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/middleware"
	"github.com/labrinth-gg/labrinth/libs/go/notifications"
	"github.com/labrinth-gg/labrinth/libs/go/projects"
	"github.com/labrinth-gg/labrinth/libs/go/sharedinstance"
	"github.com/labrinth-gg/labrinth/libs/go/teams"
)

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
	logger.Info("starting api", zap.String("stage", cfg.Stage))

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("unable to parse DATABASE_URL", zap.Error(err))
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
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

	if cfg.AuthJWKSURL == "" {
		logger.Fatal("AUTH_JWKS_URL is required")
	}
	authenticator, err := middleware.NewAuthenticator(cfg.AuthJWKSURL)
	if err != nil {
		logger.Fatal("unable to initialize authenticator", zap.Error(err))
	}

	kernel := authz.NewKernel(store)
	teamsEngine := teams.NewEngine(store, kernel, c)
	projectsReader := projects.NewReader(store, c)

	files := filehost.New(cfg.PublicCDNURL, cfg.FileHostKey)
	sharedInstanceService := sharedinstance.NewService(store, files)

	payment := paymentproc.New(cfg.PaymentProcessorKey, cfg.PaymentProcessorWebhookSecret)
	tax := taxproc.New(cfg.TaxProcessorURL, cfg.TaxProcessorKey)
	prov := provisioner.New(cfg.ProvisionerURL, cfg.ProvisionerMasterKey)
	badges := billing.NewBadgeGranter(store)
	notifier := notifications.NewBuilder(store, c, nil)
	billingEngine := billing.NewEngine(billing.NewTxStore(store), payment, tax, prov, badges, notifier, c)

	router := server.New(server.Services{
		Store:          store,
		Billing:        billingEngine,
		Teams:          teamsEngine,
		Projects:       projectsReader,
		SharedInstance: sharedInstanceService,
		Auth:           authenticator,
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("api listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
}
