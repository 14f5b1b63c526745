package main

import (
	"context"
	"log"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/config"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/notifications"
	"github.com/labrinth-gg/labrinth/libs/go/supervisor"
)

// indexInterval is the fallback poll period; the AMQP consumer (when
// configured) wakes the worker sooner, so this is a correctness
// backstop rather than the primary trigger.
const indexInterval = time.Minute

// batchSize bounds how many deliveries one Index pass claims.
const batchSize = 50

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
	logger.Info("starting dunning-processor", zap.String("stage", cfg.Stage))

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

	if cfg.ResendAPIKey == "" {
		logger.Fatal("RESEND_API_KEY is required")
	}
	fromEmail := os.Getenv("EMAIL_FROM_ADDRESS")
	if fromEmail == "" {
		fromEmail = "noreply@labrinth.gg"
	}
	fromName := os.Getenv("EMAIL_FROM_NAME")
	if fromName == "" {
		fromName = "Labrinth"
	}
	worker := notifications.NewEmailWorker(store, cfg.ResendAPIKey, fromEmail, fromName, emailTemplates())

	var queue *notifications.Queue
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Fatal("failed to connect to AMQP broker", zap.Error(err))
		}
		defer conn.Close()
		queue, err = notifications.NewQueue(conn)
		if err != nil {
			logger.Fatal("failed to set up delivery queue", zap.Error(err))
		}
	}

	if cfg.Stage == config.StageLocal {
		logger.Info("running a single email worker pass (local stage)")
		if err := worker.Index(ctx, batchSize); err != nil {
			logger.Fatal("email worker pass failed", zap.Error(err))
		}
		return
	}

	sup := supervisor.New()
	sup.Register(supervisor.Task{
		Name:     "email_worker_index",
		Interval: indexInterval,
		Run: func() {
			if err := worker.Index(ctx, batchSize); err != nil {
				logger.Warn("email worker pass failed", zap.Error(err))
			}
		},
	})
	sup.Start()
	defer sup.Stop()

	if queue != nil {
		go func() {
			if err := queue.Consume(ctx, worker, batchSize); err != nil {
				logger.Warn("delivery queue consumer stopped", zap.Error(err))
			}
		}()
	}

	waitForShutdown()
}
