package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pawmarket/internal/config"
	"pawmarket/internal/db"
	"pawmarket/internal/events"
	"pawmarket/internal/logging"
	"pawmarket/internal/metrics"
	cartrepo "pawmarket/internal/repository/cart"
	orderrepo "pawmarket/internal/repository/order"
	productrepo "pawmarket/internal/repository/product"
	"pawmarket/internal/service/cleanup"
	"pawmarket/internal/service/restore"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address while scheduled")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Env, "cleanup")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN, db.PoolOptions{MaxConns: cfg.DB.MaxConns})
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	}

	m := metrics.New()
	orders := orderrepo.NewPostgres(pool, cfg.DB.TxMaxAttempts, logger)
	carts := cartrepo.NewPostgres(pool, cfg.DB.TxMaxAttempts, logger)
	products := productrepo.NewPostgres(pool, logger)
	job := cleanup.New(orders, restore.New(carts, orders, products, logger), publisher, m, logger, cleanup.Options{
		OlderThan:  cfg.Cleanup.OlderThan,
		MaxDeletes: cfg.Cleanup.MaxDeletes,
		PageSize:   cfg.Cleanup.PageSize,
	})

	if *once {
		if _, err := job.Run(ctx); err != nil {
			logger.Fatal("cleanup run", zap.Error(err))
		}
		return
	}

	loc, err := time.LoadLocation(cfg.Cleanup.Timezone)
	if err != nil {
		logger.Fatal("load timezone", zap.String("timezone", cfg.Cleanup.Timezone), zap.Error(err))
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.Cleanup.Schedule, func() {
		if _, err := job.Run(ctx); err != nil {
			logger.Error("cleanup run", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("schedule cleanup", zap.String("schedule", cfg.Cleanup.Schedule), zap.Error(err))
	}

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	c.Start()
	logger.Info("cleanup scheduled",
		zap.String("schedule", cfg.Cleanup.Schedule),
		zap.String("timezone", loc.String()),
		zap.Duration("older_than", cfg.Cleanup.OlderThan),
		zap.Int("max_deletes", cfg.Cleanup.MaxDeletes))

	<-ctx.Done()
	logger.Info("stopping scheduler")
	<-c.Stop().Done()
}
