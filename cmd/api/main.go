package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pawmarket/internal/config"
	"pawmarket/internal/db"
	"pawmarket/internal/events"
	"pawmarket/internal/gateway"
	"pawmarket/internal/httpserver"
	"pawmarket/internal/idempotency"
	"pawmarket/internal/logging"
	"pawmarket/internal/metrics"
	"pawmarket/internal/promo"
	addressrepo "pawmarket/internal/repository/address"
	cartrepo "pawmarket/internal/repository/cart"
	orderrepo "pawmarket/internal/repository/order"
	productrepo "pawmarket/internal/repository/product"
	shippingrepo "pawmarket/internal/repository/shipping"
	tokenrepo "pawmarket/internal/repository/token"
	cartsvc "pawmarket/internal/service/cart"
	"pawmarket/internal/service/checkout"
	"pawmarket/internal/service/identity"
	"pawmarket/internal/service/payment"
	"pawmarket/internal/service/restore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Env, "api")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DB.DSN, db.PoolOptions{MaxConns: cfg.DB.MaxConns})
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	m := metrics.New()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	}

	var dedupe idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.DedupeTTL)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("connect to redis", zap.Error(err))
		}
		dedupe = idempotency.NewRedisStore(rdb, cfg.Redis.DedupeTTL)
	}

	productRepo := productrepo.NewPostgres(dbpool, logger)
	cartRepo := cartrepo.NewPostgres(dbpool, cfg.DB.TxMaxAttempts, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, cfg.DB.TxMaxAttempts, logger)

	cartService := cartsvc.New(cartRepo, productRepo, logger)
	restoreService := restore.New(cartRepo, orderRepo, productRepo, logger)

	paymentDeps := payment.Deps{
		Orders:    orderRepo,
		Carts:     cartService,
		Restorer:  restoreService,
		Signer:    gateway.NewSigner(cfg.Gateway.HMACSecret),
		Dedupe:    dedupe,
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
	}
	if cfg.Gateway.SecretKey != "" {
		paymentDeps.Gateway = gateway.NewClient(gateway.Config{
			BaseURL:        cfg.Gateway.BaseURL,
			SecretKey:      cfg.Gateway.SecretKey,
			PublicKey:      cfg.Gateway.PublicKey,
			IntegrationIDs: cfg.Gateway.IntegrationIDs,
			Timeout:        cfg.Gateway.Timeout,
		}, logger)
	} else {
		logger.Warn("gateway secret key not set, card payments disabled")
	}
	paymentService := payment.New(payment.Config{
		Currency:        cfg.Gateway.Currency,
		NotificationURL: cfg.Gateway.NotificationURL,
		RedirectionURL:  cfg.Gateway.RedirectionURL,
	}, paymentDeps)

	checkoutDeps := checkout.Deps{
		Carts:     cartRepo,
		Clearer:   cartService,
		Products:  productRepo,
		Addresses: addressrepo.NewPostgres(dbpool, logger),
		Rates:     shippingrepo.NewPostgres(dbpool),
		Orders:    orderRepo,
		Payments:  paymentService,
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
	}
	if cfg.Promo.BaseURL != "" {
		checkoutDeps.Promo = promo.NewClient(cfg.Promo.BaseURL, cfg.Promo.Timeout)
	}
	checkoutService := checkout.New(checkoutDeps)

	srv, err := httpserver.New(cfg.HTTP.Addr, logger, dbpool, httpserver.Deps{
		Auth:          identity.New(tokenrepo.NewPostgres(dbpool)),
		Carts:         cartService,
		Checkout:      checkoutService,
		Payments:      paymentService,
		Orders:        orderRepo,
		Metrics:       m,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		CheckoutRate:  cfg.HTTP.CheckoutRate,
		CheckoutBurst: cfg.HTTP.CheckoutBurst,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}
