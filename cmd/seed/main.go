package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pawmarket/internal/config"
	"pawmarket/internal/db"
	"pawmarket/internal/logging"
	addressrepo "pawmarket/internal/repository/address"
	productrepo "pawmarket/internal/repository/product"
	shippingrepo "pawmarket/internal/repository/shipping"
	tokenrepo "pawmarket/internal/repository/token"
	"pawmarket/internal/seed"
	"pawmarket/internal/service/identity"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Env, "seed")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN, db.PoolOptions{})
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	res, err := seed.Apply(ctx, seed.Deps{
		Products:  productrepo.NewPostgres(pool, logger),
		Addresses: addressrepo.NewPostgres(pool, logger),
		Rates:     shippingrepo.NewPostgres(pool),
		Tokens:    identity.New(tokenrepo.NewPostgres(pool)),
	})
	if err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}

	logger.Info("seed applied", zap.String("buyer_id", res.BuyerID))
	fmt.Printf("buyer=%s address=%s shippingRate=%s\ntoken=%s\n", res.BuyerID, res.AddressID, res.RateID, res.Token)
}
