package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"pawmarket/internal/config"
	"pawmarket/internal/db"
	"pawmarket/internal/logging"
	"pawmarket/internal/migrate"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Env, "migrate")
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

	if *down {
		if err := migrate.Down(ctx, pool); err != nil {
			logger.Fatal("roll back migrations", zap.Error(err))
		}
		logger.Info("migrations rolled back")
		return
	}

	version, err := migrate.Apply(ctx, pool)
	if err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	logger.Info("migrations applied", zap.Uint("version", version))
}
