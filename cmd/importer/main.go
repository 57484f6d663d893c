package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"pawmarket/internal/config"
	"pawmarket/internal/db"
	"pawmarket/internal/importer"
	"pawmarket/internal/logging"
	"pawmarket/internal/repository/product"
)

func main() {
	var (
		filePath   string
		supplierID string
	)
	flag.StringVar(&filePath, "file", "", "Path to the supplier catalog CSV")
	flag.StringVar(&supplierID, "supplier", "", "Supplier for rows without a supplierId column value")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Env, "importer")
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

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, product.NewPostgres(pool, logger), supplierID, logger)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatal("import failed", zap.Int("imported", count), zap.Error(err))
	}

	fmt.Printf("Imported %d products in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}
