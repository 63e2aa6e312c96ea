package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/gallery-store/internal/config"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/logging"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down] [dir]")
	}
	direction := os.Args[1]
	migrationDir := "migrations"
	if len(os.Args) > 2 {
		migrationDir = os.Args[2]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.Migrate(context.Background(), db, migrationDir, direction)
	if err != nil {
		logger.Fatal("run migrations", zap.Error(err), zap.String("direction", direction))
	}

	for _, name := range applied {
		logger.Info("applied migration", zap.String("file", name))
	}
	logger.Info("migrations complete", zap.Int("count", len(applied)), zap.String("direction", direction))
}
