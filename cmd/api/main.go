package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/safar/gallery-store/internal/api"
	"github.com/safar/gallery-store/internal/auth"
	"github.com/safar/gallery-store/internal/cart"
	"github.com/safar/gallery-store/internal/checkout"
	"github.com/safar/gallery-store/internal/config"
	"github.com/safar/gallery-store/internal/database"
	"github.com/safar/gallery-store/internal/logging"
	"github.com/safar/gallery-store/internal/session"
	"go.uber.org/zap"
)

func main() {
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
	logger.Info("connected to database")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = client.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Fatal("connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
	}

	sessions := session.NewStore(client, cfg.Session.TTL)
	carts := cart.NewCart(client)
	authSvc := auth.NewService(db, sessions, carts, logger)
	checkoutSvc := checkout.NewService(db, carts, cfg.Checkout, logger)

	if cfg.Seed.Enabled {
		if err := authSvc.SeedDefaults(context.Background(), cfg.Seed); err != nil {
			logger.Fatal("seed default accounts", zap.Error(err))
		}
	}

	handler := api.NewHandler(db, authSvc, checkoutSvc, carts, cart.NewWishlist(client), logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
