package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/config"
	"github.com/usashopbox/storefront/internal/db"
	"github.com/usashopbox/storefront/internal/logger"
	"github.com/usashopbox/storefront/internal/metrics"
	"github.com/usashopbox/storefront/internal/migrations"
	"github.com/usashopbox/storefront/internal/orders"
	"github.com/usashopbox/storefront/internal/pricing"
	"github.com/usashopbox/storefront/internal/seed"
	"github.com/usashopbox/storefront/internal/settings"
)

const redisReadyTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	defer func() { _ = log.Sync() }()
	for _, warning := range cfg.Warnings() {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database, log.Named("migrations")); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}

	stats, err := seed.Run(ctx, database, seed.Config{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		SampleCatalog: cfg.IsDev(),
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	log.Info("seed finished", zap.Int("inserts", stats.Inserts))

	recorder := metrics.New()
	engine := pricing.NewEngine(pricing.LogObserver(log.Named("pricing")), recorder)

	var store settings.Store = settings.NewSQLStore(database, log.Named("settings"))
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()

		if err := settings.Ping(ctx, client, redisReadyTimeout, log.Named("redis")); err != nil {
			log.Warn("settings cache disabled", zap.Error(err))
		} else {
			store = settings.NewCachedStore(store, client, cfg.SettingsTTL, log.Named("settings_cache"), settings.WithRecorder(recorder))
			log.Info("settings cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.SettingsTTL))
		}
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		log.Warn("using a random session secret; admin sessions end on restart")
	}

	products := catalog.NewRepository(database)
	srv := &server{
		logger:   log,
		db:       database,
		auth:     newAuthService(database, secret, !cfg.IsDev()),
		settings: store,
		engine:   engine,
		products: products,
		catalog:  catalog.NewService(products, store, engine),
		orders:   orders.NewService(database, products, store, engine, recorder, log.Named("orders")),
		metrics:  recorder,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.Env))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
