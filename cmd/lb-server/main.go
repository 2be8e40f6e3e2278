package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ladybug/internal/events"
	"ladybug/internal/server"
)

func main() {
	addr := envStr("LB_ADDR", ":8080")
	dbPath := envStr("LB_DB_PATH", "./data/ladybug.db")
	natsURL := os.Getenv("LB_NATS_URL")
	interval := envDuration("LB_BILLING_INTERVAL", time.Hour)
	sessionTTL := envDuration("LB_SESSION_TTL", 30*24*time.Hour)
	startingCoins := envInt64("LB_STARTING_COINS", 0)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// Ensure DB directory exists
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0700); err != nil {
			logger.Fatal("create db dir failed", zap.String("dir", dbDir), zap.Error(err))
		}
	}

	db, err := server.OpenDB(dbPath)
	if err != nil {
		logger.Fatal("open db failed", zap.String("path", dbPath), zap.Error(err))
	}
	store := server.NewSQLiteStore(db)
	defer store.Close()

	var pub *events.Publisher
	if natsURL != "" {
		pub, err = events.NewPublisher(natsURL, logger)
		if err != nil {
			// The service is useful without an event bus; run degraded.
			logger.Warn("nats connect failed, events disabled", zap.String("url", natsURL), zap.Error(err))
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	engine := server.NewEngine(store, logger, pub)
	auth := server.NewAuth(store, logger, sessionTTL, startingCoins)

	if err := auth.EnsureAdmin(context.Background(), os.Getenv("LB_ADMIN_USER"), os.Getenv("LB_ADMIN_PASS")); err != nil {
		logger.Fatal("bootstrap admin failed", zap.Error(err))
	}

	billing := server.NewBillingScheduler(engine, store, logger, interval)
	billing.Start()

	api := &server.API{
		Store:  store,
		Engine: engine,
		Auth:   auth,
		Log:    logger,
	}
	mux := api.Routes()
	server.RegisterMetrics(mux, store, nil)
	mux.Handle("/", http.FileServer(http.Dir("./web/app")))

	httpServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("lb-server listening", zap.String("addr", addr), zap.String("db", dbPath))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown initiated")

	billing.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("bad %s value %q: %v", key, v, err)
	}
	return d
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("bad %s value %q: %v", key, v, err)
	}
	return n
}
