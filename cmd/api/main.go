package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/adapter/postgres"
	redisadapter "github.com/user/imo-scraper/internal/adapter/redis"
	"github.com/user/imo-scraper/internal/delivery/http/handler"
	"github.com/user/imo-scraper/internal/delivery/http/router"
	"github.com/user/imo-scraper/pkg/config"
	"github.com/user/imo-scraper/pkg/logger"
	"github.com/user/imo-scraper/pkg/metrics"
)

// api serves run history from the ledger tables while scrapes run elsewhere.
func main() {
	fs := pflag.NewFlagSet("api", pflag.ExitOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	fs.String("metrics-addr", "", "listen address")
	fs.String("log-level", "", "debug, info, warn or error")
	_ = fs.Parse(os.Args[1:])

	// --- Configuration ---
	cfg, err := config.Load(*configFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":8080"
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Database Connections ---
	pool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()
	checks := map[string]handler.PingFunc{"postgres": pool.Ping}

	if cfg.RedisAddr != "" {
		rdb, err := redisadapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("unable to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// --- HTTP Server ---
	h := handler.NewHandler(postgres.NewRunRepo(pool), checks, log)
	srv := router.NewServer(cfg.MetricsAddr, router.New(h, prometheus.DefaultGatherer, m, log), log)
	srv.Start()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}
