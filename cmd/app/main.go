package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-flows/internal/config"
	"payment-flows/internal/domain/ports/adapter"
	gwadapters "payment-flows/internal/infra/adapters/gateway"
	"payment-flows/internal/infra/adapters/refdoc"
	pg "payment-flows/internal/infra/db/postgres"
	"payment-flows/internal/infra/logging"
	"payment-flows/internal/infra/metrics"
	"payment-flows/internal/infra/notify"
	red "payment-flows/internal/infra/redis"
	"payment-flows/internal/infra/sched"
	"payment-flows/internal/infra/web"
	"payment-flows/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop gateway)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	recordRepo := pg.NewRecordRepo(pool)
	mandateRepo := pg.NewMandateRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Gateways ----
	registry := gwadapters.NewRegistry()
	if cfg.Gateways.Payzen.ShopID != "" {
		payzen, err := gwadapters.NewPayzenGateway("payzen", cfg.Gateways.Payzen, mandateRepo)
		if err != nil {
			logger.Fatal().Err(err).Msg("payzen gateway")
		}
		registry.Register("payzen", payzen)
		logger.Info().Str("shop_id", cfg.Gateways.Payzen.ShopID).Msg("payzen gateway registered")
	}
	if cfg.Gateways.Noop || cfg.Runtime.Dev {
		registry.Register("noop", gwadapters.NewNoopGateway("noop", "noop-secret"))
		logger.Info().Msg("noop gateway registered")
	}

	// ---- Reference documents ----
	// Hook implementations register themselves here per doc type; unknown
	// types fall back to no-op hooks.
	refdocs := refdoc.NewRegistry()

	// ---- Ops notifications ----
	var notifier adapter.OpsNotifier = adapter.NoopNotifier{}
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			notifier = tg
		}
	}

	// ---- Flow controller ----
	flowUC := usecase.NewFlowUseCase(recordRepo, mandateRepo, registry, refdocs, locker, tm, metrics.FlowRecorder{}, usecase.FlowConfig{
		BaseURL:  cfg.Server.BaseURL,
		LockTTL:  cfg.Flow.LockTTL,
		LockWait: cfg.Flow.LockWait,
	}, logger)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.SecureCookie, cfg.Auth.CookieDomain, cfg.Auth.SessionTTL)
	server := web.NewServer(flowUC, recordRepo, auth, notifier, cfg.Auth.LoginSecret, logger)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Workers ----
	reconciler := sched.NewRecordReconciler(flowUC, recordRepo, registry, notifier,
		cfg.Sched.ReconcileInterval, cfg.Sched.ReconcileAfter, logger)
	go reconciler.Start(ctx)

	purger := sched.NewRecordPurger(recordRepo, cfg.Sched.PurgeInterval, cfg.Sched.RetentionDays, logger)
	go purger.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
