package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herderhub/herderhub-api/internal/api"
	"github.com/herderhub/herderhub-api/internal/auth"
	"github.com/herderhub/herderhub-api/internal/config"
	"github.com/herderhub/herderhub-api/internal/logger"
	"github.com/herderhub/herderhub-api/internal/metrics"
	"github.com/herderhub/herderhub-api/internal/mpesa"
	"github.com/herderhub/herderhub-api/internal/services"
	"github.com/herderhub/herderhub-api/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer repos.Close()

	metrics.Init()

	wp := worker.NewPool(4)
	defer wp.Stop()

	baseURL := cfg.Mpesa.BaseURL
	if baseURL == "" {
		baseURL = mpesa.BaseURLFor(cfg.Mpesa.Env)
	}
	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:        baseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL(),
		Timeout:        cfg.Mpesa.Timeout,
	}, mpesa.WithLogger(log))
	if cfg.Mpesa.ConsumerKey == "" || cfg.Mpesa.Passkey == "" {
		log.Warn("mpesa credentials not set; stk pushes will fail", "mpesa_env", cfg.Mpesa.Env)
	}

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	auditor := services.NewAuditor(repos.AuditLogs, wp, log)

	r := api.NewRouter(api.RouterDeps{
		Cfg:        cfg,
		Tokens:     tm,
		Users:      services.NewUserService(repos.Users, tm),
		Payments:   services.NewPaymentService(repos.Transactions, repos.Listings, gateway, auditor, cfg.ServiceFee, log),
		Reconciler: services.NewReconciler(repos.Transactions, repos.Listings, auditor, cfg.FallbackMatchWindow, log),
		Txns:       services.NewTransactionService(repos.Transactions, repos.Listings, auditor, log),
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver, "mpesa_env", cfg.Mpesa.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
