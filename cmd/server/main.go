// Package main runs the GloAds advertiser portal HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gloads/portal/config"
	"github.com/gloads/portal/internal/app"
	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/payments"
	"github.com/gloads/portal/internal/server"
	"github.com/gloads/portal/internal/wallet"
	"github.com/gloads/portal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	ctx := context.Background()
	infra, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}
	defer infra.Close()

	accounts := auth.NewRepository(infra.Pool)
	if cfg.Admin.Handle != "" && cfg.Admin.Password != "" {
		if _, err := auth.EnsureAdmin(ctx, accounts, cfg.Admin.Handle, cfg.Admin.Password, cfg.Admin.Email, log); err != nil {
			log.Fatal("seed admin", zap.Error(err))
		}
	}

	deps := server.Deps{
		Accounts:      accounts,
		Payments:      payments.NewRepository(infra.Pool),
		Campaigns:     campaigns.NewRepository(infra.Pool),
		Wallets:       wallet.NewRepository(infra.Pool),
		JWT:           auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Resets:        auth.NewResetTokens(infra.Redis.Client, time.Duration(cfg.Email.ResetTokenTTL)*time.Minute),
		Jobs:          infra.Queue,
		Hub:           infra.Hub,
		Notifier:      infra.Dispatcher,
		Metrics:       infra.Metrics,
		UPI:           payments.UPI{ID: cfg.UPI.ID, PayeeName: cfg.UPI.PayeeName},
		MaxVideoBytes: cfg.Media.MaxVideoBytes(),
		CORSOrigins:   cfg.Server.CORSAllowedOrigins,
		Ready:         infra.Ready,
		Logger:        log,
	}
	if infra.S3 != nil {
		deps.Videos = infra.S3
	}
	router := server.NewRouter(deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if cfg.Server.RunWorker {
		go func() {
			defer close(workerDone)
			infra.Processor(cfg, log).Run(workerCtx)
		}()
		log.Info("in-process worker started")
	} else {
		close(workerDone)
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn("worker did not stop in time")
	}
	log.Info("server stopped")
}
