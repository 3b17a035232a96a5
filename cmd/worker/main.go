// Package main runs the background job worker (video imports to S3, password reset mails).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gloads/portal/config"
	"github.com/gloads/portal/internal/app"
	"github.com/gloads/portal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	// the API server owns schema changes
	cfg.Database.RunMigrations = false

	infra, err := app.Open(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}
	defer infra.Close()

	processor := infra.Processor(cfg, log)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn("worker did not stop in time")
	}
	log.Info("worker stopped")
}
