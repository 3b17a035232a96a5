package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gloads/portal/config"
	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/pkg/database"
	"github.com/gloads/portal/pkg/logger"
	"github.com/gloads/portal/pkg/queue"
	"github.com/gloads/portal/pkg/redis"
)

type deadLetterReader interface {
	DeadLetters(ctx context.Context, n int64) ([]queue.Job, error)
}

// commandContext carries lazily opened dependencies shared by subcommands.
type commandContext struct {
	loadConfig   func() (*config.Config, error)
	newLogger    func(level string) *zap.Logger
	migrateUp    func(dsn string) error
	migrateDown  func(dsn string) error
	openAccounts func(ctx context.Context, cfg *config.Config, log *zap.Logger) (auth.Store, func(), error)
	openQueue    func(ctx context.Context, cfg *config.Config, log *zap.Logger) (deadLetterReader, func(), error)

	cfg *config.Config
}

func defaultCommandContext() *commandContext {
	return &commandContext{
		loadConfig:  config.Load,
		newLogger:   logger.New,
		migrateUp:   database.Migrate,
		migrateDown: database.Rollback,
		openAccounts: func(ctx context.Context, cfg *config.Config, log *zap.Logger) (auth.Store, func(), error) {
			pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), log)
			if err != nil {
				return nil, nil, err
			}
			return auth.NewRepository(pool), pool.Close, nil
		},
		openQueue: func(ctx context.Context, cfg *config.Config, log *zap.Logger) (deadLetterReader, func(), error) {
			rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
			if err != nil {
				return nil, nil, err
			}
			return queue.NewQueue(rdb.Client, log), func() { _ = rdb.Close() }, nil
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) logger() *zap.Logger {
	if c.cfg == nil {
		return c.newLogger("warn")
	}
	return c.newLogger(c.cfg.LogLevel)
}
