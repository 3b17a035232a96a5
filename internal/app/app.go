// Package app opens the shared infrastructure used by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gloads/portal/config"
	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/events"
	"github.com/gloads/portal/internal/mailer"
	"github.com/gloads/portal/internal/metrics"
	"github.com/gloads/portal/internal/realtime"
	"github.com/gloads/portal/internal/worker"
	"github.com/gloads/portal/pkg/database"
	"github.com/gloads/portal/pkg/queue"
	"github.com/gloads/portal/pkg/redis"
	"github.com/gloads/portal/pkg/storage"
)

// Infra holds long-lived connections. S3 and NATS are nil when not configured.
type Infra struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	S3         *storage.S3
	NATS       *events.NATSBus
	Hub        *realtime.Hub
	Dispatcher *events.Dispatcher
	Queue      *queue.Queue
	Metrics    *metrics.Metrics
}

// Open connects Postgres, Redis, S3 and NATS and builds the realtime hub and event dispatcher.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	in := &Infra{Metrics: metrics.Registry(cfg.Metrics.Namespace)}

	if cfg.Database.RunMigrations {
		if err := database.Migrate(cfg.Database.DSN()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	in.Pool = pool

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	in.Redis = rdb

	if cfg.AWS.S3Enabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			VideosBucket:         cfg.AWS.VideosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
			PublicBaseURL:        cfg.AWS.PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			in.S3 = s3Client
		}
	} else {
		logger.Info("s3 not configured, video uploads disabled")
	}

	bus, err := events.ConnectNATS(cfg.NATS.URL, logger)
	if err != nil {
		logger.Warn("nats disabled", zap.Error(err))
	}
	in.NATS = bus

	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	in.Hub = realtime.NewHub(logger, pubsub, pubsub, in.Metrics)

	var sink events.Bus
	if in.NATS != nil {
		sink = in.NATS
	}
	in.Dispatcher = events.NewDispatcher(in.Hub, sink, cfg.NATS.SubjectPrefix, logger, in.Metrics)
	in.Queue = queue.NewQueue(rdb.Client, logger)
	return in, nil
}

// Ready pings Postgres and Redis.
func (in *Infra) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := in.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := in.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Processor builds the background job processor over this infrastructure.
func (in *Infra) Processor(cfg *config.Config, logger *zap.Logger) *worker.Processor {
	opts := worker.Options{
		Campaigns:     campaigns.NewRepository(in.Pool),
		ResetURLBase:  cfg.Email.ResetURLBase,
		MaxVideoBytes: cfg.Media.MaxVideoBytes(),
		Events:        in.Dispatcher,
		Metrics:       in.Metrics,
	}
	if in.S3 != nil {
		opts.Videos = in.S3
	}
	if cfg.Email.SMTPEnabled() {
		opts.Mail = mailer.NewSMTP(mailer.Config{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		})
	} else {
		logger.Info("smtp not configured, reset mails will be logged and dropped")
	}
	return worker.NewProcessor(in.Queue, opts, logger)
}

// Close releases every connection that was opened.
func (in *Infra) Close() {
	in.NATS.Close()
	if in.Redis != nil {
		_ = in.Redis.Close()
	}
	if in.Pool != nil {
		in.Pool.Close()
	}
}
