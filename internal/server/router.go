// Package server wires the HTTP routes of the advertiser portal.
package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/events"
	"github.com/gloads/portal/internal/media"
	"github.com/gloads/portal/internal/metrics"
	"github.com/gloads/portal/internal/middleware"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/payments"
	"github.com/gloads/portal/internal/reach"
	"github.com/gloads/portal/internal/realtime"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/internal/wallet"
	"github.com/gloads/portal/pkg/response"
)

// VideoStore is the S3 surface used by media uploads and campaign creation.
type VideoStore interface {
	media.VideoStorage
	campaigns.VideoStore
}

// JobQueue accepts background jobs.
type JobQueue interface {
	auth.ResetMailer
	campaigns.Importer
}

// Deps is everything the router needs. Resets, Jobs and Videos may be nil.
type Deps struct {
	Accounts      auth.Store
	Payments      payments.Store
	Campaigns     campaigns.Store
	Wallets       wallet.Reader
	JWT           *auth.JWTService
	Resets        auth.ResetStore
	Jobs          JobQueue
	Videos        VideoStore
	Hub           *realtime.Hub
	Notifier      events.Notifier
	Metrics       *metrics.Metrics
	UPI           payments.UPI
	MaxVideoBytes int64
	CORSOrigins   string
	Ready         func(ctx context.Context) error
	Logger        *zap.Logger
}

// NewRouter builds the gin engine with every portal route.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		resetMailer auth.ResetMailer
		importer    campaigns.Importer
		videos      campaigns.VideoStore
		uploads     media.VideoStorage
	)
	if d.Jobs != nil {
		resetMailer, importer = d.Jobs, d.Jobs
	}
	if d.Videos != nil {
		videos, uploads = d.Videos, d.Videos
	}

	authHandler := auth.NewHandler(d.Accounts, d.JWT, d.Wallets, d.Resets, resetMailer, logger)
	walletHandler := wallet.NewHandler(d.Wallets, logger)
	paymentHandler := payments.NewHandler(d.Payments, d.UPI, d.Notifier, d.Metrics, logger)
	campaignHandler := campaigns.NewHandler(d.Campaigns, d.Wallets, videos, importer, d.Notifier, d.Metrics, logger)
	mediaHandler := media.NewHandler(uploads, d.MaxVideoBytes, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(d.Metrics))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/ready", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				response.ServiceUnavailable(c, "dependencies unavailable")
				return
			}
		}
		response.OK(c, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	router.GET("/reach", reach.Handle)
	router.GET("/payments/upi", paymentHandler.GetUPI)
	router.GET("/payments/upi/qr.png", paymentHandler.QRCode)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(d.JWT), middleware.ActiveAccount(d.Accounts))
	{
		api.GET("/me", authHandler.Me)
		api.GET("/wallet", walletHandler.Get)

		api.POST("/payments/deposits", paymentHandler.Deposit)
		api.GET("/payments/requests", paymentHandler.ListMine)

		api.GET("/campaigns/guard", campaignHandler.Guard)
		api.POST("/campaigns", campaignHandler.Create)
		api.GET("/campaigns", campaignHandler.ListMine)
		api.GET("/campaigns/:id", campaignHandler.Get)

		api.POST("/media/videos", mediaHandler.Upload)
		api.POST("/media/videos/upload-url", mediaHandler.UploadURL)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/advertisers", authHandler.List)
		admin.PATCH("/advertisers/:id/status", authHandler.SetStatus)

		admin.GET("/payments", paymentHandler.ListAll)
		admin.GET("/payments/:id", paymentHandler.Get)
		admin.POST("/payments/:id/approve", paymentHandler.Approve)
		admin.POST("/payments/:id/reject", paymentHandler.Reject)
		admin.DELETE("/payments/:id", paymentHandler.Delete)

		admin.GET("/campaigns", campaignHandler.ListAll)
		admin.PATCH("/campaigns/:id/status", campaignHandler.UpdateStatus)
		admin.POST("/campaigns/:id/views", campaignHandler.AddViews)
	}

	// WebSocket (token in query; no Authorization header required)
	if d.Hub != nil {
		validate := func(ctx context.Context, token string) (session.Session, error) {
			claims, err := d.JWT.Validate(token)
			if err != nil {
				return session.Session{}, err
			}
			sess := claims.Session()
			if err := middleware.CheckActive(ctx, d.Accounts, sess.ID); err != nil {
				return session.Session{}, err
			}
			return sess, nil
		}
		router.GET("/ws", realtime.ServeWs(d.Hub, logger, validate, SnapshotBuilder(d.Wallets, d.Payments, d.Campaigns)))
	} else {
		router.GET("/ws", func(c *gin.Context) { response.ServiceUnavailable(c, "live updates are disabled") })
	}

	return router
}
