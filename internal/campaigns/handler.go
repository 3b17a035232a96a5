package campaigns

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/events"
	"github.com/gloads/portal/internal/metrics"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/reach"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/queue"
	"github.com/gloads/portal/pkg/response"
	"github.com/gloads/portal/pkg/storage"
)

// Store is the campaign persistence the handlers need.
type Store interface {
	Create(ctx context.Context, p CreateParams) (*models.Campaign, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListByAdvertiser(ctx context.Context, advertiserID uuid.UUID) ([]models.Campaign, error)
	List(ctx context.Context, status string) ([]models.Campaign, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Campaign, error)
	AddViews(ctx context.Context, id uuid.UUID, count int64) (*models.Campaign, error)
}

// WalletReader loads the balance for the guard.
type WalletReader interface {
	Get(ctx context.Context, advertiserID uuid.UUID) (*models.WalletStats, error)
}

// VideoStore resolves uploaded video keys.
type VideoStore interface {
	VideoExists(ctx context.Context, key string) error
	PublicObjectURL(key string) string
}

// Importer queues re-hosting of external videos.
type Importer interface {
	EnqueueVideoImport(ctx context.Context, payload queue.VideoImportPayload) error
}

// GuardResponse is returned by GET /campaigns/guard.
type GuardResponse struct {
	Balance int64             `json:"balance"`
	Budget  int64             `json:"budget"`
	Allowed bool              `json:"allowed"`
	Reach   models.ReachRange `json:"estimated_reach"`
}

// StatusRequest is the body for PATCH /admin/campaigns/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ViewsRequest is the body for POST /admin/campaigns/:id/views.
type ViewsRequest struct {
	Count int64 `json:"count" binding:"required,gt=0,lte=1000000000"`
}

// Handler handles campaign endpoints.
type Handler struct {
	store    Store
	wallets  WalletReader
	videos   VideoStore
	importer Importer
	events   events.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHandler creates a campaigns handler. videos and importer may be nil when S3 is not configured.
func NewHandler(store Store, wallets WalletReader, videos VideoStore, importer Importer, notifier events.Notifier, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &Handler{store: store, wallets: wallets, videos: videos, importer: importer, events: notifier, metrics: m, logger: logger}
}

// Guard handles GET /campaigns/guard?budget=N.
func (h *Handler) Guard(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	budget, err := reach.ParseBudget(c.Query("budget"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.wallets.Get(c.Request.Context(), sess.ID)
	if err != nil {
		h.logger.Error("guard wallet", zap.Error(err))
		response.Internal(c, "failed to load wallet")
		return
	}
	est, _ := reach.Estimate(budget)
	response.OK(c, GuardResponse{Balance: w.Balance, Budget: budget, Allowed: CanAfford(w.Balance, budget), Reach: est})
}

// Create handles POST /campaigns.
func (h *Handler) Create(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	est, err := req.normalize()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	params := CreateParams{
		AdvertiserID: sess.ID,
		Title:        req.Title,
		TargetURL:    req.TargetURL,
		VideoURL:     req.VideoURL,
		Placement:    models.Placement(req.Placement),
		Budget:       req.Budget,
		Reach:        est,
	}
	switch {
	case req.VideoKey != "":
		if h.videos == nil {
			response.ServiceUnavailable(c, "video storage is not configured")
			return
		}
		if !storage.OwnsVideoKey(sess.ID.String(), req.VideoKey) {
			response.BadRequest(c, "video_key does not belong to this account")
			return
		}
		if err := h.videos.VideoExists(ctx, req.VideoKey); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				response.BadRequest(c, "video has not been uploaded")
				return
			}
			h.logger.Error("check uploaded video", zap.Error(err), zap.String("key", req.VideoKey))
			response.Internal(c, "failed to verify video")
			return
		}
		params.VideoKey = req.VideoKey
		params.VideoURL = h.videos.PublicObjectURL(req.VideoKey)
	case req.SourceVideoURL != "":
		params.VideoURL = req.SourceVideoURL
	}

	campaign, err := h.store.Create(ctx, params)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			h.metrics.CampaignBlocked()
			response.PaymentRequired(c, ErrInsufficientBalance.Error())
			return
		}
		h.logger.Error("create campaign", zap.Error(err), zap.String("advertiser_id", sess.ID.String()))
		response.Internal(c, "failed to create campaign")
		return
	}

	if req.SourceVideoURL != "" && h.importer != nil {
		err := h.importer.EnqueueVideoImport(ctx, queue.VideoImportPayload{
			CampaignID:   campaign.ID,
			AdvertiserID: sess.ID,
			SourceURL:    req.SourceVideoURL,
		})
		if err != nil {
			// the source URL is already stored as the playable URL
			h.logger.Warn("enqueue video import", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		}
	}

	h.metrics.CampaignCreated(string(campaign.Placement))
	h.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("handle", sess.Handle),
		zap.String("placement", string(campaign.Placement)),
		zap.Int64("budget", campaign.Budget),
	)
	h.events.Notify(ctx, events.CampaignCreated, campaign, events.Advertiser(sess.ID), events.Admin)
	response.Created(c, campaign)
}

// ListMine handles GET /campaigns.
func (h *Handler) ListMine(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	list, err := h.store.ListByAdvertiser(c.Request.Context(), sess.ID)
	if err != nil {
		h.logger.Error("list campaigns", zap.Error(err))
		response.Internal(c, "failed to list campaigns")
		return
	}
	response.OK(c, list)
}

func campaignID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}

// Get handles GET /campaigns/:id. Other advertisers' campaigns read as not found.
func (h *Handler) Get(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, ok := campaignID(c)
	if !ok {
		return
	}
	campaign, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		h.logger.Error("get campaign", zap.Error(err))
		response.Internal(c, "failed to load campaign")
		return
	}
	if campaign.AdvertiserID != sess.ID && !sess.IsAdmin() {
		response.NotFound(c, ErrNotFound.Error())
		return
	}
	response.OK(c, campaign)
}

// ListAll handles GET /admin/campaigns?status=.
func (h *Handler) ListAll(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.CampaignStatusPending, models.CampaignStatusActive, models.CampaignStatusRejected:
	default:
		response.BadRequest(c, "status must be Pending, Active or Rejected")
		return
	}
	list, err := h.store.List(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("list all campaigns", zap.Error(err))
		response.Internal(c, "failed to list campaigns")
		return
	}
	response.OK(c, list)
}

// UpdateStatus handles PATCH /admin/campaigns/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Status != models.CampaignStatusActive && req.Status != models.CampaignStatusRejected {
		response.BadRequest(c, "status must be Active or Rejected")
		return
	}
	ctx := c.Request.Context()
	campaign, err := h.store.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrNotPending):
			response.Conflict(c, err.Error())
		default:
			h.logger.Error("update campaign status", zap.Error(err))
			response.Internal(c, "failed to update campaign")
		}
		return
	}
	h.logger.Info("campaign reviewed", zap.String("campaign_id", campaign.ID.String()), zap.String("status", campaign.Status))
	h.events.Notify(ctx, events.CampaignUpdated, campaign, events.Advertiser(campaign.AdvertiserID), events.Admin)
	response.OK(c, campaign)
}

// AddViews handles POST /admin/campaigns/:id/views.
func (h *Handler) AddViews(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	var req ViewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	campaign, err := h.store.AddViews(ctx, id, req.Count)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		h.logger.Error("add campaign views", zap.Error(err))
		response.Internal(c, "failed to record views")
		return
	}
	h.events.Notify(ctx, events.CampaignUpdated, campaign, events.Advertiser(campaign.AdvertiserID))
	response.OK(c, campaign)
}
