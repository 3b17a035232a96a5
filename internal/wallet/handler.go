package wallet

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/response"
)

// Reader loads wallet stats.
type Reader interface {
	Get(ctx context.Context, advertiserID uuid.UUID) (*models.WalletStats, error)
}

// Handler serves GET /wallet.
type Handler struct {
	wallets Reader
	logger  *zap.Logger
}

// NewHandler creates a wallet handler.
func NewHandler(wallets Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{wallets: wallets, logger: logger}
}

// Get handles GET /wallet.
func (h *Handler) Get(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	w, err := h.wallets.Get(c.Request.Context(), sess.ID)
	if err != nil {
		h.logger.Error("get wallet", zap.Error(err), zap.String("advertiser_id", sess.ID.String()))
		response.Internal(c, "failed to load wallet")
		return
	}
	response.OK(c, w)
}
