package payments

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/events"
	"github.com/gloads/portal/internal/metrics"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/response"
)

const (
	// MaxDepositAmount caps a single deposit in rupees.
	MaxDepositAmount = 1_000_000
	maxReferenceLen  = 64
	maxReasonLen     = 500
)

// Store is the payment request persistence the handlers need.
type Store interface {
	Create(ctx context.Context, p CreateParams) (*models.PaymentRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	ListByAdvertiser(ctx context.Context, advertiserID uuid.UUID) ([]models.PaymentRequest, error)
	List(ctx context.Context, status string) ([]models.PaymentRequest, error)
	Approve(ctx context.Context, id, adminID uuid.UUID) (*models.PaymentRequest, *models.WalletStats, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.PaymentRequest, error)
	Delete(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
}

// DepositRequest is the body for POST /payments/deposits.
type DepositRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	TransactionRef string `json:"transaction_ref" binding:"required"`
}

// RejectRequest is the optional body for POST /admin/payments/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// UPIResponse is returned by GET /payments/upi.
type UPIResponse struct {
	UPI
	URI string `json:"uri"`
}

// ApprovalResponse is returned by POST /admin/payments/:id/approve.
type ApprovalResponse struct {
	Request models.PaymentRequest `json:"request"`
	Wallet  models.WalletStats    `json:"wallet"`
}

// Handler handles deposit and approval endpoints.
type Handler struct {
	store   Store
	upi     UPI
	events  events.Notifier
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(store Store, upi UPI, notifier events.Notifier, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &Handler{store: store, upi: upi, events: notifier, metrics: m, logger: logger}
}

func amountParam(c *gin.Context) (int64, bool) {
	raw := c.Query("amount")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 || n > MaxDepositAmount {
		response.BadRequest(c, "amount must be a whole number of rupees between 1 and 1000000")
		return 0, false
	}
	return n, true
}

// GetUPI handles GET /payments/upi.
func (h *Handler) GetUPI(c *gin.Context) {
	amount, ok := amountParam(c)
	if !ok {
		return
	}
	response.OK(c, UPIResponse{UPI: h.upi, URI: h.upi.URI(amount)})
}

// QRCode handles GET /payments/upi/qr.png.
func (h *Handler) QRCode(c *gin.Context) {
	amount, ok := amountParam(c)
	if !ok {
		return
	}
	png, err := h.upi.QRCode(amount, 320)
	if err != nil {
		h.logger.Error("render upi qr", zap.Error(err))
		response.Internal(c, "failed to render QR code")
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// Deposit handles POST /payments/deposits.
func (h *Handler) Deposit(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Amount > MaxDepositAmount {
		response.BadRequest(c, "amount exceeds the deposit limit")
		return
	}
	ref := strings.TrimSpace(req.TransactionRef)
	if ref == "" || len(ref) > maxReferenceLen {
		response.BadRequest(c, "transaction reference must be 1-64 characters")
		return
	}

	ctx := c.Request.Context()
	pr, err := h.store.Create(ctx, CreateParams{
		AdvertiserID:     sess.ID,
		AdvertiserHandle: sess.Handle,
		AdvertiserEmail:  sess.Email,
		AdvertiserName:   sess.DisplayName,
		Amount:           req.Amount,
		TransactionRef:   ref,
		UPIID:            h.upi.ID,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			h.metrics.Deposit("duplicate")
			response.Conflict(c, err.Error())
			return
		}
		h.metrics.Deposit("error")
		h.logger.Error("create payment request", zap.Error(err), zap.String("advertiser_id", sess.ID.String()))
		response.Internal(c, "failed to submit deposit")
		return
	}

	h.metrics.Deposit("created")
	h.logger.Info("deposit submitted",
		zap.String("payment_request_id", pr.ID.String()),
		zap.String("handle", sess.Handle),
		zap.Int64("amount", pr.Amount),
	)
	h.events.Notify(ctx, events.PaymentRequestCreated, pr, events.Advertiser(pr.AdvertiserID), events.Admin)
	response.Created(c, pr)
}

// ListMine handles GET /payments/requests.
func (h *Handler) ListMine(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	list, err := h.store.ListByAdvertiser(c.Request.Context(), sess.ID)
	if err != nil {
		h.logger.Error("list payment requests", zap.Error(err))
		response.Internal(c, "failed to list payment requests")
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /admin/payments?status=.
func (h *Handler) ListAll(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidPaymentStatus(status) {
		response.BadRequest(c, "status must be Pending, Approved or Rejected")
		return
	}
	list, err := h.store.List(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("list all payment requests", zap.Error(err))
		response.Internal(c, "failed to list payment requests")
		return
	}
	response.OK(c, list)
}

func requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment request id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decisionFailed(c *gin.Context, action string, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrNotPending):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error(action+" payment request", zap.Error(err), zap.String("payment_request_id", id.String()))
		response.Internal(c, "failed to "+action+" payment request")
	}
}

// Get handles GET /admin/payments/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	pr, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.decisionFailed(c, "load", id, err)
		return
	}
	response.OK(c, pr)
}

// Approve handles POST /admin/payments/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	admin, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	pr, w, err := h.store.Approve(ctx, id, admin.ID)
	if err != nil {
		h.decisionFailed(c, "approve", id, err)
		return
	}

	h.metrics.Approved(pr.Amount)
	h.logger.Info("payment request approved",
		zap.String("payment_request_id", pr.ID.String()),
		zap.String("advertiser_id", pr.AdvertiserID.String()),
		zap.Int64("amount", pr.Amount),
		zap.Int64("balance", w.Balance),
		zap.String("approved_by", admin.Handle),
	)
	h.events.Notify(ctx, events.PaymentRequestUpdated, pr, events.Advertiser(pr.AdvertiserID), events.Admin)
	h.events.Notify(ctx, events.WalletUpdated, w, events.Advertiser(pr.AdvertiserID))
	response.OK(c, ApprovalResponse{Request: *pr, Wallet: *w})
}

// Reject handles POST /admin/payments/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) > maxReasonLen {
		response.BadRequest(c, "reason is too long")
		return
	}
	ctx := c.Request.Context()
	pr, err := h.store.Reject(ctx, id, reason)
	if err != nil {
		h.decisionFailed(c, "reject", id, err)
		return
	}
	h.metrics.Decision("rejected")
	h.logger.Info("payment request rejected", zap.String("payment_request_id", pr.ID.String()), zap.String("reason", reason))
	h.events.Notify(ctx, events.PaymentRequestUpdated, pr, events.Advertiser(pr.AdvertiserID), events.Admin)
	response.OK(c, pr)
}

// Delete handles DELETE /admin/payments/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	pr, err := h.store.Delete(ctx, id)
	if err != nil {
		h.decisionFailed(c, "delete", id, err)
		return
	}
	h.metrics.Decision("deleted")
	h.logger.Info("payment request deleted", zap.String("payment_request_id", pr.ID.String()), zap.String("status", pr.Status))
	h.events.Notify(ctx, events.PaymentRequestDeleted, gin.H{"id": pr.ID, "advertiser_id": pr.AdvertiserID},
		events.Advertiser(pr.AdvertiserID), events.Admin)
	response.NoContent(c)
}
