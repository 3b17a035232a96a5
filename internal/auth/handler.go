package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/pkg/queue"
	"github.com/gloads/portal/pkg/response"
	"github.com/gloads/portal/pkg/utils"
)

// Store is the account persistence the handlers need.
type Store interface {
	Create(ctx context.Context, p CreateParams) (*models.Advertiser, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Advertiser, error)
	GetByHandle(ctx context.Context, handle string) (*models.Advertiser, error)
	List(ctx context.Context) ([]models.AdvertiserPublic, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.AdvertiserPublic, error)
}

// WalletReader loads wallet stats for the account view.
type WalletReader interface {
	Get(ctx context.Context, advertiserID uuid.UUID) (*models.WalletStats, error)
}

// ResetStore issues and consumes password reset tokens.
type ResetStore interface {
	Issue(ctx context.Context, advertiserID uuid.UUID) (string, time.Time, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

// ResetMailer hands reset tokens to the mail worker.
type ResetMailer interface {
	EnqueuePasswordResetEmail(ctx context.Context, payload queue.PasswordResetEmailPayload) error
}

// SignupRequest is the body for POST /auth/signup.
type SignupRequest struct {
	Handle       string `json:"handle" binding:"required"`
	BusinessName string `json:"business_name"`
	FullName     string `json:"full_name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Phone        string `json:"phone"`
	Password     string `json:"password" binding:"required,min=6"`
}

// StatusRequest is the body for PATCH /admin/advertisers/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=Active Suspended"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Handle   string `json:"handle" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ForgotPasswordRequest is the body for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Handle string `json:"handle" binding:"required"`
}

// ResetPasswordRequest is the body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token   string                  `json:"token"`
	Session session.Session         `json:"session"`
	User    models.AdvertiserPublic `json:"user"`
}

// MeResponse is the account page payload.
type MeResponse struct {
	User   models.AdvertiserPublic `json:"user"`
	Wallet models.WalletStats      `json:"wallet"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	store   Store
	jwt     *JWTService
	wallets WalletReader
	resets  ResetStore
	mailer  ResetMailer
	logger  *zap.Logger
}

// NewHandler creates an auth handler. resets and mailer may be nil, which disables password recovery.
func NewHandler(store Store, jwt *JWTService, wallets WalletReader, resets ResetStore, mailer ResetMailer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, jwt: jwt, wallets: wallets, resets: resets, mailer: mailer, logger: logger}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	handle, err := ValidateHandle(req.Handle)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetByHandle(ctx, handle); err == nil {
		response.Conflict(c, ErrHandleTaken.Error())
		return
	} else if !errors.Is(err, ErrNotFound) {
		h.logger.Error("signup handle lookup", zap.Error(err))
		response.Internal(c, "failed to create account")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	adv, err := h.store.Create(ctx, CreateParams{
		Handle:       handle,
		BusinessName: strings.TrimSpace(req.BusinessName),
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         models.RoleAdvertiser,
	})
	if err != nil {
		if errors.Is(err, ErrHandleTaken) {
			response.Conflict(c, ErrHandleTaken.Error())
			return
		}
		h.logger.Error("signup create", zap.Error(err))
		response.Internal(c, "failed to create account")
		return
	}

	h.logger.Info("advertiser signed up", zap.String("handle", adv.Handle), zap.String("advertiser_id", adv.ID.String()))
	h.issue(c, http.StatusCreated, adv)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	adv, err := h.store.GetByHandle(c.Request.Context(), NormalizeHandle(req.Handle))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("login lookup", zap.Error(err))
		}
		response.Unauthorized(c, "invalid handle or password")
		return
	}
	if !utils.CheckPassword(req.Password, adv.Password) {
		response.Unauthorized(c, "invalid handle or password")
		return
	}
	if adv.Status == models.AccountStatusSuspended {
		response.Forbidden(c, "account suspended")
		return
	}

	h.issue(c, http.StatusOK, adv)
}

func (h *Handler) issue(c *gin.Context, status int, adv *models.Advertiser) {
	sess := session.FromAdvertiser(adv)
	token, err := h.jwt.Generate(sess)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	c.JSON(status, response.Body{Success: true, Data: TokenResponse{Token: token, Session: sess, User: adv.ToPublic()}})
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	adv, err := h.store.GetByID(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.Unauthorized(c, "account no longer exists")
			return
		}
		h.logger.Error("me lookup", zap.Error(err))
		response.Internal(c, "failed to load account")
		return
	}
	out := MeResponse{User: adv.ToPublic(), Wallet: models.WalletStats{AdvertiserID: adv.ID}}
	if h.wallets != nil {
		w, err := h.wallets.Get(ctx, adv.ID)
		if err != nil {
			h.logger.Error("me wallet", zap.Error(err))
			response.Internal(c, "failed to load wallet")
			return
		}
		out.Wallet = *w
	}
	response.OK(c, out)
}

// ForgotPassword handles POST /auth/forgot-password. It answers 202 whether or not the handle exists.
func (h *Handler) ForgotPassword(c *gin.Context) {
	if h.resets == nil || h.mailer == nil {
		response.ServiceUnavailable(c, "password recovery is not configured")
		return
	}
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	accepted := gin.H{"message": "if the account exists, a reset link has been sent"}

	ctx := c.Request.Context()
	adv, err := h.store.GetByHandle(ctx, NormalizeHandle(req.Handle))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("forgot password lookup", zap.Error(err))
		}
		response.Accepted(c, accepted)
		return
	}
	token, expires, err := h.resets.Issue(ctx, adv.ID)
	if err != nil {
		h.logger.Error("issue reset token", zap.Error(err))
		response.Internal(c, "failed to start password reset")
		return
	}
	err = h.mailer.EnqueuePasswordResetEmail(ctx, queue.PasswordResetEmailPayload{
		AdvertiserID:   adv.ID,
		Handle:         adv.Handle,
		RecipientEmail: adv.Email,
		Token:          token,
		ExpiresAt:      expires,
	})
	if err != nil {
		h.logger.Error("enqueue reset email", zap.Error(err))
		response.Internal(c, "failed to start password reset")
		return
	}
	response.Accepted(c, accepted)
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	if h.resets == nil {
		response.ServiceUnavailable(c, "password recovery is not configured")
		return
	}
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	id, err := h.resets.Consume(ctx, strings.TrimSpace(req.Token))
	if err != nil {
		if errors.Is(err, ErrResetTokenInvalid) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("consume reset token", zap.Error(err))
		response.Internal(c, "failed to reset password")
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	if err := h.store.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.BadRequest(c, ErrResetTokenInvalid.Error())
			return
		}
		h.logger.Error("reset password update", zap.Error(err))
		response.Internal(c, "failed to reset password")
		return
	}
	response.OK(c, gin.H{"message": "password updated"})
}

// List handles GET /admin/advertisers (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list advertisers", zap.Error(err))
		response.Internal(c, "failed to list advertisers")
		return
	}
	if list == nil {
		list = []models.AdvertiserPublic{}
	}
	response.OK(c, list)
}

// SetStatus handles PATCH /admin/advertisers/:id/status. Suspended accounts cannot log in
// and their existing tokens stop working.
func (h *Handler) SetStatus(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid advertiser id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if id == sess.ID {
		response.BadRequest(c, "cannot change the status of your own account")
		return
	}

	adv, err := h.store.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		h.logger.Error("set advertiser status", zap.Error(err), zap.String("advertiser_id", id.String()))
		response.Internal(c, "failed to update account status")
		return
	}
	h.logger.Info("advertiser status changed", zap.String("advertiser_id", id.String()), zap.String("status", req.Status), zap.String("admin", sess.Handle))
	response.OK(c, adv)
}
