package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/middleware"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/testsupport"
	"github.com/gloads/portal/pkg/utils"
)

type fixture struct {
	db     *testsupport.DB
	jwt    *auth.JWTService
	jobs   *testsupport.Jobs
	router http.Handler
}

func newFixture(t *testing.T, withReset bool) *fixture {
	t.Helper()
	f := &fixture{db: testsupport.NewDB(), jwt: auth.NewJWTService("secret", 1), jobs: &testsupport.Jobs{}}

	var h *auth.Handler
	if withReset {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		h = auth.NewHandler(f.db.Advertisers(), f.jwt, f.db.Wallets(), auth.NewResetTokens(rdb, 30*time.Minute), f.jobs, nil)
	} else {
		h = auth.NewHandler(f.db.Advertisers(), f.jwt, f.db.Wallets(), nil, nil, nil)
	}

	r := testsupport.Engine()
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/forgot-password", h.ForgotPassword)
	r.POST("/auth/reset-password", h.ResetPassword)
	r.GET("/me", middleware.JWT(f.jwt), middleware.ActiveAccount(f.db.Advertisers()), h.Me)
	r.GET("/admin/advertisers", middleware.JWT(f.jwt), middleware.RequireRole(models.RoleAdmin), h.List)
	r.PATCH("/admin/advertisers/:id/status", middleware.JWT(f.jwt), middleware.RequireRole(models.RoleAdmin), h.SetStatus)
	f.router = r
	return f
}

func (f *fixture) signup(t *testing.T, handle, password string) (*httptest.ResponseRecorder, auth.TokenResponse) {
	t.Helper()
	w := testsupport.Request(t, f.router, http.MethodPost, "/auth/signup", auth.SignupRequest{
		Handle:       handle,
		BusinessName: "Acme Ads",
		FullName:     "Asha Rao",
		Email:        "asha@acme.test",
		Password:     password,
	}, "")
	var out auth.TokenResponse
	if w.Code == http.StatusCreated {
		testsupport.Decode(t, w, &out)
	}
	return w, out
}

func TestSignupNormalizesHandle(t *testing.T) {
	f := newFixture(t, false)
	res, out := f.signup(t, "  @Acme.Ads ", "secret1")
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	assert.NotEmpty(t, out.Token)
	assert.Equal(t, "acme.ads", out.User.Handle)
	assert.Equal(t, "acme.ads", out.Session.Handle)
	assert.Equal(t, models.RoleAdvertiser, out.Session.Role)
	assert.Equal(t, "Acme Ads", out.Session.DisplayName)
	assert.NotContains(t, res.Body.String(), "password")

	claims, err := f.jwt.Validate(out.Token)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, claims.AdvertiserID)
}

func TestSignupDuplicateHandle(t *testing.T) {
	f := newFixture(t, false)
	res, _ := f.signup(t, "acme", "secret1")
	require.Equal(t, http.StatusCreated, res.Code)

	res, _ = f.signup(t, "@ACME", "secret2")
	assert.Equal(t, http.StatusConflict, res.Code)

	list, err := f.db.Advertisers().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t, false)
	res, _ := f.signup(t, "a b", "secret1")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	res, _ = f.signup(t, "acme", "123")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)
	res, signed := f.signup(t, "acme", "secret1")
	require.Equal(t, http.StatusCreated, res.Code)

	w := testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "@Acme", Password: "secret1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out auth.TokenResponse
	testsupport.Decode(t, w, &out)
	assert.Equal(t, signed.User.ID, out.Session.ID)

	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "acme", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	wrongPassword := w.Body.String()

	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "ghost", Password: "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, wrongPassword, w.Body.String(), "unknown handle and wrong password look the same")

	_, err := f.db.Advertisers().SetStatus(context.Background(), signed.User.ID, models.AccountStatusSuspended)
	require.NoError(t, err)
	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "acme", Password: "secret1"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t, false)
	res, signed := f.signup(t, "acme", "secret1")
	require.Equal(t, http.StatusCreated, res.Code)
	f.db.Wallets().Seed(signed.User.ID, 700)

	w := testsupport.Request(t, f.router, http.MethodGet, "/me", nil, signed.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var me auth.MeResponse
	testsupport.Decode(t, w, &me)
	assert.Equal(t, "acme", me.User.Handle)
	assert.Equal(t, int64(700), me.Wallet.Balance)

	assert.Equal(t, http.StatusUnauthorized, testsupport.Request(t, f.router, http.MethodGet, "/me", nil, "").Code)
}

func TestAdminListRequiresAdmin(t *testing.T) {
	f := newFixture(t, false)
	res, signed := f.signup(t, "acme", "secret1")
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, http.StatusForbidden, testsupport.Request(t, f.router, http.MethodGet, "/admin/advertisers", nil, signed.Token).Code)

	admin, err := auth.EnsureAdmin(context.Background(), f.db.Advertisers(), "ops", "adminpass", "ops@gloads.test", nil)
	require.NoError(t, err)
	w := testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: admin.Handle, Password: "adminpass"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var out auth.TokenResponse
	testsupport.Decode(t, w, &out)

	w = testsupport.Request(t, f.router, http.MethodGet, "/admin/advertisers", nil, out.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.AdvertiserPublic
	testsupport.Decode(t, w, &list)
	assert.Len(t, list, 2)
}

func TestAdminSetStatus(t *testing.T) {
	f := newFixture(t, false)
	res, signed := f.signup(t, "acme", "secret1")
	require.Equal(t, http.StatusCreated, res.Code)
	admin, err := auth.EnsureAdmin(context.Background(), f.db.Advertisers(), "ops", "adminpass", "ops@gloads.test", nil)
	require.NoError(t, err)
	w := testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "ops", Password: "adminpass"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var ops auth.TokenResponse
	testsupport.Decode(t, w, &ops)

	path := "/admin/advertisers/" + signed.User.ID.String() + "/status"
	w = testsupport.Request(t, f.router, http.MethodPatch, path, auth.StatusRequest{Status: models.AccountStatusSuspended}, signed.Token)
	assert.Equal(t, http.StatusForbidden, w.Code, "advertisers cannot suspend")

	w = testsupport.Request(t, f.router, http.MethodPatch, path, auth.StatusRequest{Status: models.AccountStatusSuspended}, ops.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pub models.AdvertiserPublic
	testsupport.Decode(t, w, &pub)
	assert.Equal(t, models.AccountStatusSuspended, pub.Status)

	// the token issued before suspension no longer works
	assert.Equal(t, http.StatusForbidden, testsupport.Request(t, f.router, http.MethodGet, "/me", nil, signed.Token).Code)

	w = testsupport.Request(t, f.router, http.MethodPatch, path, auth.StatusRequest{Status: models.AccountStatusActive}, ops.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, testsupport.Request(t, f.router, http.MethodGet, "/me", nil, signed.Token).Code)

	w = testsupport.Request(t, f.router, http.MethodPatch, path, auth.StatusRequest{Status: "Banned"}, ops.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = testsupport.Request(t, f.router, http.MethodPatch, "/admin/advertisers/"+admin.ID.String()+"/status", auth.StatusRequest{Status: models.AccountStatusSuspended}, ops.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code, "admins cannot lock themselves out")
	w = testsupport.Request(t, f.router, http.MethodPatch, "/admin/advertisers/00000000-0000-0000-0000-000000000001/status", auth.StatusRequest{Status: models.AccountStatusActive}, ops.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = testsupport.Request(t, f.router, http.MethodPatch, "/admin/advertisers/nope/status", auth.StatusRequest{Status: models.AccountStatusActive}, ops.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t, true)
	res, _ := f.signup(t, "acme", "secret1")
	require.Equal(t, http.StatusCreated, res.Code)

	w := testsupport.Request(t, f.router, http.MethodPost, "/auth/forgot-password", auth.ForgotPasswordRequest{Handle: "ghost"}, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	_, queued := f.jobs.LastReset()
	assert.False(t, queued, "no mail for unknown handles")

	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/forgot-password", auth.ForgotPasswordRequest{Handle: "@Acme"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	job, queued := f.jobs.LastReset()
	require.True(t, queued)
	assert.Equal(t, "asha@acme.test", job.RecipientEmail)

	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/reset-password", auth.ResetPasswordRequest{Token: job.Token, Password: "newsecret"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/reset-password", auth.ResetPasswordRequest{Token: job.Token, Password: "again123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "tokens are single use")

	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "acme", Password: "newsecret"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = testsupport.Request(t, f.router, http.MethodPost, "/auth/login", auth.LoginRequest{Handle: "acme", Password: "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPasswordResetDisabled(t *testing.T) {
	f := newFixture(t, false)
	w := testsupport.Request(t, f.router, http.MethodPost, "/auth/forgot-password", auth.ForgotPasswordRequest{Handle: "acme"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEnsureAdmin(t *testing.T) {
	db := testsupport.NewDB()
	store := db.Advertisers()
	ctx := context.Background()

	first, err := auth.EnsureAdmin(ctx, store, "@Ops", "adminpass", "ops@gloads.test", nil)
	require.NoError(t, err)
	assert.Equal(t, "ops", first.Handle)
	assert.Equal(t, models.RoleAdmin, first.Role)

	again, err := auth.EnsureAdmin(ctx, store, "ops", "rotated1", "ops@gloads.test", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	stored, err := store.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword("rotated1", stored.Password))

	adv, err := store.Create(ctx, auth.CreateParams{Handle: "boss", PasswordHash: "x", Role: models.RoleAdvertiser})
	require.NoError(t, err)
	promoted, err := auth.EnsureAdmin(ctx, store, "boss", "bosspass", "", nil)
	require.NoError(t, err)
	assert.Equal(t, adv.ID, promoted.ID)
	stored, err = store.GetByID(ctx, adv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)

	_, err = auth.EnsureAdmin(ctx, store, "ops", "123", "", nil)
	assert.Error(t, err)
}
