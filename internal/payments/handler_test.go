package payments_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloads/portal/internal/events"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/payments"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/internal/testsupport"
)

var (
	advertiser = session.Session{ID: uuid.New(), Handle: "acme", Email: "a@acme.test", DisplayName: "Acme", Role: models.RoleAdvertiser}
	admin      = session.Session{ID: uuid.New(), Handle: "ops", Role: models.RoleAdmin}
)

type fixture struct {
	db       *testsupport.DB
	notifier *testsupport.Notifier
	user     http.Handler
	anon     http.Handler
	admin    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testsupport.NewDB(), notifier: &testsupport.Notifier{}}
	h := payments.NewHandler(f.db.Payments(), payments.UPI{ID: "gloads@okaxis", PayeeName: "GloAds"}, f.notifier, nil, nil)

	user := testsupport.Engine()
	user.Use(testsupport.AsSession(advertiser))
	user.POST("/payments/deposits", h.Deposit)
	user.GET("/payments/requests", h.ListMine)
	f.user = user

	anon := testsupport.Engine()
	anon.GET("/payments/upi", h.GetUPI)
	anon.GET("/payments/upi/qr.png", h.QRCode)
	anon.POST("/payments/deposits", h.Deposit)
	f.anon = anon

	adm := testsupport.Engine()
	adm.Use(testsupport.AsSession(admin))
	adm.GET("/admin/payments", h.ListAll)
	adm.GET("/admin/payments/:id", h.Get)
	adm.POST("/admin/payments/:id/approve", h.Approve)
	adm.POST("/admin/payments/:id/reject", h.Reject)
	adm.DELETE("/admin/payments/:id", h.Delete)
	f.admin = adm
	return f
}

func (f *fixture) deposit(t *testing.T, amount int64, ref string) models.PaymentRequest {
	t.Helper()
	w := testsupport.Request(t, f.user, http.MethodPost, "/payments/deposits", payments.DepositRequest{Amount: amount, TransactionRef: ref}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pr models.PaymentRequest
	testsupport.Decode(t, w, &pr)
	return pr
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	w, err := f.db.Wallets().Get(context.Background(), advertiser.ID)
	require.NoError(t, err)
	return w.Balance
}

func TestDepositRequiresSession(t *testing.T) {
	f := newFixture(t)
	w := testsupport.Request(t, f.anon, http.MethodPost, "/payments/deposits", payments.DepositRequest{Amount: 500, TransactionRef: "123456789012"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	list, err := f.db.Payments().List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.notifier.Events())
}

func TestDepositCreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	pr := f.deposit(t, 500, " 123456789012 ")

	assert.Equal(t, models.PaymentStatusPending, pr.Status)
	assert.Equal(t, int64(500), pr.Amount)
	assert.Equal(t, "123456789012", pr.TransactionRef)
	assert.Equal(t, "acme", pr.AdvertiserHandle)
	assert.Equal(t, "gloads@okaxis", pr.UPIID)
	assert.Zero(t, f.balance(t), "nothing is credited before approval")

	require.Len(t, f.notifier.Events(), 1)
	ev := f.notifier.Events()[0]
	assert.Equal(t, events.PaymentRequestCreated, ev.Event)
	assert.ElementsMatch(t, []string{events.Advertiser(advertiser.ID), events.Admin}, ev.Topics)

	w := testsupport.Request(t, f.user, http.MethodGet, "/payments/requests", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var mine []models.PaymentRequest
	testsupport.Decode(t, w, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, pr.ID, mine[0].ID)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	cases := []payments.DepositRequest{
		{Amount: 0, TransactionRef: "123"},
		{Amount: -5, TransactionRef: "123"},
		{Amount: payments.MaxDepositAmount + 1, TransactionRef: "123"},
		{Amount: 100, TransactionRef: "   "},
		{Amount: 100, TransactionRef: fmt.Sprintf("%065d", 1)},
	}
	for _, c := range cases {
		w := testsupport.Request(t, f.user, http.MethodPost, "/payments/deposits", c, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "%+v", c)
	}
}

func TestDepositDuplicateReference(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, 500, "123456789012")
	w := testsupport.Request(t, f.user, http.MethodPost, "/payments/deposits", payments.DepositRequest{Amount: 300, TransactionRef: "123456789012"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	pr := f.deposit(t, 500, "123456789012")

	w := testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/approve", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out payments.ApprovalResponse
	testsupport.Decode(t, w, &out)
	assert.Equal(t, models.PaymentStatusApproved, out.Request.Status)
	require.NotNil(t, out.Request.ApprovedBy)
	assert.Equal(t, admin.ID, *out.Request.ApprovedBy)
	assert.Equal(t, int64(500), out.Wallet.Balance)
	assert.Equal(t, int64(500), out.Wallet.TotalDeposited)

	w = testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/approve", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(500), f.balance(t))

	assert.Equal(t, []string{events.PaymentRequestCreated, events.PaymentRequestUpdated, events.WalletUpdated}, f.notifier.Names())
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	f := newFixture(t)
	pr := f.deposit(t, 500, "123456789012")

	var wg sync.WaitGroup
	codes := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/approve", nil, "").Code
		}()
	}
	wg.Wait()
	close(codes)

	ok := 0
	for code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusConflict, code)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(500), f.balance(t))
}

func TestApproveUnknown(t *testing.T) {
	f := newFixture(t)
	w := testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+uuid.NewString()+"/approve", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/not-a-uuid/approve", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectKeepsRecordAndFreesReference(t *testing.T) {
	f := newFixture(t)
	pr := f.deposit(t, 500, "123456789012")

	w := testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/reject", payments.RejectRequest{Reason: "UTR not found"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rejected models.PaymentRequest
	testsupport.Decode(t, w, &rejected)
	assert.Equal(t, models.PaymentStatusRejected, rejected.Status)
	assert.Equal(t, "UTR not found", rejected.RejectReason)
	assert.Zero(t, f.balance(t))

	w = testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/approve", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, f.balance(t))

	w = testsupport.Request(t, f.admin, http.MethodGet, "/admin/payments?status=Rejected", nil, "")
	var list []models.PaymentRequest
	testsupport.Decode(t, w, &list)
	assert.Len(t, list, 1)

	// a rejected UTR can be resubmitted
	f.deposit(t, 500, "123456789012")
}

func TestRejectWithoutBody(t *testing.T) {
	f := newFixture(t)
	pr := f.deposit(t, 200, "999")
	w := testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/reject", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteLeavesWallet(t *testing.T) {
	f := newFixture(t)
	pr := f.deposit(t, 500, "123456789012")
	w := testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+pr.ID.String()+"/approve", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = testsupport.Request(t, f.admin, http.MethodDelete, "/admin/payments/"+pr.ID.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(500), f.balance(t))

	w = testsupport.Request(t, f.admin, http.MethodGet, "/admin/payments/"+pr.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = testsupport.Request(t, f.admin, http.MethodDelete, "/admin/payments/"+pr.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAllFilters(t *testing.T) {
	f := newFixture(t)
	first := f.deposit(t, 100, "r1")
	f.deposit(t, 200, "r2")
	w := testsupport.Request(t, f.admin, http.MethodPost, "/admin/payments/"+first.ID.String()+"/approve", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []models.PaymentRequest
	w = testsupport.Request(t, f.admin, http.MethodGet, "/admin/payments?status=Pending", nil, "")
	testsupport.Decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, int64(200), list[0].Amount)

	w = testsupport.Request(t, f.admin, http.MethodGet, "/admin/payments", nil, "")
	testsupport.Decode(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, int64(200), list[0].Amount, "newest first")

	w = testsupport.Request(t, f.admin, http.MethodGet, "/admin/payments?status=pending", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUPIEndpoints(t *testing.T) {
	f := newFixture(t)
	w := testsupport.Request(t, f.anon, http.MethodGet, "/payments/upi?amount=500", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var out payments.UPIResponse
	testsupport.Decode(t, w, &out)
	assert.Equal(t, "gloads@okaxis", out.ID)
	assert.Contains(t, out.URI, "am=500")

	w = testsupport.Request(t, f.anon, http.MethodGet, "/payments/upi/qr.png", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = testsupport.Request(t, f.anon, http.MethodGet, "/payments/upi?amount=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
