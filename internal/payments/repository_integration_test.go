package payments_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/payments"
	"github.com/gloads/portal/internal/reach"
	"github.com/gloads/portal/internal/wallet"
	"github.com/gloads/portal/pkg/database"
)

// openTestPool connects to TEST_DATABASE_URL and applies migrations, or skips.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, database.Migrate(dsn))
	pool, err := database.NewPostgresPool(context.Background(), dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createAdvertiser(t *testing.T, pool *pgxpool.Pool) *models.Advertiser {
	t.Helper()
	handle := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	adv, err := auth.NewRepository(pool).Create(context.Background(), auth.CreateParams{
		Handle:       handle,
		Email:        handle + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM advertisers WHERE id = $1`, adv.ID)
	})
	return adv
}

func uniqueRef() string {
	return "UTR" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func TestPostgresApproveCreditsOnce(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	adv := createAdvertiser(t, pool)
	admin := createAdvertiser(t, pool)
	repo := payments.NewRepository(pool)
	wallets := wallet.NewRepository(pool)

	pr, err := repo.Create(ctx, payments.CreateParams{
		AdvertiserID: adv.ID, AdvertiserHandle: adv.Handle, Amount: 500, TransactionRef: uniqueRef(), UPIID: "7681917331@fam",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, pr.Status)

	before, err := wallets.Get(ctx, adv.ID)
	require.NoError(t, err)
	assert.Zero(t, before.Balance)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
		conflict int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Approve(ctx, pr.ID, admin.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case assert.ErrorIs(t, err, payments.ErrNotPending):
				conflict++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, approved)
	assert.Equal(t, 4, conflict)

	w, err := wallets.Get(ctx, adv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
	assert.Equal(t, int64(500), w.TotalDeposited)

	_, err = repo.Reject(ctx, pr.ID, "late")
	assert.ErrorIs(t, err, payments.ErrNotPending)
	_, _, err = repo.Approve(ctx, uuid.New(), admin.ID)
	assert.ErrorIs(t, err, payments.ErrNotFound)
}

func TestPostgresReferenceUniqueWhileLive(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	adv := createAdvertiser(t, pool)
	repo := payments.NewRepository(pool)
	ref := uniqueRef()
	params := payments.CreateParams{AdvertiserID: adv.ID, AdvertiserHandle: adv.Handle, Amount: 100, TransactionRef: ref, UPIID: "x@upi"}

	first, err := repo.Create(ctx, params)
	require.NoError(t, err)
	_, err = repo.Create(ctx, params)
	assert.ErrorIs(t, err, payments.ErrDuplicateReference)

	_, err = repo.Reject(ctx, first.ID, "wrong amount")
	require.NoError(t, err)
	_, err = repo.Create(ctx, params)
	assert.NoError(t, err, "a rejected reference can be resubmitted")
}

func TestPostgresCampaignGuard(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	adv := createAdvertiser(t, pool)
	admin := createAdvertiser(t, pool)
	ads := campaigns.NewRepository(pool)

	est, err := reach.Estimate(500)
	require.NoError(t, err)
	params := campaigns.CreateParams{
		AdvertiserID: adv.ID,
		Title:        "Diwali sale",
		TargetURL:    "https://shop.example.com",
		VideoURL:     "https://cdn.example.com/ad.mp4",
		Placement:    models.PlacementHomeTop,
		Budget:       500,
		Reach:        est,
	}

	_, err = ads.Create(ctx, params)
	assert.ErrorIs(t, err, campaigns.ErrInsufficientBalance, "no wallet row reads as zero")

	repo := payments.NewRepository(pool)
	pr, err := repo.Create(ctx, payments.CreateParams{AdvertiserID: adv.ID, AdvertiserHandle: adv.Handle, Amount: 500, TransactionRef: uniqueRef(), UPIID: "x@upi"})
	require.NoError(t, err)
	_, _, err = repo.Approve(ctx, pr.ID, admin.ID)
	require.NoError(t, err)

	created, err := ads.Create(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPending, created.Status)
	assert.Equal(t, est, created.Reach)

	params.Budget = 600
	params.Reach, _ = reach.Estimate(600)
	_, err = ads.Create(ctx, params)
	assert.ErrorIs(t, err, campaigns.ErrInsufficientBalance)

	w, err := wallet.NewRepository(pool).Get(ctx, adv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance, "creating a campaign deducts nothing")
}
