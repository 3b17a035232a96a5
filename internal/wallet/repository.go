package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gloads/portal/internal/models"
)

// Repository reads wallet stats. Writes happen inside the payment approval transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a wallet repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the advertiser's stats; an advertiser without a row has a zero balance.
func (r *Repository) Get(ctx context.Context, advertiserID uuid.UUID) (*models.WalletStats, error) {
	const q = `SELECT advertiser_id, balance, total_deposited, updated_at FROM wallet_stats WHERE advertiser_id = $1`
	var w models.WalletStats
	err := r.pool.QueryRow(ctx, q, advertiserID).Scan(&w.AdvertiserID, &w.Balance, &w.TotalDeposited, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.WalletStats{AdvertiserID: advertiserID}, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

// Credit adds amount to the wallet inside tx, creating the row if absent.
func Credit(ctx context.Context, tx pgx.Tx, advertiserID uuid.UUID, amount int64) (*models.WalletStats, error) {
	const q = `INSERT INTO wallet_stats (advertiser_id, balance, total_deposited, updated_at)
		VALUES ($1, $2, $2, NOW())
		ON CONFLICT (advertiser_id) DO UPDATE
		SET balance = wallet_stats.balance + EXCLUDED.balance,
			total_deposited = wallet_stats.total_deposited + EXCLUDED.total_deposited,
			updated_at = NOW()
		RETURNING advertiser_id, balance, total_deposited, updated_at`
	var w models.WalletStats
	if err := tx.QueryRow(ctx, q, advertiserID, amount).Scan(&w.AdvertiserID, &w.Balance, &w.TotalDeposited, &w.UpdatedAt); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	return &w, nil
}

// LockBalance reads the balance inside tx and holds the row lock until the tx ends.
// A missing row reads as zero.
func LockBalance(ctx context.Context, tx pgx.Tx, advertiserID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM wallet_stats WHERE advertiser_id = $1 FOR UPDATE`, advertiserID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lock wallet: %w", err)
	}
	return balance, nil
}
