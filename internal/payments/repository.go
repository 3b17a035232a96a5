package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/wallet"
	"github.com/gloads/portal/pkg/database"
)

var (
	// ErrNotFound is returned when no payment request matches.
	ErrNotFound = errors.New("payment request not found")
	// ErrNotPending is returned when a decision targets a request that was already decided.
	ErrNotPending = errors.New("payment request is not pending")
	// ErrDuplicateReference is returned when the UTR is already attached to a live request.
	ErrDuplicateReference = errors.New("transaction reference already submitted")
)

const liveRefIndex = "payment_requests_live_ref_key"

const requestColumns = `id, advertiser_id, advertiser_handle, advertiser_email, advertiser_name, amount,
	transaction_ref, upi_id, status, reject_reason, approved_at, approved_by, rejected_at, created_at, updated_at`

// CreateParams is a new deposit request with the advertiser snapshot.
type CreateParams struct {
	AdvertiserID     uuid.UUID
	AdvertiserHandle string
	AdvertiserEmail  string
	AdvertiserName   string
	Amount           int64
	TransactionRef   string
	UPIID            string
}

// Repository handles payment request persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRequest(row pgx.Row) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := row.Scan(&p.ID, &p.AdvertiserID, &p.AdvertiserHandle, &p.AdvertiserEmail, &p.AdvertiserName, &p.Amount,
		&p.TransactionRef, &p.UPIID, &p.Status, &p.RejectReason, &p.ApprovedAt, &p.ApprovedBy, &p.RejectedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collect(rows pgx.Rows) ([]models.PaymentRequest, error) {
	defer rows.Close()
	list := []models.PaymentRequest{}
	for rows.Next() {
		p, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Create inserts a Pending request.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.PaymentRequest, error) {
	q := `INSERT INTO payment_requests (advertiser_id, advertiser_handle, advertiser_email, advertiser_name, amount, transaction_ref, upi_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'Pending')
		RETURNING ` + requestColumns
	req, err := scanRequest(r.pool.QueryRow(ctx, q, p.AdvertiserID, p.AdvertiserHandle, p.AdvertiserEmail, p.AdvertiserName,
		p.Amount, p.TransactionRef, p.UPIID))
	if err != nil {
		if database.IsUniqueViolation(err, liveRefIndex) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("insert payment request: %w", err)
	}
	return req, nil
}

// GetByID returns a request by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`, id))
}

// ListByAdvertiser returns an advertiser's requests, newest first.
func (r *Repository) ListByAdvertiser(ctx context.Context, advertiserID uuid.UUID) ([]models.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE advertiser_id = $1 ORDER BY created_at DESC`, advertiserID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// List returns all requests, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]models.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM payment_requests
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Approve marks a Pending request Approved and credits the wallet in one transaction.
// A request that is no longer Pending credits nothing and yields ErrNotPending.
func (r *Repository) Approve(ctx context.Context, id, adminID uuid.UUID) (*models.PaymentRequest, *models.WalletStats, error) {
	var (
		req *models.PaymentRequest
		w   *models.WalletStats
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := `UPDATE payment_requests
			SET status = 'Approved', approved_at = NOW(), approved_by = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'Pending'
			RETURNING ` + requestColumns
		var err error
		req, err = scanRequest(tx.QueryRow(ctx, q, id, adminID))
		if errors.Is(err, ErrNotFound) {
			return decisionError(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("approve payment request: %w", err)
		}
		w, err = wallet.Credit(ctx, tx, req.AdvertiserID, req.Amount)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return req, w, nil
}

// Reject marks a Pending request Rejected with an optional reason. The wallet is untouched.
func (r *Repository) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.PaymentRequest, error) {
	q := `UPDATE payment_requests
		SET status = 'Rejected', rejected_at = NOW(), reject_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'Pending'
		RETURNING ` + requestColumns
	req, err := scanRequest(r.pool.QueryRow(ctx, q, id, reason))
	if errors.Is(err, ErrNotFound) {
		return nil, decisionError(ctx, r.pool, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reject payment request: %w", err)
	}
	return req, nil
}

// Delete removes a request. The wallet is untouched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `DELETE FROM payment_requests WHERE id = $1 RETURNING `+requestColumns, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("delete payment request: %w", err)
	}
	return req, err
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// decisionError explains why a conditional update matched nothing.
func decisionError(ctx context.Context, q queryRower, id uuid.UUID) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM payment_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load payment request: %w", err)
	}
	return ErrNotPending
}
