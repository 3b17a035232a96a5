package campaigns

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/reach"
	"github.com/gloads/portal/internal/wallet"
	"github.com/gloads/portal/pkg/database"
)

var (
	// ErrNotFound is returned when no campaign matches.
	ErrNotFound = errors.New("campaign not found")
	// ErrInsufficientBalance is returned when the wallet balance is below the budget.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	// ErrNotPending is returned when a review targets a campaign that was already reviewed.
	ErrNotPending = errors.New("campaign is not pending review")
)

const campaignColumns = `id, advertiser_id, title, target_url, video_url, video_key, placement, budget,
	reach_min, reach_max, status, views, created_at, updated_at`

// CreateParams is a validated campaign.
type CreateParams struct {
	AdvertiserID uuid.UUID
	Title        string
	TargetURL    string
	VideoURL     string
	VideoKey     string
	Placement    models.Placement
	Budget       int64
	Reach        models.ReachRange
}

// Repository handles campaign persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a campaigns repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var placement string
	err := row.Scan(&c.ID, &c.AdvertiserID, &c.Title, &c.TargetURL, &c.VideoURL, &c.VideoKey, &placement, &c.Budget,
		&c.Reach.Min, &c.Reach.Max, &c.Status, &c.Views, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Placement = models.Placement(placement)
	c.Spend = reach.Spend(c.Budget, c.Views)
	return &c, nil
}

func collect(rows pgx.Rows) ([]models.Campaign, error) {
	defer rows.Close()
	list := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// Create inserts a Pending campaign if the advertiser's balance covers the budget.
// The wallet row stays locked until the insert commits.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Campaign, error) {
	var created *models.Campaign
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		balance, err := wallet.LockBalance(ctx, tx, p.AdvertiserID)
		if err != nil {
			return err
		}
		if !CanAfford(balance, p.Budget) {
			return fmt.Errorf("%w: balance %d, budget %d", ErrInsufficientBalance, balance, p.Budget)
		}
		q := `INSERT INTO ad_campaigns (advertiser_id, title, target_url, video_url, video_key, placement, budget, reach_min, reach_max, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'Pending')
			RETURNING ` + campaignColumns
		created, err = scanCampaign(tx.QueryRow(ctx, q, p.AdvertiserID, p.Title, p.TargetURL, p.VideoURL, p.VideoKey,
			string(p.Placement), p.Budget, p.Reach.Min, p.Reach.Max))
		if err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID returns a campaign by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM ad_campaigns WHERE id = $1`, id))
}

// ListByAdvertiser returns an advertiser's campaigns, newest first.
func (r *Repository) ListByAdvertiser(ctx context.Context, advertiserID uuid.UUID) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+campaignColumns+` FROM ad_campaigns WHERE advertiser_id = $1 ORDER BY created_at DESC`, advertiserID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// List returns all campaigns, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+campaignColumns+` FROM ad_campaigns
		WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateStatus moves a Pending campaign to status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Campaign, error) {
	q := `UPDATE ad_campaigns SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'Pending'
		RETURNING ` + campaignColumns
	c, err := scanCampaign(r.pool.QueryRow(ctx, q, id, status))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("update campaign status: %w", err)
	}
	return c, nil
}

// AddViews increments the delivered view counter.
func (r *Repository) AddViews(ctx context.Context, id uuid.UUID, count int64) (*models.Campaign, error) {
	q := `UPDATE ad_campaigns SET views = views + $2, updated_at = NOW() WHERE id = $1 RETURNING ` + campaignColumns
	c, err := scanCampaign(r.pool.QueryRow(ctx, q, id, count))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("add campaign views: %w", err)
	}
	return c, err
}

// SetVideo replaces the campaign's playable URL and storage key.
func (r *Repository) SetVideo(ctx context.Context, id uuid.UUID, videoURL, videoKey string) (*models.Campaign, error) {
	q := `UPDATE ad_campaigns SET video_url = $2, video_key = $3, updated_at = NOW() WHERE id = $1 RETURNING ` + campaignColumns
	c, err := scanCampaign(r.pool.QueryRow(ctx, q, id, videoURL, videoKey))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("set campaign video: %w", err)
	}
	return c, err
}
