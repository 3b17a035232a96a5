package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/pkg/database"
)

var (
	// ErrHandleTaken is returned when the normalized handle already exists.
	ErrHandleTaken = errors.New("handle taken")
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("advertiser not found")
)

const handleUniqueIndex = "advertisers_handle_key"

const advertiserColumns = `id, handle, business_name, full_name, email, phone, password_hash, role, status, created_at, updated_at`

// CreateParams holds the fields for a new account. Handle must already be normalized.
type CreateParams struct {
	Handle       string
	BusinessName string
	FullName     string
	Email        string
	Phone        string
	PasswordHash string
	Role         models.Role
}

// Repository handles advertiser persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAdvertiser(row pgx.Row) (*models.Advertiser, error) {
	var a models.Advertiser
	var role string
	err := row.Scan(&a.ID, &a.Handle, &a.BusinessName, &a.FullName, &a.Email, &a.Phone,
		&a.Password, &role, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Role = models.Role(role)
	return &a, nil
}

// GetByID returns an advertiser by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Advertiser, error) {
	q := `SELECT ` + advertiserColumns + ` FROM advertisers WHERE id = $1`
	return scanAdvertiser(r.pool.QueryRow(ctx, q, id))
}

// GetByHandle returns an advertiser by normalized handle.
func (r *Repository) GetByHandle(ctx context.Context, handle string) (*models.Advertiser, error) {
	q := `SELECT ` + advertiserColumns + ` FROM advertisers WHERE handle = $1`
	return scanAdvertiser(r.pool.QueryRow(ctx, q, handle))
}

// List returns all accounts for the admin view.
func (r *Repository) List(ctx context.Context) ([]models.AdvertiserPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+advertiserColumns+` FROM advertisers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AdvertiserPublic
	for rows.Next() {
		a, err := scanAdvertiser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a.ToPublic())
	}
	return list, rows.Err()
}

// Create inserts a new account. A unique violation on the handle index maps to ErrHandleTaken.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Advertiser, error) {
	q := `INSERT INTO advertisers (handle, business_name, full_name, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + advertiserColumns
	role := p.Role
	if role == "" {
		role = models.RoleAdvertiser
	}
	a, err := scanAdvertiser(r.pool.QueryRow(ctx, q, p.Handle, p.BusinessName, p.FullName, p.Email, p.Phone, p.PasswordHash, string(role)))
	if err != nil {
		if database.IsUniqueViolation(err, handleUniqueIndex) {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("insert advertiser: %w", err)
	}
	return a, nil
}

// UpdatePassword replaces the password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE advertisers SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRole changes an account's role.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE advertisers SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus changes an account's status and returns the updated account.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.AdvertiserPublic, error) {
	q := `UPDATE advertisers SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + advertiserColumns
	a, err := scanAdvertiser(r.pool.QueryRow(ctx, q, id, status))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	pub := a.ToPublic()
	return &pub, nil
}
