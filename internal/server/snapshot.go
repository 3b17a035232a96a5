package server

import (
	"context"
	"fmt"

	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/payments"
	"github.com/gloads/portal/internal/realtime"
	"github.com/gloads/portal/internal/session"
	"github.com/gloads/portal/internal/wallet"
)

// Snapshot is the first message on every live connection.
type Snapshot struct {
	Wallet          models.WalletStats      `json:"wallet"`
	PaymentRequests []models.PaymentRequest `json:"payment_requests"`
	Campaigns       []models.Campaign       `json:"campaigns"`
	PendingRequests []models.PaymentRequest `json:"pending_requests,omitempty"`
}

// SnapshotBuilder assembles a session's read model from the stores.
func SnapshotBuilder(wallets wallet.Reader, requests payments.Store, ads campaigns.Store) realtime.SnapshotFunc {
	return func(ctx context.Context, sess session.Session) (interface{}, error) {
		w, err := wallets.Get(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot wallet: %w", err)
		}
		mine, err := requests.ListByAdvertiser(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot payment requests: %w", err)
		}
		list, err := ads.ListByAdvertiser(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot campaigns: %w", err)
		}
		snap := Snapshot{Wallet: *w, PaymentRequests: mine, Campaigns: list}
		if sess.IsAdmin() {
			pending, err := requests.List(ctx, models.PaymentStatusPending)
			if err != nil {
				return nil, fmt.Errorf("snapshot pending requests: %w", err)
			}
			snap.PendingRequests = pending
		}
		return snap, nil
	}
}
