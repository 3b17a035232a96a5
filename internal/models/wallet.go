package models

import (
	"time"

	"github.com/google/uuid"
)

// WalletStats is an advertiser's prepaid balance. Only payment approval changes it.
type WalletStats struct {
	AdvertiserID   uuid.UUID `json:"advertiser_id"`
	Balance        int64     `json:"balance"`
	TotalDeposited int64     `json:"total_deposited"`
	UpdatedAt      time.Time `json:"updated_at"`
}
