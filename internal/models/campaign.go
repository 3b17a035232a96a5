package models

import (
	"time"

	"github.com/google/uuid"
)

// Placement is where an ad is shown.
type Placement string

const (
	PlacementHomeTop      Placement = "Home Top"
	PlacementInShortsFeed Placement = "In-Shorts Feed"
	PlacementSearchTop    Placement = "Search Top"
	PlacementVideoStart   Placement = "Video Start"
)

// Placements lists every placement in display order.
var Placements = []Placement{PlacementHomeTop, PlacementInShortsFeed, PlacementSearchTop, PlacementVideoStart}

// Valid reports whether p is a known placement.
func (p Placement) Valid() bool {
	for _, known := range Placements {
		if p == known {
			return true
		}
	}
	return false
}

// Campaign status values.
const (
	CampaignStatusPending  = "Pending"
	CampaignStatusActive   = "Active"
	CampaignStatusRejected = "Rejected"
)

// ReachRange is the estimated number of viewers for a budget.
type ReachRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Campaign is a video ad with a budget and placement.
type Campaign struct {
	ID           uuid.UUID  `json:"id"`
	AdvertiserID uuid.UUID  `json:"advertiser_id"`
	Title        string     `json:"title"`
	TargetURL    string     `json:"target_url"`
	VideoURL     string     `json:"video_url"`
	VideoKey     string     `json:"video_key,omitempty"`
	Placement    Placement  `json:"placement"`
	Budget       int64      `json:"budget"`
	Reach        ReachRange `json:"estimated_reach"`
	Status       string     `json:"status"`
	Views        int64      `json:"views"`
	Spend        int64      `json:"spend"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
