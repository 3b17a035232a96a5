package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an account role in the portal.
type Role string

const (
	RoleAdvertiser Role = "advertiser"
	RoleAdmin      Role = "admin"
)

// Account status values.
const (
	AccountStatusActive    = "Active"
	AccountStatusSuspended = "Suspended"
)

// Advertiser represents a portal account.
type Advertiser struct {
	ID           uuid.UUID `json:"id"`
	Handle       string    `json:"handle"`
	BusinessName string    `json:"business_name"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Password     string    `json:"-"`
	Role         Role      `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdvertiserPublic is Advertiser without the password hash.
type AdvertiserPublic struct {
	ID           uuid.UUID `json:"id"`
	Handle       string    `json:"handle"`
	BusinessName string    `json:"business_name"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToPublic converts Advertiser to AdvertiserPublic.
func (a *Advertiser) ToPublic() AdvertiserPublic {
	return AdvertiserPublic{
		ID:           a.ID,
		Handle:       a.Handle,
		BusinessName: a.BusinessName,
		FullName:     a.FullName,
		Email:        a.Email,
		Phone:        a.Phone,
		Role:         a.Role,
		Status:       a.Status,
		CreatedAt:    a.CreatedAt,
	}
}

// DisplayName prefers the business name, falling back to the contact's name and then the handle.
func (a *Advertiser) DisplayName() string {
	switch {
	case a.BusinessName != "":
		return a.BusinessName
	case a.FullName != "":
		return a.FullName
	default:
		return a.Handle
	}
}
