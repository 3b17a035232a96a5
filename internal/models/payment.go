package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus for deposit requests. Transitions only go Pending -> Approved or Pending -> Rejected.
const (
	PaymentStatusPending  = "Pending"
	PaymentStatusApproved = "Approved"
	PaymentStatusRejected = "Rejected"
)

// ValidPaymentStatus reports whether s is a known payment request status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	}
	return false
}

// PaymentRequest is a manual UPI deposit awaiting admin verification.
// Advertiser fields are a snapshot taken at submission time.
type PaymentRequest struct {
	ID               uuid.UUID  `json:"id"`
	AdvertiserID     uuid.UUID  `json:"advertiser_id"`
	AdvertiserHandle string     `json:"advertiser_handle"`
	AdvertiserEmail  string     `json:"advertiser_email"`
	AdvertiserName   string     `json:"advertiser_name"`
	Amount           int64      `json:"amount"`
	TransactionRef   string     `json:"transaction_ref"`
	UPIID            string     `json:"upi_id"`
	Status           string     `json:"status"`
	RejectReason     string     `json:"reject_reason,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ApprovedBy       *uuid.UUID `json:"approved_by,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
