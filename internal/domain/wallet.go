package domain

import "time"

// Wallet Model
type Wallet struct {
	ID         uint      `gorm:"primaryKey" json:"id"`                  // Primary key
	DoctorID   uint      `gorm:"uniqueIndex;not null" json:"doctor_id"` // Foreign key to Doctor
	BalanceRub int64     `gorm:"not null;default:0" json:"balance_rub"` // Available funds
	PendingRub int64     `gorm:"not null;default:0" json:"pending_rub"` // Reserved for outstanding payouts
	UpdatedAt  time.Time `json:"updated_at"`
}

// Payout states
const (
	PayoutPending  = "pending"
	PayoutSuccess  = "success"
	PayoutFailed   = "failed"
	PayoutCanceled = "canceled"
)

// PayoutRequest Model
type PayoutRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`                                 // Primary key
	Reference   string     `gorm:"size:36;uniqueIndex;not null" json:"reference"`        // Public id shared with the payment provider
	DoctorID    uint       `gorm:"index;not null" json:"doctor_id"`                      // Requesting doctor
	AmountRub   int64      `gorm:"not null" json:"amount_rub"`                           // Requested amount
	Destination string     `gorm:"size:255" json:"destination"`                          // Card or account the provider pays into
	Status      string     `gorm:"size:16;not null;default:pending;index" json:"status"` // pending, success, failed, canceled
	CreatedAt   time.Time  `json:"created_at"`
	SettledAt   *time.Time `json:"settled_at"` // Set exactly once
}

// IsSettled reports whether the payout already left the pending state
func (p *PayoutRequest) IsSettled() bool {
	return p.Status != PayoutPending
}
