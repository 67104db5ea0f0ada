package domain

import "time"

// Transaction directions
const (
	TxIn  = "in"
	TxOut = "out"
)

// Transaction states; payouts reuse the payout states
const (
	TxPending  = "pending"
	TxSuccess  = "success"
	TxFailed   = "failed"
	TxCanceled = "canceled"
)

// Transaction Model, append-only ledger entry. Only Status moves, following the linked payout.
type Transaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`            // Primary key
	WalletID        uint      `gorm:"index;not null" json:"wallet_id"` // Wallet the entry belongs to
	DoctorID        uint      `gorm:"index;not null" json:"doctor_id"` // Owner of the wallet
	Type            string    `gorm:"size:8;not null" json:"type"`     // in, out
	AmountRub       int64     `gorm:"not null" json:"amount_rub"`      // Always positive
	Status          string    `gorm:"size:16;not null" json:"status"`  // pending, success, failed, canceled
	PayoutRequestID *uint     `gorm:"index" json:"payout_request_id"`  // Linked payout, if any
	ConsultationID  *uint     `gorm:"index" json:"consultation_id"`    // Linked consultation, if any
	Note            string    `gorm:"size:255" json:"note"`            // Free-form reason
	CreatedAt       time.Time `gorm:"index" json:"created_at"`         // Timestamp of creation
}
