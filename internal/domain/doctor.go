package domain

import "time"

// Doctor approval states
const (
	DoctorPending  = "pending"
	DoctorApproved = "approved"
	DoctorRejected = "rejected"
)

// MaxSpecialties is how many specialties a doctor may declare
const MaxSpecialties = 3

// Doctor Model
type Doctor struct {
	ID          uint      `gorm:"primaryKey" json:"id"`                                         // Primary key
	TelegramID  int64     `gorm:"uniqueIndex;not null" json:"telegram_id"`                      // Verified Telegram user id
	FullName    string    `gorm:"size:255;not null" json:"full_name"`                           // Display name
	Status      string    `gorm:"size:16;not null;default:pending;index" json:"status"`         // pending, approved, rejected
	Specialties []string  `gorm:"serializer:json;type:text" json:"specialties"`                 // Up to three specialties
	Wallet      *Wallet   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"wallet"` // One-to-one relationship with Wallet
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsApproved reports whether the doctor passed moderation
func (d *Doctor) IsApproved() bool {
	return d != nil && d.Status == DoctorApproved
}

// HasSpecialty reports whether the doctor declared the given speciality
func (d *Doctor) HasSpecialty(speciality string) bool {
	if d == nil || speciality == "" {
		return false
	}
	for _, s := range d.Specialties {
		if s == speciality {
			return true
		}
	}
	return false
}
