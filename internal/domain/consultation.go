package domain

import "time"

// Consultation states
const (
	ConsultationDraft    = "draft"
	ConsultationPending  = "pending"
	ConsultationAccepted = "accepted"
	ConsultationDeclined = "declined"
	ConsultationClosed   = "closed"
)

// Message author roles
const (
	RoleUser   = "user"
	RoleDoctor = "doctor"
)

// Consultation Model
type Consultation struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	DoctorID    uint                  `gorm:"index;not null" json:"doctor_id"`
	PatientID   int64                 `gorm:"index;not null" json:"patient_id"` // Telegram id of the patient
	PriceRub    int64                 `gorm:"not null;default:0" json:"price_rub"`
	Status      string                `gorm:"size:16;not null;index" json:"status"`
	ProblemText string                `gorm:"type:text" json:"problem_text"`
	Photos      []string              `gorm:"serializer:json;type:text" json:"photos"`
	PaidAt      *time.Time            `json:"paid_at"`
	AcceptedAt  *time.Time            `json:"accepted_at,omitempty"`
	ClosedAt    *time.Time            `json:"closed_at,omitempty"`
	Messages    []ConsultationMessage `json:"messages,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ChatOpen reports whether messages may be exchanged
func (c *Consultation) ChatOpen() bool {
	return c.Status == ConsultationAccepted && c.PaidAt != nil
}

// ConsultationMessage Model, immutable once written
type ConsultationMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConsultationID uint      `gorm:"index:idx_message_consultation_created,priority:1;not null" json:"consultation_id"`
	AuthorRole     string    `gorm:"size:8;not null" json:"author_role"` // user, doctor
	AuthorID       int64     `gorm:"not null" json:"author_id"`          // Telegram id of the author
	Body           string    `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time `gorm:"index:idx_message_consultation_created,priority:2" json:"created_at"`
}
