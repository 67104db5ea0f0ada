// Package doctors keeps doctor profiles and resolves verified callers into policy viewers.
package doctors

import (
	"context"
	"errors"
	"strings"

	"medconsult/internal/domain"
	"medconsult/internal/policy"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Directory reads and writes doctor profiles
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a Directory
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// RegisterInput is what a caller submits to become a doctor
type RegisterInput struct {
	FullName    string
	Specialties []string
}

// Register creates a pending doctor profile with an empty wallet for the caller
func (d *Directory) Register(ctx context.Context, telegramID int64, in RegisterInput) (*domain.Doctor, error) {
	if telegramID <= 0 {
		return nil, domain.ErrRoleDenied
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" || len(name) > 255 {
		return nil, domain.Invalid("full_name must be 1-255 characters")
	}
	specialties, err := normalizeSpecialties(in.Specialties)
	if err != nil {
		return nil, err
	}

	doctor := domain.Doctor{
		TelegramID:  telegramID,
		FullName:    name,
		Status:      domain.DoctorPending,
		Specialties: specialties,
		Wallet:      &domain.Wallet{}, // Wallet is created together with the profile
	}
	if err := d.db.WithContext(ctx).Create(&doctor).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrAlreadyRegistered
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"doctor_id":   doctor.ID,
		"specialties": strings.Join(specialties, ","),
	}).Info("Doctor registered")
	return &doctor, nil
}

func normalizeSpecialties(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || len(s) > 64 {
			return nil, domain.Invalid("specialties must be non-empty")
		}
		if seen[s] {
			return nil, domain.Invalid("specialties must be unique")
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 || len(out) > domain.MaxSpecialties {
		return nil, domain.Invalid("declare 1-3 specialties")
	}
	return out, nil
}

// ByTelegramID returns the doctor linked to a Telegram id, or nil when the caller is a patient
func (d *Directory) ByTelegramID(ctx context.Context, telegramID int64) (*domain.Doctor, error) {
	var doctor domain.Doctor
	res := d.db.WithContext(ctx).Where("telegram_id = ?", telegramID).Limit(1).Find(&doctor)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &doctor, nil
}

// Get loads a doctor with the wallet
func (d *Directory) Get(ctx context.Context, id uint) (*domain.Doctor, error) {
	var doctor domain.Doctor
	if err := d.db.WithContext(ctx).Preload("Wallet").First(&doctor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("doctor")
		}
		return nil, err
	}
	return &doctor, nil
}

// Viewer resolves a verified Telegram id into a policy viewer
func (d *Directory) Viewer(ctx context.Context, userID int64) (policy.Viewer, error) {
	v := policy.Viewer{UserID: userID}
	if userID <= 0 {
		return v, nil
	}
	doctor, err := d.ByTelegramID(ctx, userID)
	if err != nil {
		return v, err
	}
	v.Doctor = doctor
	return v, nil
}

// SetStatus moderates a doctor profile
func (d *Directory) SetStatus(ctx context.Context, id uint, status string) (*domain.Doctor, error) {
	if status != domain.DoctorApproved && status != domain.DoctorRejected {
		return nil, domain.Invalid("status must be approved or rejected")
	}
	res := d.db.WithContext(ctx).Model(&domain.Doctor{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.NotFound("doctor")
	}
	logrus.WithFields(logrus.Fields{
		"doctor_id": id,
		"status":    status,
	}).Info("Doctor moderated")
	return d.Get(ctx, id)
}
