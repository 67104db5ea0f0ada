// Package consultation runs the paid chat lifecycle between a patient and a doctor:
//
//	draft -> pending -> accepted -> closed
//	                 \-> declined
//
// Acceptance and payment are separate gates. The doctor accepts before any
// money moves, and nobody may write to the chat until the consultation is
// both accepted and paid. Every transition locks the consultation row.
package consultation

import (
	"context"
	"errors"
	"strings"
	"time"

	"medconsult/internal/domain"
	"medconsult/internal/ledger"
	"medconsult/internal/policy"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxPhotos      = 5
	maxMessageSize = 4000
)

// transitions lists every allowed state change
var transitions = map[string][]string{
	domain.ConsultationDraft:    {domain.ConsultationPending},
	domain.ConsultationPending:  {domain.ConsultationAccepted, domain.ConsultationDeclined},
	domain.ConsultationAccepted: {domain.ConsultationClosed},
}

// CanTransition reports whether from -> to is part of the lifecycle
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Notifier is told about lifecycle events after they commit
type Notifier interface {
	ConsultationRequested(ctx context.Context, doctorTelegramID int64, c *domain.Consultation) error
	ConsultationDecided(ctx context.Context, patientID int64, c *domain.Consultation) error
}

// Service performs consultation transitions
type Service struct {
	db       *gorm.DB
	notifier Notifier
}

// NewService creates a Service. notifier may be nil.
func NewService(db *gorm.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// CreateInput is what a patient submits to open a consultation
type CreateInput struct {
	PatientID   int64
	DoctorID    uint
	PriceRub    int64
	ProblemText string
	Photos      []string
	Draft       bool // Keep as draft until Submit
}

// Create opens a consultation in pending (or draft) state
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Consultation, error) {
	if in.PatientID <= 0 {
		return nil, domain.ErrRoleDenied
	}
	in.ProblemText = strings.TrimSpace(in.ProblemText)
	if in.ProblemText == "" {
		return nil, domain.Invalid("problem_text is required")
	}
	if in.PriceRub < 0 || in.PriceRub > ledger.MaxAmountRub {
		return nil, domain.Invalid("price_rub is out of range")
	}
	if len(in.Photos) > maxPhotos {
		return nil, domain.Invalid("too many photos")
	}

	var doctor domain.Doctor
	if err := s.db.WithContext(ctx).First(&doctor, in.DoctorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("doctor")
		}
		return nil, err
	}
	if !doctor.IsApproved() {
		return nil, domain.ErrRoleDenied.WithHint("doctor is not accepting consultations")
	}
	if doctor.TelegramID == in.PatientID {
		return nil, domain.Invalid("cannot consult yourself")
	}

	status := domain.ConsultationPending
	if in.Draft {
		status = domain.ConsultationDraft
	}
	c := domain.Consultation{
		DoctorID:    doctor.ID,
		PatientID:   in.PatientID,
		PriceRub:    in.PriceRub,
		Status:      status,
		ProblemText: in.ProblemText,
		Photos:      in.Photos,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"consultation_id": c.ID,
		"doctor_id":       c.DoctorID,
		"price_rub":       c.PriceRub,
		"status":          c.Status,
	}).Info("Consultation created")
	if status == domain.ConsultationPending {
		s.notifyRequested(ctx, doctor.TelegramID, &c)
	}
	return &c, nil
}

// Submit moves a draft to pending. Only the patient may submit.
func (s *Service) Submit(ctx context.Context, id uint, viewer policy.Viewer) (*domain.Consultation, error) {
	var doctorTelegramID int64
	c, err := s.transition(ctx, id, domain.ConsultationPending,
		func(c *domain.Consultation) error {
			if role, err := policy.ConsultationRole(viewer, c); err != nil || role != domain.RoleUser {
				return domain.ErrRoleDenied
			}
			return nil
		},
		func(tx *gorm.DB, c *domain.Consultation) (map[string]any, error) {
			var doctor domain.Doctor
			if err := tx.Select("id", "telegram_id").First(&doctor, c.DoctorID).Error; err != nil {
				return nil, err
			}
			doctorTelegramID = doctor.TelegramID
			return map[string]any{}, nil
		})
	if err != nil {
		return nil, err
	}
	s.notifyRequested(ctx, doctorTelegramID, c)
	return c, nil
}

// Accept is performed by the targeted, still approved doctor on a pending consultation
func (s *Service) Accept(ctx context.Context, id uint, viewer policy.Viewer) (*domain.Consultation, error) {
	c, err := s.transition(ctx, id, domain.ConsultationAccepted,
		func(c *domain.Consultation) error { return policy.CanAcceptConsultation(viewer, c) },
		func(_ *gorm.DB, _ *domain.Consultation) (map[string]any, error) {
			return map[string]any{"accepted_at": time.Now()}, nil
		})
	if err != nil {
		return nil, err
	}
	s.notifyDecided(ctx, c)
	return c, nil
}

// Decline is performed by the targeted doctor on a pending consultation
func (s *Service) Decline(ctx context.Context, id uint, viewer policy.Viewer) (*domain.Consultation, error) {
	c, err := s.transition(ctx, id, domain.ConsultationDeclined,
		func(c *domain.Consultation) error { return policy.IsTargetDoctor(viewer, c) },
		nil)
	if err != nil {
		return nil, err
	}
	s.notifyDecided(ctx, c)
	return c, nil
}

// Close ends an accepted consultation. Either participant may close it.
// A paid, priced consultation credits the doctor's wallet in the same transaction.
func (s *Service) Close(ctx context.Context, id uint, viewer policy.Viewer) (*domain.Consultation, error) {
	return s.transition(ctx, id, domain.ConsultationClosed,
		func(c *domain.Consultation) error {
			_, err := policy.ConsultationRole(viewer, c)
			return err
		},
		func(tx *gorm.DB, c *domain.Consultation) (map[string]any, error) {
			if c.PaidAt != nil && c.PriceRub > 0 {
				consultationID := c.ID
				if _, err := ledger.CreditTx(tx, c.DoctorID, c.PriceRub, &consultationID, "consultation completed"); err != nil {
					return nil, err
				}
			}
			return map[string]any{"closed_at": time.Now()}, nil
		})
}

// MarkPaid records the payment once. Status does not change.
func (s *Service) MarkPaid(ctx context.Context, id uint) (*domain.Consultation, error) {
	var c domain.Consultation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConsultation(tx, id, &c); err != nil {
			return err
		}
		if c.Status != domain.ConsultationAccepted {
			return domain.StateError(domain.ReasonInvalidTransition, "consultation is "+c.Status)
		}
		if c.PaidAt != nil {
			return domain.StateError(domain.ReasonInvalidTransition, "already paid")
		}
		now := time.Now()
		res := tx.Model(&domain.Consultation{}).
			Where("id = ? AND status = ? AND paid_at IS NULL", c.ID, domain.ConsultationAccepted).
			Update("paid_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.StateError(domain.ReasonInvalidTransition, "already paid")
		}
		c.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"consultation_id": c.ID,
		"price_rub":       c.PriceRub,
	}).Info("Consultation paid")
	return &c, nil
}

// PostMessage appends a chat message. The author role comes from the viewer.
func (s *Service) PostMessage(ctx context.Context, id uint, viewer policy.Viewer, body string) (*domain.ConsultationMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxMessageSize {
		return nil, domain.Invalid("body must be 1-4000 bytes")
	}
	var msg domain.ConsultationMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Consultation
		// Shared lock: concurrent messages are fine, a concurrent close is not
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFound("consultation")
			}
			return err
		}
		role, err := policy.ConsultationRole(viewer, &c)
		if err != nil {
			return err
		}
		if !c.ChatOpen() {
			return domain.ErrChatLocked.WithHint(chatLockedHint(&c))
		}
		msg = domain.ConsultationMessage{
			ConsultationID: c.ID,
			AuthorRole:     role,
			AuthorID:       viewer.UserID,
			Body:           body,
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func chatLockedHint(c *domain.Consultation) string {
	switch {
	case c.Status == domain.ConsultationAccepted:
		return "awaiting payment"
	case c.Status == domain.ConsultationDraft || c.Status == domain.ConsultationPending:
		return "awaiting doctor acceptance"
	default:
		return "consultation is " + c.Status
	}
}

// Get loads a consultation without messages
func (s *Service) Get(ctx context.Context, id uint) (*domain.Consultation, error) {
	var c domain.Consultation
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("consultation")
		}
		return nil, err
	}
	return &c, nil
}

// Messages returns chat messages in creation order
func (s *Service) Messages(ctx context.Context, id uint, offset, limit int) ([]domain.ConsultationMessage, error) {
	var msgs []domain.ConsultationMessage
	err := s.db.WithContext(ctx).
		Where("consultation_id = ?", id).
		Order("created_at asc, id asc").
		Offset(offset).Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// ListForViewer returns consultations where the viewer is the patient or the doctor
func (s *Service) ListForViewer(ctx context.Context, viewer policy.Viewer, offset, limit int) ([]domain.Consultation, error) {
	if !viewer.Authenticated() {
		return nil, domain.ErrRoleDenied
	}
	query := s.db.WithContext(ctx).Where("patient_id = ?", viewer.UserID)
	if viewer.Doctor != nil {
		query = s.db.WithContext(ctx).Where("patient_id = ? OR doctor_id = ?", viewer.UserID, viewer.Doctor.ID)
	}
	var list []domain.Consultation
	err := query.Order("updated_at desc, id desc").Offset(offset).Limit(limit).Find(&list).Error
	return list, err
}

func lockConsultation(tx *gorm.DB, id uint, c *domain.Consultation) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFound("consultation")
		}
		return err
	}
	return nil
}

// transition locks the row, authorises the caller, checks the lifecycle and
// only then runs effects and writes the new status with the columns effects returns
func (s *Service) transition(
	ctx context.Context,
	id uint,
	to string,
	authorize func(*domain.Consultation) error,
	effects func(*gorm.DB, *domain.Consultation) (map[string]any, error),
) (*domain.Consultation, error) {
	var c domain.Consultation
	var from string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConsultation(tx, id, &c); err != nil {
			return err
		}
		if err := authorize(&c); err != nil {
			return err
		}
		if !CanTransition(c.Status, to) {
			return domain.StateError(domain.ReasonInvalidTransition, c.Status+" -> "+to)
		}
		updates := map[string]any{}
		if effects != nil {
			extra, err := effects(tx, &c)
			if err != nil {
				return err
			}
			for k, v := range extra {
				updates[k] = v
			}
		}
		from = c.Status
		updates["status"] = to
		res := tx.Model(&domain.Consultation{}).Where("id = ? AND status = ?", c.ID, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.StateError(domain.ReasonInvalidTransition, "consultation changed concurrently")
		}
		return tx.First(&c, c.ID).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"consultation_id": c.ID,
		"from":            from,
		"to":              to,
	}).Info("Consultation transition")
	return &c, nil
}

func (s *Service) notifyRequested(ctx context.Context, doctorTelegramID int64, c *domain.Consultation) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ConsultationRequested(ctx, doctorTelegramID, c); err != nil {
		logrus.WithFields(logrus.Fields{"consultation_id": c.ID, "error": err.Error()}).Warn("Notification failed")
	}
}

func (s *Service) notifyDecided(ctx context.Context, c *domain.Consultation) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ConsultationDecided(ctx, c.PatientID, c); err != nil {
		logrus.WithFields(logrus.Fields{"consultation_id": c.ID, "error": err.Error()}).Warn("Notification failed")
	}
}
