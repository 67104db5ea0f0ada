// Package qa implements the public question board: questions with private
// attachments, doctor answers and the comment threads under them.
package qa

import (
	"context"
	"errors"
	"strings"
	"time"

	"medconsult/internal/domain"
	"medconsult/internal/policy"
	"medconsult/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxBodySize    = 8000
	maxCommentSize = 2000
)

// Service runs question board operations
type Service struct {
	db               *gorm.DB
	attachmentSecret string
	now              func() time.Time
}

// NewService creates a Service. attachmentSecret signs attachment links.
func NewService(db *gorm.DB, attachmentSecret string) *Service {
	return &Service{db: db, attachmentSecret: attachmentSecret, now: time.Now}
}

// AttachmentInput is attachment metadata; the bytes are already in external storage
type AttachmentInput struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key" binding:"required"`
}

// QuestionInput is what a patient submits
type QuestionInput struct {
	Speciality       string
	Body             string
	AssignedDoctorID *uint
	Attachments      []AttachmentInput
}

// CreateQuestion stores a question together with its attachment metadata
func (s *Service) CreateQuestion(ctx context.Context, authorID int64, in QuestionInput) (*domain.Question, error) {
	if authorID <= 0 {
		return nil, domain.ErrRoleDenied
	}
	speciality := strings.ToLower(strings.TrimSpace(in.Speciality))
	body := strings.TrimSpace(in.Body)
	if speciality == "" || len(speciality) > 64 {
		return nil, domain.Invalid("speciality is required")
	}
	if body == "" || len(body) > maxBodySize {
		return nil, domain.Invalid("body must be 1-8000 bytes")
	}
	if len(in.Attachments) > domain.MaxAttachmentsPerQuestion {
		return nil, domain.Invalid("at most 5 attachments")
	}

	q := domain.Question{
		AuthorID:         authorID,
		Speciality:       speciality,
		Body:             body,
		AssignedDoctorID: in.AssignedDoctorID,
	}
	for _, a := range in.Attachments {
		if strings.TrimSpace(a.FileName) == "" || strings.TrimSpace(a.StorageKey) == "" {
			return nil, domain.Invalid("attachment needs file_name and storage_key")
		}
		q.Attachments = append(q.Attachments, domain.Attachment{
			ID:          uuid.NewString(),
			FileName:    a.FileName,
			ContentType: a.ContentType,
			StorageKey:  a.StorageKey,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if q.AssignedDoctorID != nil {
			var doctor domain.Doctor
			if err := tx.Select("id").First(&doctor, *q.AssignedDoctorID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.NotFound("doctor")
				}
				return err
			}
		}
		return tx.Create(&q).Error // Attachments are inserted with the question
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"question_id": q.ID,
		"speciality":  q.Speciality,
		"attachments": len(q.Attachments),
	}).Info("Question created")
	return &q, nil
}

// QuestionView is a question as one viewer is allowed to see it
type QuestionView struct {
	Question       *domain.Question
	CanSeeFiles    bool
	CanAnswer      bool
	AnswerDecision string // Reason when CanAnswer is false
}

// GetQuestion loads a question with answers and comments. Attachments are stripped
// unless the viewer may see them.
func (s *Service) GetQuestion(ctx context.Context, id uint, viewer policy.Viewer) (*QuestionView, error) {
	var q domain.Question
	err := s.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc, id asc") }).
		Preload("Answers.Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc, id asc") }).
		Preload("Attachments").
		First(&q, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("question")
		}
		return nil, err
	}

	view := &QuestionView{Question: &q}
	if policy.CanSeeAttachments(viewer, &q) == nil {
		view.CanSeeFiles = true
	} else {
		q.Attachments = nil
	}
	if viewer.Doctor != nil {
		state, err := s.answerState(s.db.WithContext(ctx), q.ID)
		if err != nil {
			return nil, err
		}
		if err := policy.CanAnswer(viewer, &q, state); err != nil {
			if e, ok := domain.AsError(err); ok {
				view.AnswerDecision = e.Reason
			}
		} else {
			view.CanAnswer = true
		}
	}
	return view, nil
}

// AttachmentLink is an attachment with a short-lived signed link
type AttachmentLink struct {
	domain.Attachment
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Attachments lists attachment links for a viewer allowed to see them
func (s *Service) Attachments(ctx context.Context, questionID uint, viewer policy.Viewer) ([]AttachmentLink, error) {
	var q domain.Question
	if err := s.db.WithContext(ctx).Preload("Attachments").First(&q, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("question")
		}
		return nil, err
	}
	if err := policy.CanSeeAttachments(viewer, &q); err != nil {
		return nil, err
	}
	now := s.now()
	links := make([]AttachmentLink, 0, len(q.Attachments))
	for _, a := range q.Attachments {
		token, err := utils.GenerateAttachmentToken(a.ID, q.ID, viewer.UserID, s.attachmentSecret, now)
		if err != nil {
			return nil, err
		}
		links = append(links, AttachmentLink{Attachment: a, Token: token, ExpiresAt: now.Add(utils.AttachmentLinkTTL)})
	}
	return links, nil
}

// ResolveAttachment opens a signed link issued to the same viewer
func (s *Service) ResolveAttachment(ctx context.Context, token string, viewer policy.Viewer) (*domain.Attachment, error) {
	claims, err := utils.ParseAttachmentToken(token, s.attachmentSecret)
	if err != nil {
		return nil, domain.ErrRoleDenied.WithHint("invalid or expired link")
	}
	if claims.ViewerID != viewer.UserID {
		return nil, domain.ErrRoleDenied.WithHint("link was issued to another user")
	}
	var a domain.Attachment
	err = s.db.WithContext(ctx).
		Where("id = ? AND question_id = ?", claims.AttachmentID, claims.QuestionID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("attachment")
		}
		return nil, err
	}
	return &a, nil
}

// answerState counts live answers and collects every author, soft-deleted answers included
func (s *Service) answerState(tx *gorm.DB, questionID uint) (policy.AnswerState, error) {
	var state policy.AnswerState
	var count int64
	if err := tx.Model(&domain.Answer{}).Where("question_id = ?", questionID).Count(&count).Error; err != nil {
		return state, err
	}
	if err := tx.Unscoped().Model(&domain.Answer{}).Where("question_id = ?", questionID).Pluck("doctor_id", &state.Authors).Error; err != nil {
		return state, err
	}
	state.Count = int(count)
	return state, nil
}

// SubmitAnswer adds the viewer's answer. The question row is locked and the
// policy re-evaluated inside the write transaction.
func (s *Service) SubmitAnswer(ctx context.Context, questionID uint, viewer policy.Viewer, body string) (*domain.Answer, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxBodySize {
		return nil, domain.Invalid("body must be 1-8000 bytes")
	}
	var answer domain.Answer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q domain.Question
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&q, questionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFound("question")
			}
			return err
		}
		state, err := s.answerState(tx, q.ID)
		if err != nil {
			return err
		}
		if err := policy.CanAnswer(viewer, &q, state); err != nil {
			return err
		}
		answer = domain.Answer{QuestionID: q.ID, DoctorID: viewer.Doctor.ID, Body: body}
		if err := tx.Create(&answer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyAnswered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"question_id": questionID,
		"answer_id":   answer.ID,
		"doctor_id":   answer.DoctorID,
	}).Info("Answer submitted")
	return &answer, nil
}

// PostComment adds a comment under a live answer
func (s *Service) PostComment(ctx context.Context, answerID uint, viewer policy.Viewer, body string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxCommentSize {
		return nil, domain.Invalid("body must be 1-2000 bytes")
	}
	var answer domain.Answer
	if err := s.db.WithContext(ctx).First(&answer, answerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("answer")
		}
		return nil, err
	}
	var q domain.Question
	if err := s.db.WithContext(ctx).First(&q, answer.QuestionID).Error; err != nil {
		return nil, err
	}
	if err := policy.CanComment(viewer, &q, &answer); err != nil {
		return nil, err
	}
	comment := domain.Comment{AnswerID: answer.ID, AuthorID: viewer.UserID, Body: body}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteAnswer soft-deletes an answer. Its author still counts as having answered.
func (s *Service) DeleteAnswer(ctx context.Context, answerID uint) error {
	res := s.db.WithContext(ctx).Delete(&domain.Answer{}, answerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("answer")
	}
	logrus.WithField("answer_id", answerID).Info("Answer deleted")
	return nil
}
