package domain

import (
	"time"

	"gorm.io/gorm"
)

// MaxAnswersPerQuestion caps non-deleted answers on a question
const MaxAnswersPerQuestion = 10

// MaxAttachmentsPerQuestion caps attachments uploaded with a question
const MaxAttachmentsPerQuestion = 5

// Question Model
type Question struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	AuthorID         int64        `gorm:"index;not null" json:"author_id"`           // Telegram id of the patient
	Speciality       string       `gorm:"size:64;index;not null" json:"speciality"`  // Requested speciality
	Body             string       `gorm:"type:text;not null" json:"body"`            // Question text
	AssignedDoctorID *uint        `gorm:"index" json:"assigned_doctor_id,omitempty"` // Explicitly addressed doctor
	Answers          []Answer     `json:"answers,omitempty"`                         // Non-deleted answers
	Attachments      []Attachment `json:"attachments,omitempty"`                     // Only serialised to permitted viewers
	CreatedAt        time.Time    `json:"created_at"`
}

// AnswerAuthors returns the doctor ids that already answered
func (q *Question) AnswerAuthors() []uint {
	ids := make([]uint, 0, len(q.Answers))
	for _, a := range q.Answers {
		ids = append(ids, a.DoctorID)
	}
	return ids
}

// Answer Model. One answer per (question, doctor), enforced by the unique index.
type Answer struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	QuestionID uint           `gorm:"not null;uniqueIndex:idx_answer_question_doctor,priority:1" json:"question_id"`
	DoctorID   uint           `gorm:"not null;uniqueIndex:idx_answer_question_doctor,priority:2" json:"doctor_id"`
	Body       string         `gorm:"type:text;not null" json:"body"`
	Comments   []Comment      `json:"comments,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// Comment Model
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AnswerID  uint      `gorm:"index;not null" json:"answer_id"`
	AuthorID  int64     `gorm:"not null" json:"author_id"` // Telegram id of the commenter
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment Model. Only metadata lives here, the bytes are in external storage.
type Attachment struct {
	ID          string    `gorm:"size:36;primaryKey" json:"id"`
	QuestionID  uint      `gorm:"index;not null" json:"question_id"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	ContentType string    `gorm:"size:127" json:"content_type"`
	StorageKey  string    `gorm:"size:512;not null" json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}
