// Package policy holds every authorization rule of the marketplace as pure
// functions over already loaded state. Handlers and services call these
// instead of re-deriving permissions, and write paths call them again inside
// the transaction that performs the write. A nil error means allowed.
package policy

import "medconsult/internal/domain"

// Viewer is the verified caller plus the doctor profile linked to the same Telegram id, if any
type Viewer struct {
	UserID int64          // Verified Telegram id, zero when unauthenticated
	Doctor *domain.Doctor // nil for patients
}

// Authenticated reports whether the viewer carries a verified identity
func (v Viewer) Authenticated() bool {
	return v.UserID > 0
}

// AnswerState is the answer bookkeeping of a question as observed by the caller
type AnswerState struct {
	Authors []uint // Doctors that already answered, deleted answers included
	Count   int    // Non-deleted answers
}

// AnswerStateOf derives the state from a question with its answers loaded
func AnswerStateOf(q *domain.Question) AnswerState {
	return AnswerState{Authors: q.AnswerAuthors(), Count: len(q.Answers)}
}

// CanSeeAttachments allows the author, approved doctors of the matching speciality and the assigned doctor
func CanSeeAttachments(v Viewer, q *domain.Question) error {
	if !v.Authenticated() || q == nil {
		return domain.ErrRoleDenied
	}
	if q.AuthorID == v.UserID {
		return nil
	}
	if v.Doctor == nil {
		return domain.ErrRoleDenied
	}
	if q.AssignedDoctorID != nil && *q.AssignedDoctorID == v.Doctor.ID {
		return nil
	}
	if !v.Doctor.IsApproved() {
		return domain.ErrRoleDenied
	}
	if !v.Doctor.HasSpecialty(q.Speciality) {
		return domain.ErrSpecialtyMismatch
	}
	return nil
}

// CanAnswer allows an approved doctor of the matching speciality who has not answered yet,
// while the question still has room for answers
func CanAnswer(v Viewer, q *domain.Question, answers AnswerState) error {
	if !v.Authenticated() || q == nil || v.Doctor == nil || !v.Doctor.IsApproved() {
		return domain.ErrRoleDenied
	}
	if q.AuthorID == v.UserID {
		return domain.ErrRoleDenied
	}
	if !v.Doctor.HasSpecialty(q.Speciality) {
		return domain.ErrSpecialtyMismatch
	}
	for _, id := range answers.Authors {
		if id == v.Doctor.ID {
			return domain.ErrAlreadyAnswered
		}
	}
	if answers.Count >= domain.MaxAnswersPerQuestion {
		return domain.ErrLimitReached
	}
	return nil
}

// CanComment allows only the question author and the doctor who wrote the answer
func CanComment(v Viewer, q *domain.Question, a *domain.Answer) error {
	if !v.Authenticated() || q == nil || a == nil || a.QuestionID != q.ID {
		return domain.ErrRoleDenied
	}
	if q.AuthorID == v.UserID {
		return nil
	}
	if v.Doctor != nil && v.Doctor.ID == a.DoctorID {
		return nil
	}
	return domain.ErrRoleDenied
}

// ConsultationRole returns the chat role of the viewer in a consultation
func ConsultationRole(v Viewer, c *domain.Consultation) (string, error) {
	if !v.Authenticated() || c == nil {
		return "", domain.ErrRoleDenied
	}
	if c.PatientID == v.UserID {
		return domain.RoleUser, nil
	}
	if v.Doctor != nil && v.Doctor.ID == c.DoctorID {
		return domain.RoleDoctor, nil
	}
	return "", domain.ErrRoleDenied
}

// CanViewConsultation allows the two participants and admins
func CanViewConsultation(v Viewer, c *domain.Consultation, isAdmin bool) error {
	if !v.Authenticated() {
		return domain.ErrRoleDenied
	}
	if isAdmin {
		return nil
	}
	_, err := ConsultationRole(v, c)
	return err
}

// IsTargetDoctor allows only the doctor a consultation was addressed to
func IsTargetDoctor(v Viewer, c *domain.Consultation) error {
	if !v.Authenticated() || c == nil || v.Doctor == nil || v.Doctor.ID != c.DoctorID {
		return domain.ErrRoleDenied
	}
	return nil
}

// CanAcceptConsultation requires the target doctor to still be approved.
// A doctor rejected after the request may decline it but not take it on.
func CanAcceptConsultation(v Viewer, c *domain.Consultation) error {
	if err := IsTargetDoctor(v, c); err != nil {
		return err
	}
	if !v.Doctor.IsApproved() {
		return domain.ErrRoleDenied
	}
	return nil
}

// CanRequestPayout allows a doctor to withdraw from their own wallet only
func CanRequestPayout(v Viewer) error {
	if !v.Authenticated() || v.Doctor == nil {
		return domain.ErrRoleDenied
	}
	return nil
}
