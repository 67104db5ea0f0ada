package api

import (
	"net/http"

	"medconsult/internal/middleware"
	"medconsult/internal/qa"

	"github.com/gin-gonic/gin"
)

// CreateQuestionRequest is the body of a new question
type CreateQuestionRequest struct {
	Speciality       string               `json:"speciality" binding:"required"`
	Body             string               `json:"body" binding:"required"`
	AssignedDoctorID *uint                `json:"assigned_doctor_id"`
	Attachments      []qa.AttachmentInput `json:"attachments" binding:"dive"`
}

// TextRequest is a body-only payload shared by answers, comments and messages
type TextRequest struct {
	Body string `json:"body" binding:"required"`
}

// CreateQuestionHandler posts a question for the caller
func CreateQuestionHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateQuestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "speciality and body are required")
			return
		}
		q, err := svc.CreateQuestion(c.Request.Context(), middleware.UserID(c), qa.QuestionInput{
			Speciality:       req.Speciality,
			Body:             req.Body,
			AssignedDoctorID: req.AssignedDoctorID,
			Attachments:      req.Attachments,
		})
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusCreated, gin.H{"question": q})
	}
}

// GetQuestionHandler returns a question as the caller may see it
func GetQuestionHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		view, err := svc.GetQuestion(c.Request.Context(), id, middleware.Viewer(c))
		if err != nil {
			fail(c, err)
			return
		}
		body := gin.H{
			"question":            view.Question,
			"can_see_attachments": view.CanSeeFiles,
			"can_answer":          view.CanAnswer,
		}
		if view.AnswerDecision != "" {
			body["answer_denied"] = view.AnswerDecision
		}
		respond(c, http.StatusOK, body)
	}
}

// QuestionAttachmentsHandler lists signed attachment links
func QuestionAttachmentsHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		links, err := svc.Attachments(c.Request.Context(), id, middleware.Viewer(c))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"attachments": links})
	}
}

// ResolveAttachmentHandler opens a signed attachment link
func ResolveAttachmentHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svc.ResolveAttachment(c.Request.Context(), c.Param("token"), middleware.Viewer(c))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"attachment": a})
	}
}

// SubmitAnswerHandler answers a question as the calling doctor
func SubmitAnswerHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req TextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body is required")
			return
		}
		answer, err := svc.SubmitAnswer(c.Request.Context(), id, middleware.Viewer(c), req.Body)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusCreated, gin.H{"answer": answer})
	}
}

// PostCommentHandler comments under an answer
func PostCommentHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req TextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body is required")
			return
		}
		comment, err := svc.PostComment(c.Request.Context(), id, middleware.Viewer(c), req.Body)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusCreated, gin.H{"comment": comment})
	}
}
