package api

import (
	"context"
	"net/http"

	"medconsult/internal/config"
	"medconsult/internal/consultation"
	"medconsult/internal/domain"
	"medconsult/internal/ledger"
	"medconsult/internal/middleware"
	"medconsult/internal/policy"
	"medconsult/internal/utils"

	"github.com/gin-gonic/gin"
)

// CreateConsultationRequest is the body of a new consultation
type CreateConsultationRequest struct {
	DoctorID    uint     `json:"doctor_id" binding:"required"`
	PriceRub    float64  `json:"price_rub"` // Fractions are floored
	ProblemText string   `json:"problem_text" binding:"required"`
	Photos      []string `json:"photos"`
	Draft       bool     `json:"draft"`
}

// CreateConsultationHandler opens a consultation with a doctor
func CreateConsultationHandler(svc *consultation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateConsultationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "doctor_id and problem_text are required")
			return
		}
		price, err := floorPrice(req.PriceRub)
		if err != nil {
			fail(c, err)
			return
		}
		cons, err := svc.Create(c.Request.Context(), consultation.CreateInput{
			PatientID:   middleware.UserID(c),
			DoctorID:    req.DoctorID,
			PriceRub:    price,
			ProblemText: req.ProblemText,
			Photos:      req.Photos,
			Draft:       req.Draft,
		})
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusCreated, gin.H{"consultation": cons})
	}
}

// floorPrice floors a price and rejects negatives. Zero stays a free consultation.
func floorPrice(v float64) (int64, error) {
	if v < 0 {
		return 0, domain.Invalid("price_rub must not be negative")
	}
	if v < 1 {
		return 0, nil
	}
	return ledger.FloorAmount(v)
}

// transitionFunc is the shape shared by Submit, Accept, Decline and Close
type transitionFunc func(ctx context.Context, id uint, viewer policy.Viewer) (*domain.Consultation, error)

// TransitionHandler runs one lifecycle transition on behalf of the caller
func TransitionHandler(run transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		cons, err := run(c.Request.Context(), id, middleware.Viewer(c))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"consultation": cons})
	}
}

// CloseConsultationHandler closes a consultation and drops the doctor's cached wallet,
// since closing a paid consultation credits it
func CloseConsultationHandler(svc *consultation.Service, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		cons, err := svc.Close(ctx, id, middleware.Viewer(c))
		if err != nil {
			fail(c, err)
			return
		}
		_ = cache.InvalidateWallet(ctx, cons.DoctorID) // Invalidate wallet cache
		respond(c, http.StatusOK, gin.H{"consultation": cons})
	}
}

// loadVisible loads a consultation the caller may see; admins see every consultation
func loadVisible(c *gin.Context, svc *consultation.Service, admins config.AdminSet) (*domain.Consultation, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	cons, err := svc.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	viewer := middleware.Viewer(c)
	if err := policy.CanViewConsultation(viewer, cons, admins.Contains(viewer.UserID)); err != nil {
		fail(c, err)
		return nil, false
	}
	return cons, true
}

// GetConsultationHandler returns a consultation to a participant or an admin
func GetConsultationHandler(svc *consultation.Service, admins config.AdminSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		cons, ok := loadVisible(c, svc, admins)
		if !ok {
			return
		}
		respond(c, http.StatusOK, gin.H{"consultation": cons, "chat_open": cons.ChatOpen()})
	}
}

// ListConsultationsHandler lists the caller's consultations as patient or doctor
func ListConsultationsHandler(svc *consultation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := parsePagination(c)
		list, err := svc.ListForViewer(c.Request.Context(), middleware.Viewer(c), page.Offset(), page.PageSize)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"consultations": list, "page": page.Page, "page_size": page.PageSize})
	}
}

// MessagesHandler returns the chat history to a participant or an admin
func MessagesHandler(svc *consultation.Service, admins config.AdminSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		cons, ok := loadVisible(c, svc, admins)
		if !ok {
			return
		}
		page := parsePagination(c)
		msgs, err := svc.Messages(c.Request.Context(), cons.ID, page.Offset(), page.PageSize)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"messages": msgs, "page": page.Page, "page_size": page.PageSize})
	}
}

// PostMessageHandler writes to the chat as the caller's role
func PostMessageHandler(svc *consultation.Service) gin.HandlerFunc {
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
		msg, err := svc.PostMessage(c.Request.Context(), id, middleware.Viewer(c), req.Body)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusCreated, gin.H{"message": msg})
	}
}
