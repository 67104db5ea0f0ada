package api

import (
	"net/http"

	"medconsult/internal/doctors"
	"medconsult/internal/domain"
	"medconsult/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterDoctorRequest is the body of a doctor registration
type RegisterDoctorRequest struct {
	FullName    string   `json:"full_name" binding:"required"`
	Specialties []string `json:"specialties" binding:"required"`
}

// RegisterDoctorHandler registers the caller as a pending doctor
func RegisterDoctorHandler(dir *doctors.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterDoctorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "full_name and specialties are required")
			return
		}
		doctor, err := dir.Register(c.Request.Context(), middleware.UserID(c), doctors.RegisterInput{
			FullName:    req.FullName,
			Specialties: req.Specialties,
		})
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusCreated, gin.H{"doctor": doctor})
	}
}

// MyDoctorHandler returns the caller's doctor profile with the wallet
func MyDoctorHandler(dir *doctors.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := middleware.Viewer(c)
		if viewer.Doctor == nil {
			fail(c, domain.NotFound("doctor"))
			return
		}
		doctor, err := dir.Get(c.Request.Context(), viewer.Doctor.ID)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"doctor": doctor})
	}
}
