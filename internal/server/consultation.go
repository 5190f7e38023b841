package server

import (
	"net/http"

	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	"github.com/gin-gonic/gin"
)

type createConsultationRequest struct {
	Subject    string   `json:"subject"`
	Types      []string `json:"types"`
	ForceFresh bool     `json:"force_fresh"`
}

func (s *Server) createConsultation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.consultations.Run(c.Request.Context(), consultationdomain.Request{
		UserID:     userID,
		Subject:    req.Subject,
		Types:      req.Types,
		ForceFresh: req.ForceFresh,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type consultationView struct {
	consultationdomain.Consultation
	Details []consultationdomain.ConsultationDetail `json:"details"`
}

func (s *Server) listConsultations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit := intQuery(c, "limit", 50)
	consultations, details, err := s.consultations.History(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]consultationView, 0, len(consultations))
	for _, consultation := range consultations {
		views = append(views, consultationView{
			Consultation: consultation,
			Details:      details[consultation.ID],
		})
	}
	c.JSON(http.StatusOK, gin.H{"consultations": views})
}
