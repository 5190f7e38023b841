package server

import (
	"net/http"
	"strconv"
	"strings"

	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) getBalance(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	balance, err := s.credits.CurrentBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":              userID.String(),
		"credit_balance_minor": balance,
	})
}

func (s *Server) listTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit := intQuery(c, "limit", 100)
	transactions, err := s.credits.Transactions(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

type topUpRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	ExternalRef string `json:"external_ref"`
	Description string `json:"description"`
}

func (s *Server) topUp(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "credit purchase"
	}

	transaction, err := s.credits.Credit(
		c.Request.Context(),
		userID,
		req.AmountMinor,
		creditdomain.KindPurchase,
		strings.TrimSpace(req.ExternalRef),
		description,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transaction)
}

// verifyLedger replays the caller's ledger from zero. Diagnostic surface:
// support uses it when a customer disputes a balance.
func (s *Server) verifyLedger(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.credits.VerifyUser(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID.String(),
		"consistent": true,
	})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
