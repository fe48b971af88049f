package server

import (
	"crypto/hmac"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/inkwise/inkwise/internal/billing/domain"
)

type PaymentWebhookRequest struct {
	EventID   string `json:"event_id"`
	Email     string `json:"email"`
	ProductID string `json:"product_id"`
}

// PaymentWebhook applies a plan change from the billing provider. Redelivered
// events acknowledge with 200 so the provider stops retrying.
func (s *Server) PaymentWebhook(c *gin.Context) {
	if secret := strings.TrimSpace(s.cfg.WebhookSecret); secret != "" {
		got := strings.TrimSpace(c.GetHeader("X-Webhook-Secret"))
		if !hmac.Equal([]byte(got), []byte(secret)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
	}

	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	_, err := s.billingSvc.Ingest(c.Request.Context(), billingdomain.Event{
		EventID:   req.EventID,
		Email:     req.Email,
		ProductID: req.ProductID,
	})
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
