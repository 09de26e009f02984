package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"referral-platform/internal/models"
	"referral-platform/internal/services"
)

// WebhookHandler receives the external events that drive the referral
// lifecycle: registrations from the signup flow and payment notifications
// from the billing system.
type WebhookHandler struct {
	lifecycle *services.LifecycleService
}

func NewWebhookHandler(lifecycle *services.LifecycleService) *WebhookHandler {
	return &WebhookHandler{lifecycle: lifecycle}
}

// HandleRegistration processes a "referral registered" event
func (h *WebhookHandler) HandleRegistration(c *gin.Context) {
	var req struct {
		VisitorKey string `json:"visitor_key" binding:"required"`
		Email      string `json:"email" binding:"required"`
		Name       string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	referral, err := h.lifecycle.Register(c.Request.Context(), req.VisitorKey, req.Email, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register referral"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    referral,
	})
}

// HandlePayment processes a payment webhook from the billing system. The
// event is treated as already validated upstream; here it is only checked
// for well-formedness before it can reach the immutable ledger.
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	var req struct {
		ReferralID uint            `json:"referral_id" binding:"required"`
		PaymentID  string          `json:"payment_id" binding:"required"`
		Amount     decimal.Decimal `json:"amount" binding:"required"`
		Type       string          `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment := models.PaymentEvent{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Type:      models.PaymentType(req.Type),
	}

	record, err := h.lifecycle.PaymentReceived(c.Request.Context(), req.ReferralID, payment)
	if err != nil {
		// Fatal to the event, not to the system: a malformed or duplicate
		// payment is rejected before any state changes.
		if errors.Is(err, services.ErrInvalidPayment) || errors.Is(err, services.ErrDuplicatePayment) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    record,
	})
}
