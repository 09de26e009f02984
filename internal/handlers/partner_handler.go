package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"referral-platform/internal/auth"
	"referral-platform/internal/services"
)

type PartnerHandler struct {
	partnerService    *services.PartnerService
	commissionService *services.CommissionService
	payoutService     *services.PayoutService
}

func NewPartnerHandler(
	partnerService *services.PartnerService,
	commissionService *services.CommissionService,
	payoutService *services.PayoutService,
) *PartnerHandler {
	return &PartnerHandler{
		partnerService:    partnerService,
		commissionService: commissionService,
		payoutService:     payoutService,
	}
}

// GetProfile returns the authenticated partner's record
func (h *PartnerHandler) GetProfile(c *gin.Context) {
	partnerID, exists := auth.GetPartnerID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	partner, err := h.partnerService.GetPartner(c.Request.Context(), partnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get partner"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    partner,
	})
}

// GetStats returns the partner's funnel and earnings summary
func (h *PartnerHandler) GetStats(c *gin.Context) {
	partnerID, exists := auth.GetPartnerID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.partnerService.GetPartnerStats(c.Request.Context(), partnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetReferrals returns all referrals attributed to the partner
func (h *PartnerHandler) GetReferrals(c *gin.Context) {
	partnerID, exists := auth.GetPartnerID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	referrals, err := h.partnerService.GetPartnerReferrals(c.Request.Context(), partnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get referrals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    referrals,
		"count":   len(referrals),
	})
}

// GetCommissions returns the partner's commission ledger
func (h *PartnerHandler) GetCommissions(c *gin.Context) {
	partnerID, exists := auth.GetPartnerID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	records, err := h.commissionService.GetPartnerCommissions(c.Request.Context(), partnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get commissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
		"count":   len(records),
	})
}

// GetPayouts returns the partner's payout history
func (h *PartnerHandler) GetPayouts(c *gin.Context) {
	partnerID, exists := auth.GetPartnerID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	payouts, err := h.payoutService.GetPartnerPayouts(c.Request.Context(), partnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get payouts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payouts,
		"count":   len(payouts),
	})
}

// RequestPayout submits a withdrawal request against the partner's
// available balance
func (h *PartnerHandler) RequestPayout(c *gin.Context) {
	partnerID, exists := auth.GetPartnerID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Amount      decimal.Decimal `json:"amount" binding:"required"`
		Method      string          `json:"method" binding:"required"`
		Destination string          `json:"destination" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payout, err := h.payoutService.RequestPayout(c.Request.Context(), partnerID, req.Amount, req.Method, req.Destination)
	if err != nil {
		if errors.Is(err, services.ErrBelowMinimum) || errors.Is(err, services.ErrInsufficientBalance) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payout,
	})
}
