package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"referral-platform/internal/models"
	"referral-platform/internal/services"
)

// AdminHandler exposes the admin-facing program commands: partner status
// and tier changes, payout settlement, manual referral edits, and program
// settings updates.
type AdminHandler struct {
	partnerService  *services.PartnerService
	payoutService   *services.PayoutService
	lifecycle       *services.LifecycleService
	settingsService *services.SettingsService
}

func NewAdminHandler(
	partnerService *services.PartnerService,
	payoutService *services.PayoutService,
	lifecycle *services.LifecycleService,
	settingsService *services.SettingsService,
) *AdminHandler {
	return &AdminHandler{
		partnerService:  partnerService,
		payoutService:   payoutService,
		lifecycle:       lifecycle,
		settingsService: settingsService,
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// CreatePartner enrolls a new partner
func (h *AdminHandler) CreatePartner(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	partner, err := h.partnerService.CreatePartner(c.Request.Context(), req.Name, req.Email, req.Code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    partner,
	})
}

// SetPartnerStatus approves, suspends, or blocks a partner
func (h *AdminHandler) SetPartnerStatus(c *gin.Context) {
	partnerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.partnerService.SetStatus(c.Request.Context(), partnerID, models.PartnerStatus(req.Status)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetPartnerTier applies a manual tier change
func (h *AdminHandler) SetPartnerTier(c *gin.Context) {
	partnerID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Tier string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.partnerService.SetTier(c.Request.Context(), partnerID, models.Tier(req.Tier)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetReferralStatus applies a manual lifecycle edit, validated by the
// same transition table as event-driven changes
func (h *AdminHandler) SetReferralStatus(c *gin.Context) {
	referralID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.lifecycle.ApplyTransition(c.Request.Context(), referralID, models.ReferralStatus(req.Status))
	if err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ApprovePayout completes a payout with its external transaction id
func (h *AdminHandler) ApprovePayout(c *gin.Context) {
	payoutID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		TransactionID string `json:"transaction_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payoutService.Approve(c.Request.Context(), payoutID, req.TransactionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RejectPayout cancels a payout and restores the reservation
func (h *AdminHandler) RejectPayout(c *gin.Context) {
	payoutID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payoutService.Reject(c.Request.Context(), payoutID, req.Reason); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetSettings returns the current program settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.Current()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    settings,
	})
}

// UpdateSettings replaces the tier ladder and payout minimum
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req struct {
		Tiers               []models.TierLevel `json:"tiers" binding:"required"`
		MinimumPayoutAmount decimal.Decimal    `json:"minimum_payout_amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.settingsService.Update(req.Tiers, req.MinimumPayoutAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    settings,
	})
}
