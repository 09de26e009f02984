package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"referral-platform/internal/attribution"
	"referral-platform/internal/services"
)

const visitorCookie = "visitor_key"

// Attribution bindings are forever; the cookie carrying the visitor key
// matches that horizon (10 years).
const visitorCookieMaxAge = 10 * 365 * 24 * 60 * 60

// TrackingHandler serves the public visit-tracking endpoints. These paths
// never fail the visitor: tracking errors degrade to an untracked visit.
type TrackingHandler struct {
	store     *attribution.Store
	lifecycle *services.LifecycleService
}

func NewTrackingHandler(store *attribution.Store, lifecycle *services.LifecycleService) *TrackingHandler {
	return &TrackingHandler{
		store:     store,
		lifecycle: lifecycle,
	}
}

// visitorKey returns the visitor's stable key, minting and setting a
// cookie when the visitor is new.
func (h *TrackingHandler) visitorKey(c *gin.Context) string {
	if key, err := c.Cookie(visitorCookie); err == nil && key != "" {
		return key
	}
	key := uuid.NewString()
	c.SetCookie(visitorCookie, key, visitorCookieMaxAge, "/", "", false, true)
	return key
}

// TrackLink handles a tracked-link arrival (GET /t/:code) and redirects
// the visitor to the landing page.
func (h *TrackingHandler) TrackLink(c *gin.Context) {
	key := h.visitorKey(c)

	page := attribution.PageContext{
		QueryRef: c.Param("code"),
		RawQuery: c.Request.URL.RawQuery,
	}
	visit := services.VisitContext{
		Page:        c.Request.URL.Path,
		Referrer:    c.Request.Referer(),
		UserAgent:   c.Request.UserAgent(),
		UTMSource:   c.Query("utm_source"),
		UTMMedium:   c.Query("utm_medium"),
		UTMCampaign: c.Query("utm_campaign"),
	}
	h.lifecycle.TrackVisit(c.Request.Context(), key, page, visit)

	target := c.Query("to")
	if target == "" {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

// TrackVisit handles a landing-page beacon (POST /track). The page script
// reports the addressable locations it can see, fragment included, since
// fragments never reach the server on the navigation itself.
func (h *TrackingHandler) TrackVisit(c *gin.Context) {
	var req struct {
		Ref         string `json:"ref"`
		Query       string `json:"query"`
		Fragment    string `json:"fragment"`
		Page        string `json:"page"`
		Referrer    string `json:"referrer"`
		UTMSource   string `json:"utm_source"`
		UTMMedium   string `json:"utm_medium"`
		UTMCampaign string `json:"utm_campaign"`
	}
	// A malformed beacon is still a 200: tracking never errors the page.
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"tracked": false})
		return
	}

	key := h.visitorKey(c)
	page := attribution.PageContext{
		QueryRef: req.Ref,
		RawQuery: req.Query,
		Fragment: req.Fragment,
	}
	visit := services.VisitContext{
		Page:        req.Page,
		Referrer:    req.Referrer,
		UserAgent:   c.Request.UserAgent(),
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
	}
	h.lifecycle.TrackVisit(c.Request.Context(), key, page, visit)

	c.JSON(http.StatusOK, gin.H{"tracked": true})
}

// GetAttribution returns the referral code the visitor is bound to.
func (h *TrackingHandler) GetAttribution(c *gin.Context) {
	key := h.visitorKey(c)
	code := h.store.Read(c.Request.Context(), key, attribution.PageContext{})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"visitor_key":   key,
			"referral_code": code,
		},
	})
}
