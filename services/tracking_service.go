package services

import (
	"log"
	"time"

	"affiliate-tracking-system/models"
	"affiliate-tracking-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AttributionCookieName is the fixed cookie carrying the referring code.
const AttributionCookieName = "aff_ref"

// TrackingService resolves referral codes, records clicks and issues the
// attribution cookie. Last click wins: every resolved visit overwrites any
// existing cookie.
type TrackingService struct {
	Affiliates *AffiliateService
	Clicks     *workers.ClickWorker
	SiteRoot   string        // redirect target for referral visits
	Window     time.Duration // attribution window = cookie max-age
}

func NewTrackingService(affiliates *AffiliateService, clicks *workers.ClickWorker, siteRoot string, window time.Duration) *TrackingService {
	if siteRoot == "" {
		siteRoot = "/"
	}
	return &TrackingService{
		Affiliates: affiliates,
		Clicks:     clicks,
		SiteRoot:   siteRoot,
		Window:     window,
	}
}

// RecordClick resolves code and enqueues a Click row. The returned affiliate
// is nil for unresolved codes; the click is still recorded without an
// affiliate identity. Resolution failures degrade to the unresolved path so
// tracking never propagates a storage error to the redirect.
func (s *TrackingService) RecordClick(code, landingPath, referrer, userAgent string) *models.Affiliate {
	aff, err := s.Affiliates.GetByCode(code)
	if err != nil {
		log.Printf("[Tracking] code lookup failed for %q: %v", code, err)
		aff = nil
	}

	click := models.Click{
		ID:          uuid.NewString(),
		Code:        code,
		LandingPath: landingPath,
		Referrer:    referrer,
		UserAgent:   userAgent,
	}
	if aff != nil {
		click.AffiliateID = &aff.ID
	}
	s.Clicks.Enqueue(click)

	return aff
}

// --- HTTP handlers ---

// Redirect handles referral URLs (/r/:code): records the click, sets the
// attribution cookie when the code resolves, and always redirects to the
// site root.
func (s *TrackingService) Redirect(c *fiber.Ctx) error {
	code := c.Params("code")

	aff := s.RecordClick(code, c.OriginalURL(), c.Get("Referer"), c.Get("User-Agent"))
	if aff == nil {
		return c.Redirect(s.SiteRoot, fiber.StatusFound)
	}

	c.Cookie(&fiber.Cookie{
		Name:     AttributionCookieName,
		Value:    aff.Code,
		MaxAge:   int(s.Window.Seconds()),
		Path:     "/",
		HTTPOnly: false,
		SameSite: "Lax",
	})

	return c.Redirect(s.SiteRoot+"?ref="+aff.Code, fiber.StatusFound)
}
