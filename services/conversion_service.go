package services

import (
	"errors"
	"fmt"
	"log"

	"affiliate-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversionService turns completed orders plus an attribution cookie into
// idempotent Conversion rows with their initial commission ledger entry.
type ConversionService struct {
	DB *gorm.DB
}

func NewConversionService(db *gorm.DB) *ConversionService {
	return &ConversionService{DB: db}
}

// RecordConversion records an attributed purchase exactly once per order id.
//
// Re-submitting a known order id returns the existing Conversion unchanged,
// so at-least-once delivery from the checkout system is safe. An unresolved
// or not-yet-approved cookie code yields (nil, nil): the order stays
// permanently unattributed and no row is written. The Conversion and its
// commission entry are created in one transaction; the unique index on
// order_id settles concurrent duplicate submissions.
func (s *ConversionService) RecordConversion(orderID string, revenueCents int64, cookieCode string) (*models.Conversion, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if revenueCents < 0 {
		return nil, fmt.Errorf("%w: revenue must not be negative", ErrValidation)
	}

	if existing, err := s.getByOrderID(orderID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	var aff models.Affiliate
	if err := s.DB.First(&aff, "code = ?", cookieCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // unattributed: unknown code
		}
		return nil, fmt.Errorf("failed to resolve cookie code: %w", err)
	}
	if aff.Status != models.AffiliateStatusApproved {
		return nil, nil // unattributed: affiliate not approved
	}

	// Floor division: the summed commission never exceeds revenue × rate.
	commission := revenueCents * int64(aff.CommissionRateBps) / 10000

	conversion := &models.Conversion{
		ID:              uuid.NewString(),
		AffiliateID:     aff.ID,
		OrderID:         orderID,
		RevenueCents:    revenueCents,
		CommissionCents: commission,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conversion).Error; err != nil {
			return err
		}
		entry := &models.LedgerEntry{
			ID:          uuid.NewString(),
			AffiliateID: aff.ID,
			Kind:        models.LedgerEntryKindCommission,
			AmountCents: commission,
			Reference:   conversion.ID,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		// A concurrent submission may have won the unique-index race on
		// order_id; the existing conversion is the correct answer then.
		if existing, lookupErr := s.getByOrderID(orderID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	return conversion, nil
}

func (s *ConversionService) getByOrderID(orderID string) (*models.Conversion, error) {
	var conversion models.Conversion
	if err := s.DB.First(&conversion, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up conversion: %w", err)
	}
	return &conversion, nil
}

// ListByAffiliate returns an affiliate's conversions, newest first.
func (s *ConversionService) ListByAffiliate(affiliateID string, limit int) ([]models.Conversion, error) {
	var conversions []models.Conversion
	err := s.DB.Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Limit(limit).
		Find(&conversions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	return conversions, nil
}

// --- HTTP handlers ---

// IngestConversion is called by the checkout collaborator on order completion
func (s *ConversionService) IngestConversion(c *fiber.Ctx) error {
	var req struct {
		OrderID      string `json:"order_id" validate:"required"`
		RevenueCents int64  `json:"revenue_cents"`
		CookieCode   string `json:"cookie_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversion, err := s.RecordConversion(req.OrderID, req.RevenueCents, req.CookieCode)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("DB Error recording conversion for order %s: %v", req.OrderID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record conversion"})
	}

	if conversion == nil {
		return c.JSON(fiber.Map{"attributed": false})
	}

	return c.JSON(fiber.Map{"attributed": true, "conversion": conversion})
}

// GetAffiliateConversions lists an affiliate's conversions (Admin only)
func (s *ConversionService) GetAffiliateConversions(c *fiber.Ctx) error {
	conversions, err := s.ListByAffiliate(c.Params("id"), parseLimit(c.Query("limit")))
	if err != nil {
		log.Printf("DB Error fetching conversions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch conversions"})
	}
	return c.JSON(conversions)
}
