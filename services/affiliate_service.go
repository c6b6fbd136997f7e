package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"

	"affiliate-tracking-system/models"
	"affiliate-tracking-system/workers"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

var validate = validator.New()

// AffiliateService owns affiliate identity and the status lifecycle.
type AffiliateService struct {
	DB             *gorm.DB
	Notifier       *workers.Notifier
	DefaultRateBps int
}

func NewAffiliateService(db *gorm.DB, notifier *workers.Notifier, defaultRateBps int) *AffiliateService {
	return &AffiliateService{DB: db, Notifier: notifier, DefaultRateBps: defaultRateBps}
}

type applyRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// Apply registers a new affiliate application with status=pending.
func (s *AffiliateService) Apply(name, email string) (*models.Affiliate, error) {
	req := applyRequest{Name: name, Email: email}
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: name and a well-formed email are required", ErrValidation)
	}

	if existing, err := s.GetByEmail(email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", ErrValidation)
	}

	code, err := generateReferralCode(name)
	if err != nil {
		return nil, fmt.Errorf("failed to generate referral code: %w", err)
	}

	aff := &models.Affiliate{
		ID:                uuid.NewString(),
		Name:              name,
		Email:             email,
		Code:              code,
		Status:            models.AffiliateStatusPending,
		CommissionRateBps: s.DefaultRateBps,
	}

	if err := s.DB.Create(aff).Error; err != nil {
		return nil, fmt.Errorf("failed to create affiliate: %w", err)
	}

	return aff, nil
}

// SetStatus sets an affiliate's status. Setting the current status again is
// a successful no-op; every real change emits an async notification event.
func (s *AffiliateService) SetStatus(id string, status models.AffiliateStatus) (*models.Affiliate, error) {
	if !models.ValidAffiliateStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	var aff models.Affiliate
	if err := s.DB.First(&aff, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: affiliate %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}

	if aff.Status == status {
		return &aff, nil
	}

	aff.Status = status
	if err := s.DB.Save(&aff).Error; err != nil {
		return nil, fmt.Errorf("failed to update affiliate status: %w", err)
	}

	s.Notifier.Enqueue(workers.NotifyEvent{
		Type:        "affiliate_status_changed",
		AffiliateID: aff.ID,
		Email:       aff.Email,
		Status:      string(aff.Status),
	})

	return &aff, nil
}

// GetByCode returns (nil, nil) when no affiliate carries the code, so
// attribution paths can treat absence as a non-error.
func (s *AffiliateService) GetByCode(code string) (*models.Affiliate, error) {
	var aff models.Affiliate
	if err := s.DB.First(&aff, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up affiliate by code: %w", err)
	}
	return &aff, nil
}

// GetByEmail returns (nil, nil) when the email is unknown.
func (s *AffiliateService) GetByEmail(email string) (*models.Affiliate, error) {
	var aff models.Affiliate
	if err := s.DB.First(&aff, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up affiliate by email: %w", err)
	}
	return &aff, nil
}

// GetByID returns (nil, nil) when the id is unknown.
func (s *AffiliateService) GetByID(id string) (*models.Affiliate, error) {
	var aff models.Affiliate
	if err := s.DB.First(&aff, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up affiliate: %w", err)
	}
	return &aff, nil
}

// ListApproved returns every approved affiliate, for the payout scheduler.
func (s *AffiliateService) ListApproved() ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	if err := s.DB.Where("status = ?", models.AffiliateStatusApproved).Find(&affiliates).Error; err != nil {
		return nil, fmt.Errorf("failed to list approved affiliates: %w", err)
	}
	return affiliates, nil
}

// --- HTTP handlers ---

// SubmitApplication handles the public affiliate application form
func (s *AffiliateService) SubmitApplication(c *fiber.Ctx) error {
	var req applyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	aff, err := s.Apply(req.Name, req.Email)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("DB Error creating affiliate: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to submit application"})
	}

	return c.Status(fiber.StatusCreated).JSON(aff)
}

// UpdateAffiliateStatus transitions an affiliate's status (Admin only)
func (s *AffiliateService) UpdateAffiliateStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid affiliate ID"})
	}

	var req struct {
		Status models.AffiliateStatus `json:"status" validate:"required,oneof=pending approved declined"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Status must be one of: pending, approved, declined"})
	}

	aff, err := s.SetStatus(id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Affiliate not found"})
		default:
			log.Printf("DB Error updating affiliate status: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update status"})
		}
	}

	return c.JSON(aff)
}

// GetAffiliate fetches one affiliate by id (Admin only)
func (s *AffiliateService) GetAffiliate(c *fiber.Ctx) error {
	aff, err := s.GetByID(c.Params("id"))
	if err != nil {
		log.Printf("DB Error fetching affiliate: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if aff == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Affiliate not found"})
	}
	return c.JSON(aff)
}

// ListAffiliates fetches affiliates, optionally filtered by status (Admin only)
func (s *AffiliateService) ListAffiliates(c *fiber.Ctx) error {
	query := s.DB.Model(&models.Affiliate{})

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.AffiliateStatus(statusStr)
		if !models.ValidAffiliateStatus(status) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
		}
		query = query.Where("status = ?", status)
	}

	var affiliates []models.Affiliate
	if err := query.Order("created_at DESC").Limit(parseLimit(c.Query("limit"))).Find(&affiliates).Error; err != nil {
		log.Printf("DB Error listing affiliates: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch affiliates"})
	}

	return c.JSON(affiliates)
}

// parseLimit bounds list page sizes: default 20, max 100.
func parseLimit(raw string) int {
	if raw == "" {
		return 20
	}
	l, err := strconv.Atoi(raw)
	if err != nil || l <= 0 {
		return 20
	}
	if l > 100 {
		return 100
	}
	return l
}

// generateReferralCode builds a readable unique code from the affiliate's
// name plus a random hex suffix, e.g. "jane-doe-9f3a21b0".
func generateReferralCode(name string) (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	base := slug.Make(name)
	if len(base) > 24 {
		base = base[:24]
	}
	if base == "" {
		return hex.EncodeToString(bytes), nil
	}
	return base + "-" + hex.EncodeToString(bytes), nil
}
