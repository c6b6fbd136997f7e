package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"affiliate-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService is the append-only commission ledger. Balances are always
// derived from stored entries at read time, never cached as mutable state.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Append inserts a ledger entry. It validates input shape only; business
// gating (caps, approval) belongs to the callers.
func (s *LedgerService) Append(affiliateID string, amountCents int64, kind models.LedgerEntryKind, reference string) (*models.LedgerEntry, error) {
	if affiliateID == "" || reference == "" {
		return nil, fmt.Errorf("%w: affiliate id and reference are required", ErrValidation)
	}
	if kind != models.LedgerEntryKindCommission && kind != models.LedgerEntryKindReversal {
		return nil, fmt.Errorf("%w: unknown ledger entry kind %q", ErrValidation, kind)
	}

	entry := &models.LedgerEntry{
		ID:          uuid.NewString(),
		AffiliateID: affiliateID,
		Kind:        kind,
		AmountCents: amountCents,
		Reference:   reference,
	}
	if err := s.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry, nil
}

// Balance sums the affiliate's unallocated entries.
func (s *LedgerService) Balance(affiliateID string) (int64, error) {
	var balance int64
	err := s.DB.Model(&models.LedgerEntry{}).
		Where("affiliate_id = ? AND payout_id IS NULL", affiliateID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&balance).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute balance: %w", err)
	}
	return balance, nil
}

// ReverseForRefund applies a proportional commission reversal for a refund
// against the order's conversion and returns the amount actually reversed.
//
// The reversal is floor(commission × refund / revenue), then capped so all
// reversals against the conversion never exceed its original commission.
// A fully reversed conversion yields 0 with no new entry. An order with no
// conversion returns ErrNotFound — an unattributed order has nothing to
// reverse, which the caller treats as "nothing to do".
func (s *LedgerService) ReverseForRefund(orderID string, refundAmountCents int64) (int64, error) {
	if orderID == "" {
		return 0, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if refundAmountCents <= 0 {
		return 0, fmt.Errorf("%w: refund amount must be positive", ErrValidation)
	}

	var applied int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the conversion row so concurrent refunds for the same order
		// serialize and cannot both read the same prior-reversal sum.
		var conversion models.Conversion
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conversion, "order_id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no conversion for order %s", ErrNotFound, orderID)
			}
			return fmt.Errorf("failed to load conversion: %w", err)
		}

		var reversedSoFar int64
		err := tx.Model(&models.LedgerEntry{}).
			Where("reference = ? AND kind = ?", conversion.ID, models.LedgerEntryKindReversal).
			Select("COALESCE(SUM(-amount_cents), 0)").
			Scan(&reversedSoFar).Error
		if err != nil {
			return fmt.Errorf("failed to sum prior reversals: %w", err)
		}

		proportional := int64(0)
		if conversion.RevenueCents > 0 {
			proportional = conversion.CommissionCents * refundAmountCents / conversion.RevenueCents
		}

		remaining := conversion.CommissionCents - reversedSoFar
		applied = proportional
		if applied > remaining {
			applied = remaining
		}
		if applied <= 0 {
			applied = 0
			return nil
		}

		entry := &models.LedgerEntry{
			ID:          uuid.NewString(),
			AffiliateID: conversion.AffiliateID,
			Kind:        models.LedgerEntryKindReversal,
			AmountCents: -applied,
			Reference:   conversion.ID,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// StatementLine is one ledger entry with the balance running up to it.
type StatementLine struct {
	Entry          models.LedgerEntry `json:"entry"`
	RunningBalance int64              `json:"running_balance"`
}

// Statement returns the affiliate's entries in [from, to) in time order with
// a running balance. Read-only and restartable.
func (s *LedgerService) Statement(affiliateID string, from, to time.Time) ([]StatementLine, error) {
	var entries []models.LedgerEntry
	err := s.DB.Where("affiliate_id = ? AND created_at >= ? AND created_at < ?", affiliateID, from, to).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load statement entries: %w", err)
	}

	lines := make([]StatementLine, 0, len(entries))
	var running int64
	for _, entry := range entries {
		running += entry.AmountCents
		lines = append(lines, StatementLine{Entry: entry, RunningBalance: running})
	}
	return lines, nil
}

// --- HTTP handlers ---

// IngestRefund is called by the refund-approval collaborator
func (s *LedgerService) IngestRefund(c *fiber.Ctx) error {
	var req struct {
		OrderID     string `json:"order_id" validate:"required"`
		RefundCents int64  `json:"refund_cents" validate:"required,gt=0"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	reversed, err := s.ReverseForRefund(req.OrderID, req.RefundCents)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No conversion recorded for order"})
		default:
			log.Printf("DB Error reversing refund for order %s: %v", req.OrderID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to apply reversal"})
		}
	}

	return c.JSON(fiber.Map{"reversed_cents": reversed})
}

// GetAffiliateBalance returns the current payable balance (Admin only)
func (s *LedgerService) GetAffiliateBalance(c *fiber.Ctx) error {
	balance, err := s.Balance(c.Params("id"))
	if err != nil {
		log.Printf("DB Error computing balance: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute balance"})
	}
	return c.JSON(fiber.Map{"affiliate_id": c.Params("id"), "balance_cents": balance})
}

// GetAffiliateStatement returns the ledger statement for a window (Admin only)
func (s *LedgerService) GetAffiliateStatement(c *fiber.Ctx) error {
	from, err := parseTimeQuery(c.Query("from"), time.Time{})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from parameter, want RFC3339"})
	}
	to, err := parseTimeQuery(c.Query("to"), time.Now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to parameter, want RFC3339"})
	}

	lines, err := s.Statement(c.Params("id"), from, to)
	if err != nil {
		log.Printf("DB Error building statement: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build statement"})
	}
	return c.JSON(lines)
}

func parseTimeQuery(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
