package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"affiliate-tracking-system/models"
	"affiliate-tracking-system/utils"
	"affiliate-tracking-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errNoPayableEntries rolls back a generation run that found nothing to pay.
var errNoPayableEntries = errors.New("no payable entries in period")

// PayoutService aggregates unallocated ledger entries into periodic Payout
// records and drives their status lifecycle.
type PayoutService struct {
	DB       *gorm.DB
	Notifier *workers.Notifier
}

func NewPayoutService(db *gorm.DB, notifier *workers.Notifier) *PayoutService {
	return &PayoutService{DB: db, Notifier: notifier}
}

// Generate creates a pending Payout for the affiliate's unallocated entries
// in [periodStart, periodEnd) and stamps those entries with the payout id,
// all in one transaction. The stamping UPDATE is guarded on payout_id IS
// NULL, so concurrent or repeated runs cannot allocate an entry twice. When
// the period holds no entries, or they sum to zero, the transaction rolls
// back and (nil, nil) is returned: re-running a quiet period is always safe.
func (s *PayoutService) Generate(affiliateID string, periodStart, periodEnd time.Time) (*models.Payout, error) {
	if affiliateID == "" {
		return nil, fmt.Errorf("%w: affiliate id is required", ErrValidation)
	}
	if !periodEnd.After(periodStart) {
		return nil, fmt.Errorf("%w: period end must be after period start", ErrValidation)
	}

	payout := &models.Payout{
		ID:          uuid.NewString(),
		AffiliateID: affiliateID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      models.PayoutStatusPending,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payout).Error; err != nil {
			return err
		}

		res := tx.Model(&models.LedgerEntry{}).
			Where("affiliate_id = ? AND payout_id IS NULL AND created_at >= ? AND created_at < ?",
				affiliateID, periodStart, periodEnd).
			Update("payout_id", payout.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNoPayableEntries
		}

		var total int64
		err := tx.Model(&models.LedgerEntry{}).
			Where("payout_id = ?", payout.ID).
			Select("COALESCE(SUM(amount_cents), 0)").
			Scan(&total).Error
		if err != nil {
			return err
		}
		if total == 0 {
			return errNoPayableEntries
		}

		payout.TotalCents = total
		return tx.Model(payout).Update("total_cents", total).Error
	})
	if err != nil {
		if errors.Is(err, errNoPayableEntries) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to generate payout: %w", err)
	}

	return payout, nil
}

// Approve advances a payout pending → approved.
func (s *PayoutService) Approve(id string) (*models.Payout, error) {
	return s.transition(id, models.PayoutStatusPending, models.PayoutStatusApproved, nil)
}

// MarkPaid advances a payout approved → paid. Paid is terminal.
func (s *PayoutService) MarkPaid(id string) (*models.Payout, error) {
	now := time.Now()
	payout, err := s.transition(id, models.PayoutStatusApproved, models.PayoutStatusPaid, &now)
	if err != nil {
		return nil, err
	}

	s.Notifier.Enqueue(workers.NotifyEvent{
		Type:        "payout_paid",
		AffiliateID: payout.AffiliateID,
		PayoutID:    payout.ID,
		AmountCents: payout.TotalCents,
	})

	return payout, nil
}

// transition flips status with a guarded UPDATE so a concurrent caller
// cannot replay or skip a lifecycle step.
func (s *PayoutService) transition(id string, from, to models.PayoutStatus, paidAt *time.Time) (*models.Payout, error) {
	updates := map[string]interface{}{"status": to}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}

	res := s.DB.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update payout status: %w", res.Error)
	}

	var payout models.Payout
	if err := s.DB.First(&payout, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payout %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}

	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: payout %s is %s, expected %s", ErrInvalidState, id, payout.Status, from)
	}
	return &payout, nil
}

// ListByAffiliate returns an affiliate's payouts, newest first.
func (s *PayoutService) ListByAffiliate(affiliateID string, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.DB.Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, nil
}

// ExportFilter narrows which payouts feed the export.
type ExportFilter struct {
	Status models.PayoutStatus // empty = all
	From   time.Time           // zero = unbounded
	To     time.Time           // zero = unbounded
}

// ExportRow is one line of the payout export, keyed by affiliate.
type ExportRow struct {
	AffiliateID  string `json:"affiliate_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Code         string `json:"code"`
	OrderCount   int64  `json:"order_count"`
	RevenueCents int64  `json:"revenue_cents"`
}

// ExportRows aggregates matching payouts into per-affiliate rows, ordered by
// affiliate id ascending. Order count and revenue are derived from the
// commission entries actually allocated to the matched payouts, so an entry
// is counted once even when payout periods overlap.
func (s *PayoutService) ExportRows(filter ExportFilter) ([]ExportRow, error) {
	query := s.DB.Model(&models.Payout{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		query = query.Where("period_start >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("period_end <= ?", filter.To)
	}

	var payouts []models.Payout
	if err := query.Order("affiliate_id ASC").Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("failed to load payouts for export: %w", err)
	}

	rows := make([]ExportRow, 0, len(payouts))
	index := make(map[string]int)
	payoutIDs := make([]string, 0, len(payouts))
	for _, payout := range payouts {
		payoutIDs = append(payoutIDs, payout.ID)
		if _, seen := index[payout.AffiliateID]; seen {
			continue
		}
		var aff models.Affiliate
		if err := s.DB.First(&aff, "id = ?", payout.AffiliateID).Error; err != nil {
			return nil, fmt.Errorf("failed to load affiliate %s for export: %w", payout.AffiliateID, err)
		}
		rows = append(rows, ExportRow{
			AffiliateID: aff.ID,
			Name:        aff.Name,
			Email:       aff.Email,
			Code:        aff.Code,
		})
		index[payout.AffiliateID] = len(rows) - 1
	}

	if len(payoutIDs) == 0 {
		return rows, nil
	}

	var totals []struct {
		AffiliateID  string
		OrderCount   int64
		RevenueCents int64
	}
	err := s.DB.Model(&models.LedgerEntry{}).
		Select("ledger_entries.affiliate_id AS affiliate_id, COUNT(conversions.id) AS order_count, COALESCE(SUM(conversions.revenue_cents), 0) AS revenue_cents").
		Joins("JOIN conversions ON conversions.id = ledger_entries.reference").
		Where("ledger_entries.payout_id IN ? AND ledger_entries.kind = ?", payoutIDs, models.LedgerEntryKindCommission).
		Group("ledger_entries.affiliate_id").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversions for export: %w", err)
	}

	for _, total := range totals {
		if i, ok := index[total.AffiliateID]; ok {
			rows[i].OrderCount = total.OrderCount
			rows[i].RevenueCents = total.RevenueCents
		}
	}

	return rows, nil
}

// ExportCSV renders rows as CSV with the fixed export header.
func ExportCSV(rows []ExportRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"affiliate_id", "name", "email", "code", "order_count", "revenue"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.AffiliateID,
			row.Name,
			row.Email,
			row.Code,
			strconv.FormatInt(row.OrderCount, 10),
			strconv.FormatInt(row.RevenueCents, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// --- HTTP handlers ---

// GeneratePayout runs batch generation for one affiliate and period (Admin only)
func (s *PayoutService) GeneratePayout(c *fiber.Ctx) error {
	var req struct {
		AffiliateID string    `json:"affiliate_id" validate:"required"`
		PeriodStart time.Time `json:"period_start" validate:"required"`
		PeriodEnd   time.Time `json:"period_end" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	payout, err := s.Generate(req.AffiliateID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("DB Error generating payout for affiliate %s: %v", req.AffiliateID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate payout"})
	}

	if payout == nil {
		return c.JSON(fiber.Map{"generated": false, "message": "No payable entries in period"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"generated": true, "payout": payout})
}

// ApprovePayout advances a payout to approved (Admin only)
func (s *PayoutService) ApprovePayout(c *fiber.Ctx) error {
	return s.transitionHandler(c, s.Approve)
}

// PayPayout marks a payout paid (Admin only)
func (s *PayoutService) PayPayout(c *fiber.Ctx) error {
	return s.transitionHandler(c, s.MarkPaid)
}

func (s *PayoutService) transitionHandler(c *fiber.Ctx, fn func(string) (*models.Payout, error)) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout ID"})
	}

	payout, err := fn(id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
		case errors.Is(err, ErrInvalidState):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("DB Error transitioning payout %s: %v", id, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update payout"})
		}
	}
	return c.JSON(payout)
}

// GetAffiliatePayouts lists an affiliate's payouts (Admin only)
func (s *PayoutService) GetAffiliatePayouts(c *fiber.Ctx) error {
	payouts, err := s.ListByAffiliate(c.Params("id"), parseLimit(c.Query("limit")))
	if err != nil {
		log.Printf("DB Error fetching payouts: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch payouts"})
	}
	return c.JSON(payouts)
}

// ExportPayouts serves the payout export as CSV and archives a copy to R2
// when object storage is configured (Admin only)
func (s *PayoutService) ExportPayouts(c *fiber.Ctx) error {
	filter := ExportFilter{Status: models.PayoutStatus(c.Query("status"))}
	if filter.Status != "" {
		switch filter.Status {
		case models.PayoutStatusPending, models.PayoutStatusApproved, models.PayoutStatusPaid:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
		}
	}

	var err error
	if filter.From, err = parseTimeQuery(c.Query("from"), time.Time{}); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from parameter, want RFC3339"})
	}
	if filter.To, err = parseTimeQuery(c.Query("to"), time.Time{}); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to parameter, want RFC3339"})
	}

	rows, err := s.ExportRows(filter)
	if err != nil {
		log.Printf("DB Error building payout export: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build export"})
	}

	data, err := ExportCSV(rows)
	if err != nil {
		log.Printf("Error encoding payout export: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to encode export"})
	}

	if utils.R2Enabled() {
		key := fmt.Sprintf("exports/payouts-%s.csv", time.Now().UTC().Format("20060102-150405"))
		if _, err := utils.UploadBytesToR2(data, key, "text/csv"); err != nil {
			log.Printf("Failed to archive payout export to R2: %v", err)
		}
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", `attachment; filename="payouts.csv"`)
	return c.Send(data)
}
