package services

import (
	"sync"
	"testing"
	"time"

	"affiliate-tracking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	db := setupTestDB(t)
	service := NewLedgerService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000)

	t.Run("Success - Insert commission entry", func(t *testing.T) {
		entry, err := service.Append(aff.ID, 1000, models.LedgerEntryKindCommission, "conv-1")

		require.NoError(t, err)
		assert.Equal(t, int64(1000), entry.AmountCents)
		assert.Nil(t, entry.PayoutID)
	})

	t.Run("Failure - Missing affiliate id", func(t *testing.T) {
		_, err := service.Append("", 1000, models.LedgerEntryKindCommission, "conv-1")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Failure - Unknown kind", func(t *testing.T) {
		_, err := service.Append(aff.ID, 1000, models.LedgerEntryKind("bonus"), "conv-1")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

// Concrete scenario from the commission rules: 10% rate, 10000¢ order,
// refunds of 5000¢ then 6000¢, then another refund against an already
// fully-reversed conversion.
func TestReverseForRefund(t *testing.T) {
	db := setupTestDB(t)
	conversions := NewConversionService(db)
	ledger := NewLedgerService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000) // 10%

	conversion, err := conversions.RecordConversion("O1", 10000, aff.Code)
	require.NoError(t, err)
	require.Equal(t, int64(1000), conversion.CommissionCents)

	t.Run("Proportional reversal for partial refund", func(t *testing.T) {
		reversed, err := ledger.ReverseForRefund("O1", 5000)

		require.NoError(t, err)
		assert.Equal(t, int64(500), reversed) // floor(1000 × 5000 / 10000)

		balance, err := ledger.Balance(aff.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), balance)
	})

	t.Run("Reversal capped at remaining commission", func(t *testing.T) {
		reversed, err := ledger.ReverseForRefund("O1", 6000) // would be 600, only 500 left

		require.NoError(t, err)
		assert.Equal(t, int64(500), reversed)

		balance, err := ledger.Balance(aff.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("Fully reversed conversion yields zero with no new entry", func(t *testing.T) {
		reversed, err := ledger.ReverseForRefund("O1", 1000)

		require.NoError(t, err)
		assert.Equal(t, int64(0), reversed)

		var entries int64
		db.Model(&models.LedgerEntry{}).
			Where("reference = ? AND kind = ?", conversion.ID, models.LedgerEntryKindReversal).
			Count(&entries)
		assert.Equal(t, int64(2), entries)
	})

	t.Run("Failure - No conversion for order", func(t *testing.T) {
		_, err := ledger.ReverseForRefund("UNKNOWN", 1000)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Failure - Non-positive refund", func(t *testing.T) {
		_, err := ledger.ReverseForRefund("O1", 0)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestReversalsNeverExceedCommission(t *testing.T) {
	db := setupTestDB(t)
	conversions := NewConversionService(db)
	ledger := NewLedgerService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000)

	conversion, err := conversions.RecordConversion("O1", 7777, aff.Code)
	require.NoError(t, err)

	// Hammer the conversion with repeated arbitrary refunds.
	for _, refund := range []int64{3000, 3000, 3000, 9999, 1, 7777} {
		_, err := ledger.ReverseForRefund("O1", refund)
		require.NoError(t, err)
	}

	var totalReversed int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("reference = ? AND kind = ?", conversion.ID, models.LedgerEntryKindReversal).
		Select("COALESCE(SUM(-amount_cents), 0)").
		Scan(&totalReversed).Error)

	assert.LessOrEqual(t, totalReversed, conversion.CommissionCents)

	balance, err := ledger.Balance(aff.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, balance, int64(0))
}

// Overlapping refunds for one order must serialize on the conversion row:
// however the individual attempts interleave, the sum of committed reversals
// can never exceed the frozen commission.
func TestReverseForRefundOverlappingRefunds(t *testing.T) {
	db := setupTestDB(t)
	conversions := NewConversionService(db)
	ledger := NewLedgerService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000)

	conversion, err := conversions.RecordConversion("O1", 10000, aff.Code)
	require.NoError(t, err)
	require.Equal(t, int64(1000), conversion.CommissionCents)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Storage contention may reject individual attempts; the cap
			// must hold for whatever commits.
			_, _ = ledger.ReverseForRefund("O1", 4000)
		}()
	}
	wg.Wait()

	var totalReversed int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("reference = ? AND kind = ?", conversion.ID, models.LedgerEntryKindReversal).
		Select("COALESCE(SUM(-amount_cents), 0)").
		Scan(&totalReversed).Error)
	assert.LessOrEqual(t, totalReversed, conversion.CommissionCents)

	balance, err := ledger.Balance(aff.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, balance, int64(0))
}

func TestStatement(t *testing.T) {
	db := setupTestDB(t)
	conversions := NewConversionService(db)
	ledger := NewLedgerService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000)

	// Spaced out so created_at ordering is unambiguous.
	_, err := conversions.RecordConversion("O1", 10000, aff.Code)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conversions.RecordConversion("O2", 5000, aff.Code)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = ledger.ReverseForRefund("O1", 5000)
	require.NoError(t, err)

	lines, err := ledger.Statement(aff.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, int64(1000), lines[0].RunningBalance)
	assert.Equal(t, int64(1500), lines[1].RunningBalance)
	assert.Equal(t, int64(1000), lines[2].RunningBalance)
	assert.Equal(t, models.LedgerEntryKindReversal, lines[2].Entry.Kind)

	t.Run("Restartable - Same window, same result", func(t *testing.T) {
		again, err := ledger.Statement(aff.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, lines, again)
	})
}
