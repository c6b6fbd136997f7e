package services

import (
	"testing"

	"affiliate-tracking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConversion(t *testing.T) {
	db := setupTestDB(t)
	service := NewConversionService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000) // 10%

	t.Run("Success - Attributed order earns floored commission", func(t *testing.T) {
		conversion, err := service.RecordConversion("O1", 10000, aff.Code)

		require.NoError(t, err)
		require.NotNil(t, conversion)
		assert.Equal(t, aff.ID, conversion.AffiliateID)
		assert.Equal(t, int64(10000), conversion.RevenueCents)
		assert.Equal(t, int64(1000), conversion.CommissionCents)

		var entries []models.LedgerEntry
		require.NoError(t, db.Where("reference = ?", conversion.ID).Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, models.LedgerEntryKindCommission, entries[0].Kind)
		assert.Equal(t, int64(1000), entries[0].AmountCents)
		assert.Nil(t, entries[0].PayoutID)
	})

	t.Run("Idempotent - Resubmission returns existing conversion", func(t *testing.T) {
		first, err := service.RecordConversion("O1", 10000, aff.Code)
		require.NoError(t, err)

		// Even a different revenue must not create a second conversion.
		second, err := service.RecordConversion("O1", 99999, aff.Code)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int64(10000), second.RevenueCents)

		var conversions int64
		db.Model(&models.Conversion{}).Where("order_id = ?", "O1").Count(&conversions)
		assert.Equal(t, int64(1), conversions)

		var entries int64
		db.Model(&models.LedgerEntry{}).Where("reference = ?", first.ID).Count(&entries)
		assert.Equal(t, int64(1), entries)
	})

	t.Run("Commission rounds down, never up", func(t *testing.T) {
		conversion, err := service.RecordConversion("O2", 999, aff.Code)

		require.NoError(t, err)
		require.NotNil(t, conversion)
		assert.Equal(t, int64(99), conversion.CommissionCents) // floor(999 × 0.10)
	})

	t.Run("Unattributed - Unknown cookie code creates nothing", func(t *testing.T) {
		conversion, err := service.RecordConversion("O3", 5000, "ZZZ")

		require.NoError(t, err)
		assert.Nil(t, conversion)

		var count int64
		db.Model(&models.Conversion{}).Where("order_id = ?", "O3").Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("Unattributed - Pending affiliate earns nothing", func(t *testing.T) {
		pendingSvc := NewAffiliateService(db, nil, 1000)
		pending, err := pendingSvc.Apply("Still Pending", "pending@example.com")
		require.NoError(t, err)

		conversion, err := service.RecordConversion("O4", 5000, pending.Code)

		require.NoError(t, err)
		assert.Nil(t, conversion)
	})

	t.Run("Failure - Missing order id", func(t *testing.T) {
		_, err := service.RecordConversion("", 5000, aff.Code)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Failure - Negative revenue", func(t *testing.T) {
		_, err := service.RecordConversion("O5", -1, aff.Code)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestBalanceMatchesFlooredCommissions(t *testing.T) {
	db := setupTestDB(t)
	conversions := NewConversionService(db)
	ledger := NewLedgerService(db)

	aff := approvedAffiliate(t, db, "jane@example.com", 1000) // 10%

	revenues := []int64{10000, 999, 12345, 1, 505}
	var want int64
	for i, revenue := range revenues {
		_, err := conversions.RecordConversion("ORD-"+string(rune('A'+i)), revenue, aff.Code)
		require.NoError(t, err)
		want += revenue * 1000 / 10000
	}

	balance, err := ledger.Balance(aff.ID)
	require.NoError(t, err)
	assert.Equal(t, want, balance)
}
