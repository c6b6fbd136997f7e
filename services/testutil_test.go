package services

import (
	"testing"

	"affiliate-tracking-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Affiliate{},
		&models.Click{},
		&models.Conversion{},
		&models.LedgerEntry{},
		&models.Payout{},
	))

	return db
}

// approvedAffiliate registers and approves an affiliate for tests that need
// one ready to earn commission.
func approvedAffiliate(t *testing.T, db *gorm.DB, email string, rateBps int) *models.Affiliate {
	t.Helper()

	svc := NewAffiliateService(db, nil, rateBps)
	aff, err := svc.Apply("Test Affiliate", email)
	require.NoError(t, err)

	aff, err = svc.SetStatus(aff.ID, models.AffiliateStatusApproved)
	require.NoError(t, err)
	return aff
}
