package services

import (
	"path/filepath"
	"testing"
	"time"

	"contest-lifecycle-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "lifecycle_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.ContestInstance{},
		&models.ContestStateTransition{},
		&models.EventDataSnapshot{},
		&models.SettlementConsumption{},
		&models.LifecycleOutboxEvent{},
		&models.SettlementRecord{},
		&models.PayoutLine{},
		&models.ContestStanding{},
	))
	return db
}

func makeContest(t *testing.T, db *gorm.DB, status models.ContestStatus, mutate func(*models.ContestInstance)) *models.ContestInstance {
	t.Helper()

	contest := &models.ContestInstance{
		ID:       uuid.NewString(),
		Name:     "Playoff Challenge Week 1",
		Slug:     "playoff-challenge-week-1",
		EntryFee: 10,
		Status:   status,
	}
	if mutate != nil {
		mutate(contest)
	}
	require.NoError(t, db.Create(contest).Error)
	return contest
}

func makeFinalSnapshot(t *testing.T, db *gorm.DB, contestID, hash string) *models.EventDataSnapshot {
	t.Helper()

	snapshot := &models.EventDataSnapshot{
		ID:                uuid.NewString(),
		ContestID:         contestID,
		ProviderFinalFlag: true,
		ContentHash:       hash,
		IngestedAt:        time.Now().UTC(),
	}
	require.NoError(t, db.Create(snapshot).Error)
	return snapshot
}

func transitionRows(t *testing.T, db *gorm.DB, contestID string) []models.ContestStateTransition {
	t.Helper()

	var rows []models.ContestStateTransition
	require.NoError(t, db.Where("contest_id = ?", contestID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func contestStatus(t *testing.T, db *gorm.DB, contestID string) models.ContestStatus {
	t.Helper()

	var contest models.ContestInstance
	require.NoError(t, db.First(&contest, "id = ?", contestID).Error)
	return contest.Status
}

func timePtr(ts time.Time) *time.Time { return &ts }
