// services/settlement_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementExecutor is the settlement execution boundary: given a contest
// and a bound final snapshot, compute and persist payouts. Implementations
// must own their transaction and must be safely re-invocable for the same
// (contest, snapshot) pair without double-crediting.
type SettlementExecutor interface {
	Execute(contest *models.ContestInstance, snapshotID, snapshotHash string, now time.Time) (*models.SettlementRecord, error)
}

// PayoutStrategy computes per-participant payout lines from a contest and its
// final snapshot. The scoring math behind it is opaque to the lifecycle core.
type PayoutStrategy func(contest *models.ContestInstance, snapshotID string) ([]models.PayoutLine, error)

type SettlementService struct {
	DB       *gorm.DB
	Strategy PayoutStrategy
}

func NewSettlementService(db *gorm.DB, strategy PayoutStrategy) *SettlementService {
	return &SettlementService{DB: db, Strategy: strategy}
}

// Execute computes and persists the settlement for one contest in its own
// transaction. The unique settlement record per contest is the idempotent
// persistence guarantee: a re-invocation for the same snapshot returns the
// existing record; a re-invocation with a different snapshot hash is refused.
func (s *SettlementService) Execute(contest *models.ContestInstance, snapshotID, snapshotHash string, now time.Time) (*models.SettlementRecord, error) {
	var existing models.SettlementRecord
	err := s.DB.First(&existing, "contest_id = ?", contest.ID).Error
	if err == nil {
		if existing.SnapshotHash != snapshotHash {
			return nil, fmt.Errorf("contest %s already settled against snapshot hash %s, refusing hash %s",
				contest.ID, existing.SnapshotHash, snapshotHash)
		}
		log.Printf("[SETTLEMENT] contest %s already settled (record %s), returning existing", contest.ID, existing.ID)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up settlement record for contest %s: %w", contest.ID, err)
	}

	lines, err := s.Strategy(contest, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("payout strategy failed for contest %s: %w", contest.ID, err)
	}

	record := &models.SettlementRecord{
		ID:           uuid.NewString(),
		ContestID:    contest.ID,
		SnapshotID:   snapshotID,
		SnapshotHash: snapshotHash,
		SettledAt:    now,
	}
	for i := range lines {
		lines[i].ID = uuid.NewString()
		lines[i].SettlementRecordID = record.ID
		lines[i].ContestID = contest.ID
		record.TotalPaid += lines[i].Amount
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contest_id"}},
			DoNothing: true,
		}).Create(record)
		if res.Error != nil {
			return fmt.Errorf("failed to insert settlement record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race with a concurrent executor; their record wins.
			return tx.First(record, "contest_id = ?", contest.ID).Error
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return fmt.Errorf("failed to insert payout lines: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [SETTLEMENT] contest %s settled: %d payout line(s), total %.2f", contest.ID, len(lines), record.TotalPaid)
	return record, nil
}
