// workers/outbox_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle-system/models"
	"contest-lifecycle-system/services"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxBatchResult is the worker's per-invocation report.
type OutboxBatchResult struct {
	Processed int `json:"processed"` // events examined this batch
	Settled   int `json:"settled"`   // events whose settlement actually executed
	Skipped   int `json:"skipped"`   // stale events and already-consumed contests
	Failed    int `json:"failed"`    // events rolled back for retry on a later batch
}

// SettlementOutboxWorker consumes CONTEST_COMPLETED outbox events in creation
// order and guarantees settlement runs at most once per contest, across
// restarts and concurrent worker instances. The settlement consumption row is
// the barrier; it rises or falls with the settlement side effects in the same
// transaction, so a failed attempt stays retryable.
type SettlementOutboxWorker struct {
	db         *gorm.DB
	outbox     *services.OutboxService
	settlement services.SettlementExecutor
	batchSize  int
	interval   time.Duration
}

func NewSettlementOutboxWorker(db *gorm.DB, outbox *services.OutboxService, settlement services.SettlementExecutor, batchSize int) *SettlementOutboxWorker {
	return &SettlementOutboxWorker{
		db:         db,
		outbox:     outbox,
		settlement: settlement,
		batchSize:  batchSize,
		interval:   1 * time.Minute,
	}
}

func (w *SettlementOutboxWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Settlement Outbox Worker (lifecycle_outbox_events → settlement)…")
	go w.run(ctx)
}

func (w *SettlementOutboxWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := w.ProcessBatch(w.batchSize, time.Now().UTC())
			if err != nil {
				log.Printf("❌ [OUTBOX] batch failed: %v", err)
				continue
			}
			if result.Processed > 0 {
				log.Printf("[OUTBOX] batch done: processed=%d settled=%d skipped=%d failed=%d",
					result.Processed, result.Settled, result.Skipped, result.Failed)
			}
		case <-ctx.Done():
			log.Println("⏹️ Settlement Outbox Worker stopped")
			return
		}
	}
}

// ProcessBatch consumes up to batchSize pending events. Each event gets its
// own transaction, so one contest's failure never blocks the rest and a
// crash mid-batch leaves committed contests settled and the rest untouched.
func (w *SettlementOutboxWorker) ProcessBatch(batchSize int, now time.Time) (OutboxBatchResult, error) {
	var result OutboxBatchResult

	events, err := w.outbox.PendingEvents(w.db, batchSize)
	if err != nil {
		return result, err
	}

	for _, event := range events {
		result.Processed++
		outcome, err := w.consumeEvent(event, now)
		if err != nil {
			result.Failed++
			log.Printf("❌ [OUTBOX] event %s (contest %s): %v — rolled back, will retry", event.ID, event.ContestID, err)
			continue
		}
		switch outcome {
		case outcomeSettled:
			result.Settled++
		case outcomeSkipped:
			result.Skipped++
		}
	}
	return result, nil
}

type consumeOutcome int

const (
	outcomeSettled consumeOutcome = iota
	outcomeSkipped
)

// consumeEvent wraps lock → status guard → consumption barrier → final
// snapshot → settlement boundary in one transaction. Any failure rolls
// everything back, including the barrier insert — intentional, so a failed
// settlement attempt is retryable on the next batch.
func (w *SettlementOutboxWorker) consumeEvent(event models.LifecycleOutboxEvent, now time.Time) (consumeOutcome, error) {
	outcome := outcomeSkipped

	err := w.db.Transaction(func(tx *gorm.DB) error {
		var contest models.ContestInstance
		if err := services.LockForUpdate(tx).First(&contest, "id = ?", event.ContestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The contest will never appear; without a consumption row the
				// event stays oldest-pending forever and starves valid events
				// behind it out of every batch.
				log.Printf("⚠️ [OUTBOX] event %s references missing contest %s, marking consumed", event.ID, event.ContestID)
				return w.markConsumed(tx, event, now)
			}
			return fmt.Errorf("failed to lock contest: %w", err)
		}

		if contest.Status != models.StatusComplete {
			if contest.Status.IsTerminal() {
				// CANCELLED can never become COMPLETE; retire the event so it
				// stops occupying batch slots.
				log.Printf("⚠️ [OUTBOX] event %s: contest %s is terminal %s, marking consumed",
					event.ID, contest.ID, contest.Status)
				return w.markConsumed(tx, event, now)
			}
			// Mis-ordered event; the contest may still reach COMPLETE, so no
			// barrier row. This worker never changes status itself.
			log.Printf("⚠️ [OUTBOX] event %s: contest %s is %s, not COMPLETE — skipping stale event",
				event.ID, contest.ID, contest.Status)
			return nil
		}

		consumption := models.SettlementConsumption{
			ID:            uuid.NewString(),
			ContestID:     contest.ID,
			OutboxEventID: event.ID,
			ConsumedAt:    now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contest_id"}},
			DoNothing: true,
		}).Create(&consumption)
		if res.Error != nil {
			return fmt.Errorf("failed to insert consumption barrier: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Barrier already present — settlement was already attempted for
			// this contest (possibly by a crashed or concurrent worker).
			// Conservatively treated as consumed.
			return nil
		}

		snapshot, err := services.LatestFinalSnapshot(tx, contest.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Unlike the time sweep, a COMPLETE contest without a final
				// snapshot is a broken upstream invariant. Fail loudly; the
				// rollback keeps the event retryable once ingestion catches up.
				return fmt.Errorf("%w: contest %s is COMPLETE but has no final snapshot",
					models.ErrFinalSnapshotMissing, contest.ID)
			}
			return fmt.Errorf("failed to resolve final snapshot: %w", err)
		}

		// The boundary owns its own transaction; the row lock here only
		// guards the barrier bookkeeping.
		if _, err := w.settlement.Execute(&contest, snapshot.ID, snapshot.ContentHash, now); err != nil {
			return fmt.Errorf("settlement boundary failed: %w", err)
		}

		outcome = outcomeSettled
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return outcome, nil
}

// markConsumed retires a permanently stale event by inserting its consumption
// barrier without running settlement.
func (w *SettlementOutboxWorker) markConsumed(tx *gorm.DB, event models.LifecycleOutboxEvent, now time.Time) error {
	consumption := models.SettlementConsumption{
		ID:            uuid.NewString(),
		ContestID:     event.ContestID,
		OutboxEventID: event.ID,
		ConsumedAt:    now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contest_id"}},
		DoNothing: true,
	}).Create(&consumption).Error; err != nil {
		return fmt.Errorf("failed to retire stale event %s: %w", event.ID, err)
	}
	return nil
}
