// services/outbox_service.go
package services

import (
	"fmt"
	"log"

	"contest-lifecycle-system/models"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OutboxService struct {
	DB *gorm.DB
}

func NewOutboxService(db *gorm.DB) *OutboxService {
	return &OutboxService{DB: db}
}

// PublishContestCompleted appends a CONTEST_COMPLETED event for a contest.
// The ULID primary key makes event ids sort in creation order. Publishing is
// idempotent per (contest, event type): a duplicate publish is a no-op, so
// any observer of a COMPLETE contest can call this safely.
func (s *OutboxService) PublishContestCompleted(contestID, payload string) (*models.LifecycleOutboxEvent, error) {
	event := models.LifecycleOutboxEvent{
		ID:        ulid.Make().String(),
		ContestID: contestID,
		EventType: models.EventContestCompleted,
		Payload:   payload,
	}

	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contest_id"}, {Name: "event_type"}},
		DoNothing: true,
	}).Create(&event)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to publish outbox event for contest %s: %w", contestID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[OUTBOX] CONTEST_COMPLETED already published for contest %s", contestID)
		if err := s.DB.First(&event, "contest_id = ? AND event_type = ?", contestID, models.EventContestCompleted).Error; err != nil {
			return nil, err
		}
		return &event, nil
	}

	log.Printf("[OUTBOX] published CONTEST_COMPLETED for contest %s (event %s)", contestID, event.ID)
	return &event, nil
}

// PendingEvents returns up to batchSize CONTEST_COMPLETED events whose
// contest has no consumption row yet, oldest first.
func (s *OutboxService) PendingEvents(tx *gorm.DB, batchSize int) ([]models.LifecycleOutboxEvent, error) {
	var events []models.LifecycleOutboxEvent
	err := tx.Where("event_type = ?", models.EventContestCompleted).
		Where("NOT EXISTS (SELECT 1 FROM settlement_consumptions sc WHERE sc.contest_id = lifecycle_outbox_events.contest_id)").
		Order("id ASC").
		Limit(batchSize).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending outbox events: %w", err)
	}
	return events, nil
}
