package models

import (
	"time"
)

// Outbox event types. Only CONTEST_COMPLETED is consumed by this core.
const (
	EventContestCompleted = "CONTEST_COMPLETED"
)

// LifecycleOutboxEvent is a durable lifecycle event row. ULID ids sort in
// creation order. Rows are never mutated or deleted; consumption is tracked
// in SettlementConsumption.
type LifecycleOutboxEvent struct {
	ID        string    `json:"id" gorm:"primaryKey"` // ULID
	ContestID string    `json:"contest_id" gorm:"not null;uniqueIndex:idx_outbox_contest_type"`
	EventType string    `json:"event_type" gorm:"type:varchar(32);not null;uniqueIndex:idx_outbox_contest_type"`
	Payload   string    `json:"payload" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// SettlementConsumption is the exactly-once barrier for settlement: at most
// one row per contest can ever exist, and its presence means settlement has
// already been attempted.
type SettlementConsumption struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	ContestID     string    `json:"contest_id" gorm:"not null;uniqueIndex"`
	OutboxEventID string    `json:"outbox_event_id" gorm:"not null"`
	ConsumedAt    time.Time `json:"consumed_at" gorm:"autoCreateTime"`
}
