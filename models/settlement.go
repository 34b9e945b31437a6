package models

import (
	"time"
)

// SettlementRecord is the persisted result of one settlement execution. The
// unique index on contest_id is what makes the settlement boundary safely
// re-invocable: a second execution for the same contest finds the existing
// record instead of paying out twice.
type SettlementRecord struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	ContestID    string    `json:"contest_id" gorm:"not null;uniqueIndex"`
	SnapshotID   string    `json:"snapshot_id" gorm:"not null"`
	SnapshotHash string    `json:"snapshot_hash" gorm:"type:varchar(64);not null"`
	TotalPaid    float64   `json:"total_paid" gorm:"default:0"`
	SettledAt    time.Time `json:"settled_at" gorm:"autoCreateTime;index"`

	Payouts []PayoutLine `json:"payouts,omitempty" gorm:"foreignKey:SettlementRecordID"`
}

// PayoutLine is one participant's share of a settlement. Delivery of the
// amount is owned by the withdrawal/ledger subsystem, which consumes these
// rows.
type PayoutLine struct {
	ID                 string  `json:"id" gorm:"primaryKey"`
	SettlementRecordID string  `json:"settlement_record_id" gorm:"not null;index"`
	ContestID          string  `json:"contest_id" gorm:"not null;index"`
	ExternalUserID     string  `json:"external_user_id" gorm:"not null;index"`
	Rank               int     `json:"rank"`
	Points             float64 `json:"points"`
	Amount             float64 `json:"amount"`
}
