package models

import (
	"time"
)

// ContestStanding is a per-participant point total produced by the scoring
// collaborator from ingested snapshot data. The lifecycle core only reads
// these rows when the payout strategy runs.
type ContestStanding struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	ContestID      string    `json:"contest_id" gorm:"not null;index"`
	SnapshotID     string    `json:"snapshot_id" gorm:"index"`
	ExternalUserID string    `json:"external_user_id" gorm:"not null;index"`
	Points         float64   `json:"points"`
	Rank           int       `json:"rank"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
