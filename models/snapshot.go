package models

import (
	"time"
)

// EventDataSnapshot is externally ingested scoring data bound to a point in
// time. Settlement may only ever execute against a snapshot whose
// ProviderFinalFlag is true.
type EventDataSnapshot struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	ContestID         string    `json:"contest_id" gorm:"not null;index"`
	ProviderFinalFlag bool      `json:"provider_final_flag" gorm:"not null;default:false;index"`
	ContentHash       string    `json:"content_hash" gorm:"type:varchar(64);not null"` // sha256 hex of the raw payload
	ArchiveKey        string    `json:"archive_key"`                                   // R2 object key of the archived payload
	ArchiveURL        string    `json:"archive_url"`
	IngestedAt        time.Time `json:"ingested_at" gorm:"autoCreateTime;index"`
}
