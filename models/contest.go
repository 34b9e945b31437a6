package models

import (
	"time"
)

// ContestStatus is the lifecycle state of a contest instance.
type ContestStatus string

const (
	StatusScheduled ContestStatus = "SCHEDULED"
	StatusLocked    ContestStatus = "LOCKED"
	StatusLive      ContestStatus = "LIVE"
	StatusComplete  ContestStatus = "COMPLETE"
	StatusCancelled ContestStatus = "CANCELLED"
	StatusError     ContestStatus = "ERROR"
)

// IsTerminal reports whether no further transitions are allowed out of s.
func (s ContestStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

// ValidStatus reports whether s is one of the defined lifecycle states.
func ValidStatus(s ContestStatus) bool {
	switch s {
	case StatusScheduled, StatusLocked, StatusLive, StatusComplete, StatusCancelled, StatusError:
		return true
	}
	return false
}

// ContestInstance is one scheduled/running/completed occurrence of a contest.
// Rows are never deleted. Status is only ever mutated through the guarded
// transition primitive.
type ContestInstance struct {
	ID                    string        `json:"id" gorm:"primaryKey"`
	ProviderTournamentKey string        `json:"provider_tournament_key" gorm:"index"`
	Name                  string        `json:"name" gorm:"not null"`
	Slug                  string        `json:"slug" gorm:"index"`
	Description           string        `json:"description"`
	EntryFee              float64       `json:"entry_fee" gorm:"default:0"`
	PayoutStructure       string        `json:"payout_structure" gorm:"type:text"` // JSON, owned by settlement collaborators
	Status                ContestStatus `json:"status" gorm:"type:varchar(16);not null;default:'SCHEDULED';index"`

	// Trigger timestamps. A null timestamp means the contest is never
	// auto-transitioned on that edge.
	LockTime            *time.Time `json:"lock_time,omitempty" gorm:"index"`
	TournamentStartTime *time.Time `json:"tournament_start_time,omitempty" gorm:"index"`
	TournamentEndTime   *time.Time `json:"tournament_end_time,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Transitions []ContestStateTransition `json:"transitions,omitempty" gorm:"foreignKey:ContestID"`
	Snapshots   []EventDataSnapshot      `json:"snapshots,omitempty" gorm:"foreignKey:ContestID"`
}
