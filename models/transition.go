package models

import (
	"time"
)

// TransitionCause is the symbolic cause tag carried into the audit log.
// Time-driven, admin-driven and cascade causes all flow through the same
// flat primitive — the cause is data, not behavior.
type TransitionCause string

const (
	CauseLockTimeReached     TransitionCause = "LOCK_TIME_REACHED"
	CauseStartTimeReached    TransitionCause = "START_TIME_REACHED"
	CauseSettlementCompleted TransitionCause = "SETTLEMENT_COMPLETED"
	CauseSettlementFailed    TransitionCause = "SETTLEMENT_FAILED"
	CauseAdminForceLock      TransitionCause = "ADMIN_FORCE_LOCK"
	CauseAdminCancel         TransitionCause = "ADMIN_CANCEL"
	CauseAdminMarkError      TransitionCause = "ADMIN_MARK_ERROR"
	CauseAdminResolve        TransitionCause = "ADMIN_RESOLVE"
	CauseProviderCancelled   TransitionCause = "PROVIDER_TOURNAMENT_CANCELLED"
)

// ContestStateTransition is the append-only audit log of every state change.
// The unique index on (contest_id, from_state, to_state) is the idempotency
// guarantee: retried callers can never insert a duplicate audit row.
type ContestStateTransition struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	ContestID   string          `json:"contest_id" gorm:"not null;uniqueIndex:idx_contest_from_to"`
	FromState   ContestStatus   `json:"from_state" gorm:"type:varchar(16);not null;uniqueIndex:idx_contest_from_to"`
	ToState     ContestStatus   `json:"to_state" gorm:"type:varchar(16);not null;uniqueIndex:idx_contest_from_to"`
	TriggeredBy TransitionCause `json:"triggered_by" gorm:"type:varchar(64);not null"`
	Reason      string          `json:"reason" gorm:"type:text"`
	Payload     string          `json:"payload,omitempty" gorm:"type:text"` // JSON, e.g. {"settlement_failure":true,...}
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// edge is a single allowed transition in the lifecycle state machine.
type edge struct {
	From ContestStatus
	To   ContestStatus
}

var allowedEdges = map[edge]bool{
	// Time-driven happy path
	{StatusScheduled, StatusLocked}: true,
	{StatusLocked, StatusLive}:      true,
	{StatusLive, StatusComplete}:    true,

	// Escalation
	{StatusLive, StatusError}:      true,
	{StatusScheduled, StatusError}: true,
	{StatusLocked, StatusError}:    true,

	// Admin resolution out of ERROR
	{StatusError, StatusComplete}:  true,
	{StatusError, StatusCancelled}: true,

	// Cancellation (admin or provider cascade)
	{StatusScheduled, StatusCancelled}: true,
	{StatusLocked, StatusCancelled}:    true,
	{StatusLive, StatusCancelled}:      true,
}

// CanTransition reports whether from → to is an allowed edge. A
// self-transition is always allowed; callers treat it as an idempotent no-op.
func CanTransition(from, to ContestStatus) bool {
	if from == to {
		return true
	}
	return allowedEdges[edge{from, to}]
}

// CancellableStates are the source states an admin cancel or a provider
// cancellation cascade may act on.
var CancellableStates = []ContestStatus{StatusScheduled, StatusLocked, StatusLive, StatusError}

// ErrorMarkableStates are the source states an admin may manually escalate.
var ErrorMarkableStates = []ContestStatus{StatusScheduled, StatusLocked, StatusLive}
