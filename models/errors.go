package models

import (
	"errors"
)

// Sentinel errors for the lifecycle core. Callers check them with errors.Is
// to decide between retrying and abandoning.
var (
	// ErrContestNotFound — no such contest. Fatal to the caller, no retry.
	ErrContestNotFound = errors.New("contest not found")

	// ErrPreconditionViolation — the contest's current status is not in the
	// allowed source set. Indicates a caller logic/ordering bug; no retry.
	ErrPreconditionViolation = errors.New("transition precondition violation")

	// ErrConcurrencyViolation — another actor moved the contest between the
	// row lock and the guarded update. Safe to retry the whole operation.
	ErrConcurrencyViolation = errors.New("transition lost a concurrent race")

	// ErrFinalSnapshotMissing — no provider-final snapshot exists at outbox
	// consumption time. By then it is a broken upstream invariant, not an
	// expected wait state.
	ErrFinalSnapshotMissing = errors.New("final event data snapshot missing")
)
