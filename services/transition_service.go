// services/transition_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"contest-lifecycle-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoStateChange is the sentinel a transition callback returns to abort the
// transition without error — "a prerequisite is missing, try again later".
// The primitive turns it into a successful no-op.
var ErrNoStateChange = errors.New("no state change")

// CallbackFailure wraps an error thrown by a transition callback so the error
// recovery wrapper can tell callback failures apart from structural failures
// (not-found, precondition, lost race), which must propagate untouched.
type CallbackFailure struct {
	Err error
}

func (e *CallbackFailure) Error() string { return "transition callback failed: " + e.Err.Error() }
func (e *CallbackFailure) Unwrap() error { return e.Err }

// TransitionCallback runs inside the primitive's transaction with the locked
// contest row. Returning ErrNoStateChange aborts the transition as a no-op.
type TransitionCallback func(tx *gorm.DB, contest *models.ContestInstance) error

// TransitionRequest parameterizes one guarded transition. Every caller —
// time sweep, admin handler, cascade — goes through the same flat primitive.
type TransitionRequest struct {
	ContestID   string
	From        []models.ContestStatus
	To          models.ContestStatus
	TriggeredBy models.TransitionCause
	Reason      string
	Payload     string // optional JSON attached to the audit row
	Callback    TransitionCallback
	Updates     map[string]any // optional extra field updates applied with the status flip
}

type TransitionResult struct {
	Changed   bool
	Escalated bool // set by TransitionWithRecovery when the contest went to ERROR instead
	FromState models.ContestStatus
}

type TransitionService struct {
	DB *gorm.DB
}

func NewTransitionService(db *gorm.DB) *TransitionService {
	return &TransitionService{DB: db}
}

// LockForUpdate applies a row-level exclusive lock on Postgres. SQLite (used
// in tests) has no FOR UPDATE; its single-writer lock serializes there.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Transition atomically moves one contest to req.To.
//
// Guarantees, in order:
//  1. the contest row is locked for the whole operation;
//  2. status == To already → success, Changed=false;
//  3. status not in From (or not an allowed edge) → ErrPreconditionViolation;
//  4. callback returning ErrNoStateChange → success, Changed=false, nothing written;
//  5. the status update is guarded by WHERE status = <observed>; zero rows
//     affected → ErrConcurrencyViolation, nothing silently overwritten;
//  6. the audit row insert is guarded by the (contest, from, to) unique index,
//     so retried callers never duplicate audit entries.
func (s *TransitionService) Transition(req TransitionRequest) (TransitionResult, error) {
	var result TransitionResult

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var contest models.ContestInstance
		if err := LockForUpdate(tx).First(&contest, "id = ?", req.ContestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", models.ErrContestNotFound, req.ContestID)
			}
			return fmt.Errorf("failed to lock contest %s: %w", req.ContestID, err)
		}

		observed := contest.Status
		result.FromState = observed

		// Self-transition: idempotent retry, never an error.
		if observed == req.To {
			result.Changed = false
			return nil
		}

		if !statusIn(observed, req.From) {
			return fmt.Errorf("%w: contest %s is %s, expected one of %v (target %s)",
				models.ErrPreconditionViolation, contest.ID, observed, req.From, req.To)
		}
		if !models.CanTransition(observed, req.To) {
			return fmt.Errorf("%w: %s → %s is not an allowed edge",
				models.ErrPreconditionViolation, observed, req.To)
		}

		if req.Callback != nil {
			if err := req.Callback(tx, &contest); err != nil {
				if errors.Is(err, ErrNoStateChange) {
					result.Changed = false
					return nil
				}
				return &CallbackFailure{Err: err}
			}
		}

		updates := map[string]any{"status": req.To}
		for k, v := range req.Updates {
			updates[k] = v
		}

		res := tx.Model(&models.ContestInstance{}).
			Where("id = ? AND status = ?", contest.ID, observed).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update contest %s: %w", contest.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: contest %s moved away from %s during transition to %s",
				models.ErrConcurrencyViolation, contest.ID, observed, req.To)
		}

		if err := insertTransitionLog(tx, contest.ID, observed, req.To, req.TriggeredBy, req.Reason, req.Payload); err != nil {
			return err
		}

		result.Changed = true
		return nil
	})
	if err != nil {
		return TransitionResult{FromState: result.FromState}, err
	}
	return result, nil
}

// insertTransitionLog appends one audit row, guarded by the unique
// (contest, from, to) index. A conflicting insert is a no-op — the row from
// the earlier attempt already tells the story.
func insertTransitionLog(tx *gorm.DB, contestID string, from, to models.ContestStatus,
	cause models.TransitionCause, reason, payload string) error {
	row := models.ContestStateTransition{
		ID:          uuid.NewString(),
		ContestID:   contestID,
		FromState:   from,
		ToState:     to,
		TriggeredBy: cause,
		Reason:      reason,
		Payload:     payload,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contest_id"}, {Name: "from_state"}, {Name: "to_state"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append transition log for contest %s: %w", contestID, err)
	}
	return nil
}

// TransitionWithRecovery runs a transition whose callback can fail and
// escalates the contest to ERROR instead of leaving it stuck. Callback
// failure is absorbed: the contest goes to ERROR with settlement_failure in
// the audit payload and the caller sees Escalated=true, nil error.
// Structural failures propagate untouched. If the escalation itself fails,
// that error is returned so the sweep can log it and skip the contest.
func (s *TransitionService) TransitionWithRecovery(req TransitionRequest, failureCause models.TransitionCause) (TransitionResult, error) {
	result, err := s.Transition(req)
	if err == nil {
		return result, nil
	}

	var cbErr *CallbackFailure
	if !errors.As(err, &cbErr) {
		return result, err
	}

	log.Printf("⚠️ [RECOVERY] contest %s: callback failed during %v → %s, escalating to ERROR: %v",
		req.ContestID, req.From, req.To, cbErr.Err)

	payload, _ := json.Marshal(map[string]any{
		"settlement_failure": true,
		"error":              cbErr.Err.Error(),
	})

	escalation := TransitionRequest{
		ContestID:   req.ContestID,
		From:        req.From,
		To:          models.StatusError,
		TriggeredBy: failureCause,
		Reason:      fmt.Sprintf("escalated after callback failure targeting %s: %v", req.To, cbErr.Err),
		Payload:     string(payload),
		// Trivial acknowledgement so the ERROR transition always succeeds
		// structurally: re-fetch the row under the lock, nothing else.
		Callback: func(tx *gorm.DB, contest *models.ContestInstance) error {
			return tx.First(&models.ContestInstance{}, "id = ?", contest.ID).Error
		},
	}

	escResult, escErr := s.Transition(escalation)
	if escErr != nil {
		return result, fmt.Errorf("escalation to ERROR failed for contest %s (original failure: %v): %w",
			req.ContestID, cbErr.Err, escErr)
	}

	escResult.Escalated = true
	return escResult, nil
}

func statusIn(s models.ContestStatus, set []models.ContestStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
