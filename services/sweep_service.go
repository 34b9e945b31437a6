// services/sweep_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle-system/models"

	"gorm.io/gorm"
)

// SweepResult reports which contests a sweep touched. Observability only —
// sweeps have no return-value-driven side effects.
type SweepResult struct {
	ChangedIDs []string `json:"changed_ids"`
	Count      int      `json:"count"`
}

// SweepService runs the periodic bulk transitions. Every sweep takes `now`
// from the caller — nothing in here reads the wall clock, which is what
// keeps sweep behavior deterministic under test.
type SweepService struct {
	DB          *gorm.DB
	Transitions *TransitionService
	Settlement  SettlementExecutor
}

func NewSweepService(db *gorm.DB, transitions *TransitionService, settlement SettlementExecutor) *SweepService {
	return &SweepService{DB: db, Transitions: transitions, Settlement: settlement}
}

// LockSweep moves every SCHEDULED contest whose lock_time has passed to
// LOCKED. Entries close at lock time; this is the entry-lock edge.
func (s *SweepService) LockSweep(now time.Time) (SweepResult, error) {
	return s.timeSweep(now, models.StatusScheduled, models.StatusLocked, "lock_time", models.CauseLockTimeReached)
}

// StartSweep moves every LOCKED contest whose tournament_start_time has
// passed to LIVE.
func (s *SweepService) StartSweep(now time.Time) (SweepResult, error) {
	return s.timeSweep(now, models.StatusLocked, models.StatusLive, "tournament_start_time", models.CauseStartTimeReached)
}

// timeSweep is the shared algorithm of the two time-driven sweeps: select
// everything in the source state whose trigger timestamp is non-null and has
// passed, flip the whole set and append one audit row per contest, all in
// one transaction so "contests changed" and "transitions recorded" can never
// diverge. Re-running with the same or a later `now` is safe: rows already in
// the target state are excluded by the status predicate.
func (s *SweepService) timeSweep(now time.Time, from, to models.ContestStatus,
	timeColumn string, cause models.TransitionCause) (SweepResult, error) {

	var result SweepResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var eligible []models.ContestInstance
		if err := LockForUpdate(tx).
			Where(fmt.Sprintf("status = ? AND %s IS NOT NULL AND %s <= ?", timeColumn, timeColumn), from, now).
			Find(&eligible).Error; err != nil {
			return fmt.Errorf("failed to select %s contests for sweep: %w", from, err)
		}
		if len(eligible) == 0 {
			return nil
		}

		ids := make([]string, 0, len(eligible))
		for _, contest := range eligible {
			ids = append(ids, contest.ID)
		}

		res := tx.Model(&models.ContestInstance{}).
			Where("id IN ? AND status = ?", ids, from).
			Update("status", to)
		if res.Error != nil {
			return fmt.Errorf("bulk %s → %s update failed: %w", from, to, res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("%w: bulk %s → %s expected %d rows, changed %d",
				models.ErrConcurrencyViolation, from, to, len(ids), res.RowsAffected)
		}

		reason := fmt.Sprintf("%s reached at %s", timeColumn, now.UTC().Format(time.RFC3339))
		for _, contest := range eligible {
			if err := insertTransitionLog(tx, contest.ID, from, to, cause, reason, ""); err != nil {
				return err
			}
		}

		result.ChangedIDs = ids
		result.Count = len(ids)
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}

// SettlementSweep attempts LIVE → COMPLETE for every contest whose
// tournament_end_time has passed. Contests are processed independently: a
// missing final snapshot leaves the contest LIVE for the next round, a
// settlement failure escalates that one contest to ERROR, and neither stops
// the rest of the batch.
func (s *SweepService) SettlementSweep(now time.Time) (SweepResult, error) {
	var ids []string
	err := s.DB.Model(&models.ContestInstance{}).
		Where("status = ? AND tournament_end_time IS NOT NULL AND tournament_end_time <= ?", models.StatusLive, now).
		Order("tournament_end_time ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to select settlement-eligible contests: %w", err)
	}

	var result SweepResult
	for _, contestID := range ids {
		res, err := s.settleOne(contestID, now)
		if err != nil {
			// Escalation failures land here (audit write failed); log and
			// skip the contest for this round, keep the batch going.
			log.Printf("❌ [SWEEP] contest %s: settlement attempt failed and was not escalated: %v", contestID, err)
			continue
		}
		if res.Escalated {
			log.Printf("⚠️ [SWEEP] contest %s escalated to ERROR after settlement failure", contestID)
			continue
		}
		if res.Changed {
			result.ChangedIDs = append(result.ChangedIDs, contestID)
			result.Count++
		}
	}
	return result, nil
}

// SettleContest is the admin-triggered single-contest variant. Not
// time-gated; a contest that is not currently LIVE is a no-op.
func (s *SweepService) SettleContest(contestID string, now time.Time) (TransitionResult, error) {
	var contest models.ContestInstance
	if err := s.DB.First(&contest, "id = ?", contestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TransitionResult{}, fmt.Errorf("%w: %s", models.ErrContestNotFound, contestID)
		}
		return TransitionResult{}, fmt.Errorf("failed to fetch contest %s: %w", contestID, err)
	}
	if contest.Status != models.StatusLive {
		return TransitionResult{Changed: false, FromState: contest.Status}, nil
	}
	return s.settleOne(contestID, now)
}

// settleOne runs one guarded LIVE → COMPLETE transition whose callback binds
// the latest final snapshot and invokes the settlement boundary. No final
// snapshot is the expected wait state — the callback aborts as a no-op and
// the contest stays LIVE for a later round. A boundary failure is escalated
// to ERROR by the recovery wrapper.
func (s *SweepService) settleOne(contestID string, now time.Time) (TransitionResult, error) {
	req := TransitionRequest{
		ContestID:   contestID,
		From:        []models.ContestStatus{models.StatusLive},
		To:          models.StatusComplete,
		TriggeredBy: models.CauseSettlementCompleted,
		Reason:      "settlement executed against final snapshot",
		Callback: func(tx *gorm.DB, contest *models.ContestInstance) error {
			snapshot, err := LatestFinalSnapshot(tx, contest.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNoStateChange
				}
				return fmt.Errorf("failed to resolve final snapshot: %w", err)
			}
			// The boundary owns its own transaction; it deliberately does
			// not run on tx.
			if _, err := s.Settlement.Execute(contest, snapshot.ID, snapshot.ContentHash, now); err != nil {
				return err
			}
			return nil
		},
	}
	return s.Transitions.TransitionWithRecovery(req, models.CauseSettlementFailed)
}

// CascadeCancel cancels every non-terminal contest bound to a provider
// tournament key in one atomic pass: lock the affected set, compute each
// row's before/after, apply, and append the audit rows — never a loop of
// independent single-row transactions, so no partial-cascade state is ever
// observable.
func (s *SweepService) CascadeCancel(providerKey, reason string) (SweepResult, error) {
	var result SweepResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var affected []models.ContestInstance
		if err := LockForUpdate(tx).
			Where("provider_tournament_key = ? AND status IN ?", providerKey, models.CancellableStates).
			Find(&affected).Error; err != nil {
			return fmt.Errorf("failed to select contests for provider %s: %w", providerKey, err)
		}

		for _, contest := range affected {
			res := tx.Model(&models.ContestInstance{}).
				Where("id = ? AND status = ?", contest.ID, contest.Status).
				Update("status", models.StatusCancelled)
			if res.Error != nil {
				return fmt.Errorf("cascade cancel update failed for contest %s: %w", contest.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: contest %s moved away from %s during cascade cancel",
					models.ErrConcurrencyViolation, contest.ID, contest.Status)
			}
			if err := insertTransitionLog(tx, contest.ID, contest.Status, models.StatusCancelled,
				models.CauseProviderCancelled, reason, ""); err != nil {
				return err
			}
			result.ChangedIDs = append(result.ChangedIDs, contest.ID)
		}
		result.Count = len(result.ChangedIDs)
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}
