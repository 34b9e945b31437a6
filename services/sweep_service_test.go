package services

import (
	"errors"
	"testing"
	"time"

	"contest-lifecycle-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor stands in for the settlement execution boundary.
type fakeExecutor struct {
	calls     []string // contest ids in invocation order
	failFor   map[string]bool
	snapshots map[string]string // contest id → snapshot hash seen
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failFor: map[string]bool{}, snapshots: map[string]string{}}
}

func (f *fakeExecutor) Execute(contest *models.ContestInstance, snapshotID, snapshotHash string, now time.Time) (*models.SettlementRecord, error) {
	f.calls = append(f.calls, contest.ID)
	f.snapshots[contest.ID] = snapshotHash
	if f.failFor[contest.ID] {
		return nil, errors.New("payout strategy error")
	}
	return &models.SettlementRecord{
		ID:           uuid.NewString(),
		ContestID:    contest.ID,
		SnapshotID:   snapshotID,
		SnapshotHash: snapshotHash,
	}, nil
}

func newSweepFixture(t *testing.T) (*SweepService, *fakeExecutor) {
	db := openTestDB(t)
	executor := newFakeExecutor()
	return NewSweepService(db, NewTransitionService(db), executor), executor
}

func TestLockSweepIsIdempotent(t *testing.T) {
	svc, _ := newSweepFixture(t)
	db := svc.DB

	t0 := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	c1 := makeContest(t, db, models.StatusScheduled, func(c *models.ContestInstance) {
		c.LockTime = timePtr(t0)
	})

	result, err := svc.LockSweep(t0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, []string{c1.ID}, result.ChangedIDs)
	assert.Equal(t, models.StatusLocked, contestStatus(t, db, c1.ID))
	assert.Len(t, transitionRows(t, db, c1.ID), 1)

	// Second run one second later is a no-op for C1.
	result, err = svc.LockSweep(t0.Add(1 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Len(t, transitionRows(t, db, c1.ID), 1)
}

func TestLockSweepSkipsNullAndFutureLockTimes(t *testing.T) {
	svc, _ := newSweepFixture(t)
	db := svc.DB

	now := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	noLockTime := makeContest(t, db, models.StatusScheduled, nil)
	future := makeContest(t, db, models.StatusScheduled, func(c *models.ContestInstance) {
		c.LockTime = timePtr(now.Add(1 * time.Hour))
	})

	result, err := svc.LockSweep(now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, models.StatusScheduled, contestStatus(t, db, noLockTime.ID))
	assert.Equal(t, models.StatusScheduled, contestStatus(t, db, future.ID))
}

func TestStartSweepMovesLockedToLive(t *testing.T) {
	svc, _ := newSweepFixture(t)
	db := svc.DB

	now := time.Date(2026, 1, 11, 13, 0, 0, 0, time.UTC)
	locked := makeContest(t, db, models.StatusLocked, func(c *models.ContestInstance) {
		c.TournamentStartTime = timePtr(now.Add(-5 * time.Minute))
	})
	// Still SCHEDULED — start time passed but the lock edge never fired;
	// the status predicate must exclude it.
	stillScheduled := makeContest(t, db, models.StatusScheduled, func(c *models.ContestInstance) {
		c.TournamentStartTime = timePtr(now.Add(-5 * time.Minute))
	})

	result, err := svc.StartSweep(now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, models.StatusLive, contestStatus(t, db, locked.ID))
	assert.Equal(t, models.StatusScheduled, contestStatus(t, db, stillScheduled.ID))

	rows := transitionRows(t, db, locked.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.CauseStartTimeReached, rows[0].TriggeredBy)
}

func TestSettlementSweepMissingSnapshotIsNotFatal(t *testing.T) {
	svc, executor := newSweepFixture(t)
	db := svc.DB

	now := time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC)
	live := makeContest(t, db, models.StatusLive, func(c *models.ContestInstance) {
		c.TournamentEndTime = timePtr(now.Add(-1 * time.Hour))
	})

	result, err := svc.SettlementSweep(now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, executor.calls)

	// Stays LIVE for a later round, with no transition recorded.
	assert.Equal(t, models.StatusLive, contestStatus(t, db, live.ID))
	assert.Empty(t, transitionRows(t, db, live.ID))
}

func TestSettlementSweepCompletesWithFinalSnapshot(t *testing.T) {
	svc, executor := newSweepFixture(t)
	db := svc.DB

	now := time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC)
	c2 := makeContest(t, db, models.StatusLive, func(c *models.ContestInstance) {
		c.TournamentEndTime = timePtr(now.Add(-1 * time.Hour))
	})
	makeFinalSnapshot(t, db, c2.ID, "h1")

	result, err := svc.SettlementSweep(now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, []string{c2.ID}, executor.calls)
	assert.Equal(t, "h1", executor.snapshots[c2.ID])

	assert.Equal(t, models.StatusComplete, contestStatus(t, db, c2.ID))
	rows := transitionRows(t, db, c2.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusLive, rows[0].FromState)
	assert.Equal(t, models.StatusComplete, rows[0].ToState)
	assert.Equal(t, models.CauseSettlementCompleted, rows[0].TriggeredBy)
}

func TestSettlementSweepUsesMostRecentFinalSnapshot(t *testing.T) {
	svc, executor := newSweepFixture(t)
	db := svc.DB

	now := time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC)
	contest := makeContest(t, db, models.StatusLive, func(c *models.ContestInstance) {
		c.TournamentEndTime = timePtr(now.Add(-1 * time.Hour))
	})

	older := makeFinalSnapshot(t, db, contest.ID, "old-hash")
	require.NoError(t, db.Model(older).Update("ingested_at", now.Add(-2*time.Hour)).Error)
	newer := makeFinalSnapshot(t, db, contest.ID, "new-hash")
	require.NoError(t, db.Model(newer).Update("ingested_at", now.Add(-30*time.Minute)).Error)

	_, err := svc.SettlementSweep(now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", executor.snapshots[contest.ID])
}

func TestSettlementSweepEscalatesFailureAndContinues(t *testing.T) {
	svc, executor := newSweepFixture(t)
	db := svc.DB

	now := time.Date(2026, 1, 12, 23, 0, 0, 0, time.UTC)
	endTime := func(c *models.ContestInstance) {
		c.TournamentEndTime = timePtr(now.Add(-1 * time.Hour))
	}
	failing := makeContest(t, db, models.StatusLive, endTime)
	healthy := makeContest(t, db, models.StatusLive, endTime)
	makeFinalSnapshot(t, db, failing.ID, "bad")
	makeFinalSnapshot(t, db, healthy.ID, "good")
	executor.failFor[failing.ID] = true

	result, err := svc.SettlementSweep(now)
	require.NoError(t, err)

	// One contest's failure must not block the other.
	assert.Equal(t, models.StatusError, contestStatus(t, db, failing.ID))
	assert.Equal(t, models.StatusComplete, contestStatus(t, db, healthy.ID))
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, []string{healthy.ID}, result.ChangedIDs)

	rows := transitionRows(t, db, failing.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusError, rows[0].ToState)
	assert.Contains(t, rows[0].Payload, `"settlement_failure":true`)
}

func TestSettleContestIsNoOpWhenNotLive(t *testing.T) {
	svc, executor := newSweepFixture(t)
	db := svc.DB

	scheduled := makeContest(t, db, models.StatusScheduled, nil)

	result, err := svc.SettleContest(scheduled.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, executor.calls)
	assert.Equal(t, models.StatusScheduled, contestStatus(t, db, scheduled.ID))
}

func TestSettleContestNotTimeGated(t *testing.T) {
	svc, executor := newSweepFixture(t)
	db := svc.DB

	// End time far in the future — the admin path settles anyway.
	live := makeContest(t, db, models.StatusLive, func(c *models.ContestInstance) {
		c.TournamentEndTime = timePtr(time.Now().UTC().Add(24 * time.Hour))
	})
	makeFinalSnapshot(t, db, live.ID, "h1")

	result, err := svc.SettleContest(live.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{live.ID}, executor.calls)
	assert.Equal(t, models.StatusComplete, contestStatus(t, db, live.ID))
}

func TestSettleContestNotFound(t *testing.T) {
	svc, _ := newSweepFixture(t)

	_, err := svc.SettleContest("nope", time.Now().UTC())
	assert.ErrorIs(t, err, models.ErrContestNotFound)
}

func TestCascadeCancel(t *testing.T) {
	svc, _ := newSweepFixture(t)
	db := svc.DB

	withKey := func(c *models.ContestInstance) { c.ProviderTournamentKey = "nfl-wildcard-2026" }
	scheduled := makeContest(t, db, models.StatusScheduled, withKey)
	live := makeContest(t, db, models.StatusLive, withKey)
	errored := makeContest(t, db, models.StatusError, withKey)
	complete := makeContest(t, db, models.StatusComplete, withKey)
	otherProvider := makeContest(t, db, models.StatusLive, func(c *models.ContestInstance) {
		c.ProviderTournamentKey = "nba-playin-2026"
	})

	result, err := svc.CascadeCancel("nfl-wildcard-2026", "provider cancelled the tournament")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)

	for _, id := range []string{scheduled.ID, live.ID, errored.ID} {
		assert.Equal(t, models.StatusCancelled, contestStatus(t, db, id))
		rows := transitionRows(t, db, id)
		require.Len(t, rows, 1)
		assert.Equal(t, models.CauseProviderCancelled, rows[0].TriggeredBy)
	}

	// Terminal and unrelated contests are untouched.
	assert.Equal(t, models.StatusComplete, contestStatus(t, db, complete.ID))
	assert.Equal(t, models.StatusLive, contestStatus(t, db, otherProvider.ID))
}
